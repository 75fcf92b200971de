package realtime

import (
	"sort"
	"sync"

	"staging-studio-backend/internal/models"
)

// SubmissionSet is the submission list one stream connection has seen,
// kept newest first. Changes are applied in receipt order.
type SubmissionSet struct {
	mu    sync.Mutex
	items []models.Submission
}

func NewSubmissionSet(initial []models.Submission) *SubmissionSet {
	items := make([]models.Submission, len(initial))
	copy(items, initial)
	return &SubmissionSet{items: items}
}

// Apply folds change into the set. include decides scope membership of the
// changed row. It reports whether the set changed.
func (s *SubmissionSet) Apply(change Change, include func(*models.Submission) bool) bool {
	if change.Table != TableSubmissions {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(change.ID)
	switch change.Op {
	case OpInsert:
		// An explicit fetch may already have added the row.
		if idx >= 0 || change.Submission == nil || !include(change.Submission) {
			return false
		}
		s.insert(*change.Submission)
		return true
	case OpUpdate:
		if change.Submission == nil {
			return false
		}
		if !include(change.Submission) {
			if idx < 0 {
				return false
			}
			s.removeAt(idx)
			return true
		}
		if idx >= 0 {
			s.items[idx] = *change.Submission
			return true
		}
		s.insert(*change.Submission)
		return true
	case OpDelete:
		if idx < 0 {
			return false
		}
		s.removeAt(idx)
		return true
	}
	return false
}

func (s *SubmissionSet) Items() []models.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Submission, len(s.items))
	copy(out, s.items)
	return out
}

// Contains reports whether the submission with id is in the set.
func (s *SubmissionSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

func (s *SubmissionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *SubmissionSet) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *SubmissionSet) insert(sub models.Submission) {
	i := sort.Search(len(s.items), func(i int) bool {
		return !s.items[i].CreatedAt.After(sub.CreatedAt)
	})
	s.items = append(s.items, models.Submission{})
	copy(s.items[i+1:], s.items[i:])
	s.items[i] = sub
}

func (s *SubmissionSet) removeAt(i int) {
	s.items = append(s.items[:i], s.items[i+1:]...)
}
