package services

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/models"
)

type DashboardFilter string

const (
	FilterAll        DashboardFilter = "all"
	FilterPending    DashboardFilter = "pending"
	FilterProcessing DashboardFilter = "processing"
	FilterReviewing  DashboardFilter = "reviewing"
	FilterCompleted  DashboardFilter = "completed"
	FilterComments   DashboardFilter = "comments"
	FilterArchive    DashboardFilter = "archive"
	FilterPlans      DashboardFilter = "plans"
)

// DashboardMode is what the dashboard shows for a filter.
type DashboardMode string

const (
	ModeSubmissions DashboardMode = "submissions"
	ModeComments    DashboardMode = "comments"
	ModeArchive     DashboardMode = "archive"
	ModePlans       DashboardMode = "plans"
)

func ParseDashboardFilter(raw string) (DashboardFilter, error) {
	switch f := DashboardFilter(raw); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterPending, FilterProcessing, FilterReviewing, FilterCompleted,
		FilterComments, FilterArchive, FilterPlans:
		return f, nil
	}
	return "", apperrors.Clone(apperrors.ErrValidation, "unknown filter "+strconv.Quote(raw))
}

func (f DashboardFilter) Mode() DashboardMode {
	switch f {
	case FilterComments:
		return ModeComments
	case FilterArchive:
		return ModeArchive
	case FilterPlans:
		return ModePlans
	}
	return ModeSubmissions
}

type DashboardQuery struct {
	Filter DashboardFilter
	// Mine restricts to orders assigned to the caller. Nil means the
	// default, which is on for editors.
	Mine *bool
}

type DashboardStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
}

type DashboardView struct {
	Mode        DashboardMode              `json:"mode"`
	Filter      DashboardFilter            `json:"filter"`
	Mine        bool                       `json:"mine"`
	Stats       DashboardStats             `json:"stats"`
	Submissions []models.Submission        `json:"submissions"`
	Chats       map[string]models.ChatInfo `json:"chats"`
	Archive     []models.ArchiveProject    `json:"archive,omitempty"`
	Plans       []models.Plan              `json:"plans,omitempty"`
	Editors     []models.Editor            `json:"editors"`
	Degraded    bool                       `json:"degraded,omitempty"`
}

type scopedLister interface {
	ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission]
}

type chatSummarizer interface {
	Summaries(ctx context.Context, user models.User, subs []models.Submission) (map[string]models.ChatInfo, bool)
}

type catalogReader interface {
	Plans(ctx context.Context) models.Listing[models.Plan]
	Archive(ctx context.Context) models.Listing[models.ArchiveProject]
	Editors(ctx context.Context) models.Listing[models.Editor]
}

// DashboardService builds the staff dashboard views.
type DashboardService struct {
	submissions scopedLister
	chats       chatSummarizer
	catalog     catalogReader
	logger      *zap.Logger
}

func NewDashboardService(submissions scopedLister, chats chatSummarizer, catalog catalogReader, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{submissions: submissions, chats: chats, catalog: catalog, logger: logger}
}

func (s *DashboardService) BuildView(ctx context.Context, user models.User, q DashboardQuery) (*DashboardView, error) {
	if !user.Role.IsStaff() {
		return nil, apperrors.ErrForbidden
	}
	mine := user.Role == models.RoleEditor
	if q.Mine != nil {
		mine = *q.Mine
	}
	filter := q.Filter
	if filter == "" {
		filter = FilterAll
	}

	scoped := s.submissions.ListScoped(ctx, user)
	editors := s.catalog.Editors(ctx)
	view := &DashboardView{
		Mode:     filter.Mode(),
		Filter:   filter,
		Mine:     mine,
		Stats:    ComputeStats(scoped.Items),
		Chats:    map[string]models.ChatInfo{},
		Editors:  editors.Items,
		Degraded: scoped.Degraded || editors.Degraded,
	}

	switch view.Mode {
	case ModeArchive:
		archive := s.catalog.Archive(ctx)
		view.Archive = archive.Items
		view.Degraded = view.Degraded || archive.Degraded
		view.Submissions = []models.Submission{}
		return view, nil
	case ModePlans:
		plans := s.catalog.Plans(ctx)
		view.Plans = plans.Items
		view.Degraded = view.Degraded || plans.Degraded
		view.Submissions = []models.Submission{}
		return view, nil
	}

	subs := OnlyMine(scoped.Items, user, mine)
	chats, degraded := s.chats.Summaries(ctx, user, subs)
	view.Chats = chats
	view.Degraded = view.Degraded || degraded
	view.Submissions = FilterSubmissions(subs, filter, chats)
	return view, nil
}

// OnlyMine keeps visible submissions and, when mine is set and the user
// has an editor record, those assigned to it.
func OnlyMine(subs []models.Submission, user models.User, mine bool) []models.Submission {
	out := make([]models.Submission, 0, len(subs))
	for _, sub := range subs {
		if !sub.Visible() {
			continue
		}
		if mine && user.EditorRecordID != "" &&
			(sub.AssignedEditorID == nil || *sub.AssignedEditorID != user.EditorRecordID) {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// FilterSubmissions applies a submission-mode or comments filter.
func FilterSubmissions(subs []models.Submission, filter DashboardFilter, chats map[string]models.ChatInfo) []models.Submission {
	out := make([]models.Submission, 0, len(subs))
	switch filter {
	case FilterComments:
		for _, sub := range subs {
			if chats[sub.ID].Count > 0 {
				out = append(out, sub)
			}
		}
		SortByActivity(out, chats)
	case FilterPending, FilterProcessing, FilterReviewing, FilterCompleted:
		for _, sub := range subs {
			if sub.Status == lifecycle.Status(filter) {
				out = append(out, sub)
			}
		}
	default:
		out = append(out, subs...)
	}
	return out
}

// ComputeStats counts over paid and quote_pending submissions only.
func ComputeStats(subs []models.Submission) DashboardStats {
	var st DashboardStats
	for _, sub := range subs {
		if !sub.Visible() {
			continue
		}
		st.Total++
		switch sub.Status {
		case lifecycle.StatusPending:
			st.Pending++
		case lifecycle.StatusProcessing:
			st.Processing++
		case lifecycle.StatusCompleted:
			st.Completed++
		}
	}
	return st
}
