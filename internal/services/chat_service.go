package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/models"
)

type chatStore interface {
	ListMessages(ctx context.Context, submissionID string) ([]models.Message, error)
	ListAllMessages(ctx context.Context) ([]models.Message, error)
	InsertMessage(ctx context.Context, m *models.Message) error
	UpsertReadMark(ctx context.Context, userID, submissionID string, at time.Time) error
	ListReadMarks(ctx context.Context, userID string) (map[string]time.Time, error)
}

type submissionAccess interface {
	Get(ctx context.Context, user models.User, id string) (*models.Submission, error)
}

// ChatService is the per-order conversation between client and staff.
type ChatService struct {
	store  chatStore
	access submissionAccess
	logger *zap.Logger
	now    func() time.Time
}

func NewChatService(store chatStore, access submissionAccess, logger *zap.Logger) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{store: store, access: access, logger: logger, now: time.Now}
}

// Messages lists a conversation oldest first.
func (s *ChatService) Messages(ctx context.Context, user models.User, submissionID string) (models.Listing[models.Message], error) {
	if _, err := s.access.Get(ctx, user, submissionID); err != nil {
		return models.Listing[models.Message]{}, err
	}
	msgs, err := s.store.ListMessages(ctx, submissionID)
	if err != nil {
		s.logger.Warn("message read failed", zap.String("collection", "messages"), zap.String("submission_id", submissionID), zap.Error(err))
		return models.Failed[models.Message](), nil
	}
	return models.Ok(msgs), nil
}

// Post appends a message. Messages are never edited or deleted.
func (s *ChatService) Post(ctx context.Context, user models.User, submissionID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Clone(apperrors.ErrValidation, "message is empty")
	}
	if _, err := s.access.Get(ctx, user, submissionID); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	msg := &models.Message{
		ID:           id.String(),
		SubmissionID: submissionID,
		SenderID:     user.ID,
		SenderName:   DisplayName(user),
		SenderRole:   user.Role,
		Content:      content,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	// Your own message never counts as unread.
	if err := s.store.UpsertReadMark(ctx, user.ID, submissionID, msg.CreatedAt); err != nil {
		s.logger.Warn("failed to advance read mark", zap.String("submission_id", submissionID), zap.Error(err))
	}
	return msg, nil
}

// MarkRead moves the caller's watermark for the conversation to now.
func (s *ChatService) MarkRead(ctx context.Context, user models.User, submissionID string) error {
	if _, err := s.access.Get(ctx, user, submissionID); err != nil {
		return err
	}
	return s.store.UpsertReadMark(ctx, user.ID, submissionID, s.now().UTC())
}

// Summaries computes chat info for subs as seen by user. The bool is true
// when a read failed and the result is incomplete.
func (s *ChatService) Summaries(ctx context.Context, user models.User, subs []models.Submission) (map[string]models.ChatInfo, bool) {
	msgs, err := s.store.ListAllMessages(ctx)
	if err != nil {
		s.logger.Warn("message read failed", zap.String("collection", "messages"), zap.Error(err))
		return map[string]models.ChatInfo{}, true
	}
	marks, err := s.store.ListReadMarks(ctx, user.ID)
	degraded := false
	if err != nil {
		s.logger.Warn("read mark read failed", zap.String("collection", "chat_read_marks"), zap.Error(err))
		marks = map[string]time.Time{}
		degraded = true
	}
	return ChatInfos(subs, msgs, marks, user), degraded
}

// ChatInfos aggregates messages per submission in subs. A message is
// unread when it comes from the other side of the conversation and is
// newer than the viewer's watermark.
func ChatInfos(subs []models.Submission, msgs []models.Message, marks map[string]time.Time, viewer models.User) map[string]models.ChatInfo {
	inScope := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		inScope[sub.ID] = struct{}{}
	}
	info := make(map[string]models.ChatInfo)
	for i := range msgs {
		msg := &msgs[i]
		if _, ok := inScope[msg.SubmissionID]; !ok {
			continue
		}
		ci := info[msg.SubmissionID]
		ci.Count++
		if ci.LastMessage == nil || msg.CreatedAt.After(ci.LastMessage.CreatedAt) {
			ci.LastMessage = msg
			ci.LastActivity = msg.CreatedAt
		}
		if fromCounterpart(viewer, msg) && msg.CreatedAt.After(marks[msg.SubmissionID]) {
			ci.HasUnread = true
		}
		info[msg.SubmissionID] = ci
	}
	return info
}

func fromCounterpart(viewer models.User, msg *models.Message) bool {
	if viewer.Role.IsStaff() {
		return msg.SenderRole == models.RoleUser
	}
	return msg.SenderRole.IsStaff()
}

// SortByActivity orders subs by latest message, newest first. Submissions
// without messages keep their relative order at the end.
func SortByActivity(subs []models.Submission, info map[string]models.ChatInfo) {
	sort.SliceStable(subs, func(i, j int) bool {
		return info[subs[i].ID].LastActivity.After(info[subs[j].ID].LastActivity)
	})
}

// DisplayName is the local part of the user's email.
func DisplayName(user models.User) string {
	if user.Name != "" {
		return user.Name
	}
	if i := strings.IndexByte(user.Email, '@'); i > 0 {
		return user.Email[:i]
	}
	return user.Email
}
