package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/metrics"
	"staging-studio-backend/internal/models"
)

type submissionStore interface {
	ListSubmissions(ctx context.Context) ([]models.Submission, error)
	ListSubmissionsByOwner(ctx context.Context, ownerID string) ([]models.Submission, error)
	ListSubmissionsByEditor(ctx context.Context, editorID string) ([]models.Submission, error)
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	UpdateSubmissionLifecycle(ctx context.Context, sub *models.Submission) error
	DeleteSubmission(ctx context.Context, id string) error
	HasOpenCheckout(ctx context.Context, submissionID string, now time.Time) (bool, error)
}

type dataURLUploader interface {
	UploadDataURL(ctx context.Context, path, file string) (string, error)
}

// DeliveryPath is where the result for slot of an order is stored.
func DeliveryPath(orderID string, slot lifecycle.Slot) string {
	return fmt.Sprintf("results/%s_%s.jpg", orderID, slot)
}

// SubmissionService runs staff lifecycle actions against stored orders.
type SubmissionService struct {
	store    submissionStore
	uploader dataURLUploader
	notifier *Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewSubmissionService(store submissionStore, uploader dataURLUploader, notifier *Notifier, m *metrics.Metrics, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		store:    store,
		uploader: uploader,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ListScoped returns the caller's visible submissions newest first. Read
// failures yield a degraded empty listing.
func (s *SubmissionService) ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission] {
	var (
		subs []models.Submission
		err  error
	)
	switch user.Role {
	case models.RoleAdmin:
		subs, err = s.store.ListSubmissions(ctx)
	case models.RoleEditor:
		subs, err = s.store.ListSubmissionsByEditor(ctx, user.EditorRecordID)
	default:
		subs, err = s.store.ListSubmissionsByOwner(ctx, user.ID)
	}
	if err != nil {
		s.logger.Warn("submission read failed", zap.String("collection", "submissions"), zap.String("role", string(user.Role)), zap.Error(err))
		return models.Failed[models.Submission]()
	}

	visible := make([]models.Submission, 0, len(subs))
	for i := range subs {
		if user.CanSee(&subs[i]) {
			visible = append(visible, subs[i])
		}
	}
	return models.Ok(visible)
}

// Get loads a submission the user may access. Owners see their own orders
// in any payment state; everyone else needs the order in their scope.
func (s *SubmissionService) Get(ctx context.Context, user models.User, id string) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID == user.ID || user.CanSee(sub) {
		return sub, nil
	}
	return nil, apperrors.Clone(apperrors.ErrNotFound, "submission not found")
}

// staffGet loads a submission for a staff action. Editors may only act on
// orders assigned to them.
func (s *SubmissionService) staffGet(ctx context.Context, user models.User, id string, adminOnly bool) (*models.Submission, error) {
	if !user.Role.IsStaff() || (adminOnly && user.Role != models.RoleAdmin) {
		return nil, apperrors.ErrForbidden
	}
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role == models.RoleEditor && (sub.AssignedEditorID == nil || *sub.AssignedEditorID != user.EditorRecordID) {
		return nil, apperrors.Clone(apperrors.ErrForbidden, "order is not assigned to you")
	}
	return sub, nil
}

// transition applies fn, persists the result and dispatches its email.
func (s *SubmissionService) transition(ctx context.Context, action string, sub *models.Submission, fn func(lifecycle.Order) (lifecycle.Outcome, error)) (*models.Submission, error) {
	out, err := fn(sub.Lifecycle())
	if err != nil {
		s.metrics.RecordTransition(action, err)
		return nil, err
	}
	updated := *sub
	updated.Apply(out.Order)
	if err := s.store.UpdateSubmissionLifecycle(ctx, &updated); err != nil {
		s.metrics.RecordTransition(action, err)
		return nil, err
	}
	s.metrics.RecordTransition(action, nil)
	s.logger.Info("submission transition",
		zap.String("action", action),
		zap.String("order_id", updated.ID),
		zap.String("from", string(sub.Status)),
		zap.String("to", string(updated.Status)),
	)
	s.notifier.Dispatch(ctx, &updated, out.Notify)
	return &updated, nil
}

// Assign sets the assigned editor, or clears it when editorID is nil or
// empty.
func (s *SubmissionService) Assign(ctx context.Context, user models.User, id string, editorID *string) (*models.Submission, error) {
	sub, err := s.staffGet(ctx, user, id, true)
	if err != nil {
		return nil, err
	}
	target := ""
	if editorID != nil {
		target = *editorID
	}
	return s.transition(ctx, "assign", sub, func(o lifecycle.Order) (lifecycle.Outcome, error) {
		return lifecycle.Assign(o, target)
	})
}

// Deliver uploads a result image for slot and records it. An upload
// failure aborts the action before anything is written.
func (s *SubmissionService) Deliver(ctx context.Context, user models.User, id, rawSlot, file string) (*models.Submission, error) {
	sub, err := s.staffGet(ctx, user, id, false)
	if err != nil {
		return nil, err
	}
	order := sub.Lifecycle()
	slot, err := lifecycle.ParseSlot(order.Plan, rawSlot)
	if err != nil {
		return nil, err
	}
	// Check the state before uploading so a rejected action leaves no blob.
	if err := lifecycle.Actionable(order); err != nil {
		s.metrics.RecordTransition("deliver", err)
		return nil, err
	}

	url, err := s.uploader.UploadDataURL(ctx, DeliveryPath(sub.ID, slot), file)
	if err != nil {
		s.metrics.RecordTransition("deliver", err)
		return nil, err
	}
	return s.transition(ctx, "deliver", sub, func(o lifecycle.Order) (lifecycle.Outcome, error) {
		return lifecycle.Deliver(o, slot, url)
	})
}

func (s *SubmissionService) Approve(ctx context.Context, user models.User, id string) (*models.Submission, error) {
	sub, err := s.staffGet(ctx, user, id, true)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "approve", sub, lifecycle.Approve)
}

func (s *SubmissionService) Reject(ctx context.Context, user models.User, id, notes string) (*models.Submission, error) {
	sub, err := s.staffGet(ctx, user, id, false)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, "reject", sub, func(o lifecycle.Order) (lifecycle.Outcome, error) {
		return lifecycle.Reject(o, notes)
	})
}

// SetQuote prices a quote order. raw must be a positive integer in minor
// units; anything else is rejected without side effects.
func (s *SubmissionService) SetQuote(ctx context.Context, user models.User, id, raw string) (*models.Submission, error) {
	amount, err := lifecycle.ParseQuoteAmount(raw)
	if err != nil {
		s.metrics.RecordTransition("quote", err)
		return nil, err
	}
	sub, err := s.staffGet(ctx, user, id, false)
	if err != nil {
		return nil, err
	}
	// A payable checkout keeps the amount it was opened for.
	open, err := s.store.HasOpenCheckout(ctx, sub.ID, s.now())
	if err != nil {
		return nil, err
	}
	if open {
		err := apperrors.Clone(apperrors.ErrConflict, "quote is locked while a checkout session is open")
		s.metrics.RecordTransition("quote", err)
		return nil, err
	}
	return s.transition(ctx, "quote", sub, func(o lifecycle.Order) (lifecycle.Outcome, error) {
		return lifecycle.SetQuote(o, amount)
	})
}

func (s *SubmissionService) Delete(ctx context.Context, user models.User, id string) error {
	if user.Role != models.RoleAdmin {
		return apperrors.ErrForbidden
	}
	if err := s.store.DeleteSubmission(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete submission: %w", err)
	}
	s.logger.Info("submission deleted", zap.String("order_id", id), zap.String("by", user.ID))
	return nil
}
