package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/checkout"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/metrics"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/vision"
)

type orderStore interface {
	GetSubmission(ctx context.Context, id string) (*models.Submission, error)
	InsertSubmission(ctx context.Context, sub *models.Submission) error
	MarkSubmissionPaid(ctx context.Context, id, sessionID string, status lifecycle.Status) (bool, error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	RecordCheckout(ctx context.Context, rec *models.CheckoutRecord) error
	GetCheckout(ctx context.Context, sessionID string) (*models.CheckoutRecord, error)
}

type roomAnalyzer interface {
	Analyze(ctx context.Context, imageBase64 string) (string, error)
}

// SourcePath is where the room photo of an order is stored.
func SourcePath(ownerID, orderID string) string {
	return fmt.Sprintf("%s/%s_source.jpg", ownerID, orderID)
}

// ReferencePath is where the i-th reference image of an order is stored.
func ReferencePath(ownerID, orderID string, i int) string {
	return fmt.Sprintf("%s/%s_ref_%d.jpg", ownerID, orderID, i)
}

// OrderingService runs the client side of an order: submission, checkout
// and payment reconciliation.
type OrderingService struct {
	store         orderStore
	plans         planLookup
	uploader      dataURLUploader
	gateway       checkout.Gateway
	analyzer      roomAnalyzer
	notifier      *Notifier
	metrics       *metrics.Metrics
	logger        *zap.Logger
	visionTimeout time.Duration
	now           func() time.Time
}

func NewOrderingService(store orderStore, plans planLookup, uploader dataURLUploader, gateway checkout.Gateway, analyzer roomAnalyzer, notifier *Notifier, m *metrics.Metrics, logger *zap.Logger) *OrderingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderingService{
		store:         store,
		plans:         plans,
		uploader:      uploader,
		gateway:       gateway,
		analyzer:      analyzer,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		visionTimeout: 8 * time.Second,
		now:           time.Now,
	}
}

// CreateOrder uploads the order's images and stores it. Standard plans get
// a checkout session; quote plans are confirmed by email straight away.
func (s *OrderingService) CreateOrder(ctx context.Context, user models.User, req models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	plan, err := s.plans.PlanByID(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Clone(apperrors.ErrValidation, "unknown plan")
		}
		return nil, err
	}
	if !plan.IsVisible {
		return nil, apperrors.Clone(apperrors.ErrValidation, "plan is not available")
	}
	kind := lifecycle.KindOf(plan.ID)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate order id: %w", err)
	}
	orderID := id.String()

	instructions := req.Instructions
	analysis := strings.TrimSpace(req.VisionAnalysis)
	if analysis == "" && kind != lifecycle.PlanQuote {
		analysis = s.bestEffortAnalysis(ctx, req.SourceImage)
	}
	instructions = vision.PrefixInstructions(analysis, instructions)

	sourceURL, err := s.uploader.UploadDataURL(ctx, SourcePath(user.ID, orderID), req.SourceImage)
	if err != nil {
		return nil, err
	}
	refs := make(models.ReferenceImages, 0, len(req.ReferenceImages))
	for i, ref := range req.ReferenceImages {
		url, err := s.uploader.UploadDataURL(ctx, ReferencePath(user.ID, orderID, i), ref.File)
		if err != nil {
			return nil, err
		}
		refs = append(refs, models.ReferenceImage{URL: url, Description: ref.Description})
	}

	initial := lifecycle.New(kind)
	sub := &models.Submission{
		ID:              orderID,
		OwnerID:         user.ID,
		OwnerEmail:      user.Email,
		PlanID:          plan.ID,
		SourceURL:       sourceURL,
		FileName:        req.FileName,
		FileSize:        req.FileSize,
		Instructions:    instructions,
		ReferenceImages: refs,
	}
	sub.Apply(initial.Order)
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("order created",
		zap.String("order_id", sub.ID),
		zap.String("plan_id", sub.PlanID),
		zap.String("status", string(sub.Status)),
		zap.String("payment_status", string(sub.PaymentStatus)),
	)

	if kind == lifecycle.PlanQuote {
		s.notifier.Dispatch(ctx, sub, initial.Notify)
		return &models.CreateOrderResponse{Submission: *sub}, nil
	}

	title, amount, err := s.expectedAmount(ctx, sub)
	if err != nil {
		return nil, err
	}
	sess, err := s.createSession(ctx, title, amount, sub)
	if err != nil {
		return nil, err
	}
	return &models.CreateOrderResponse{Submission: *sub, CheckoutURL: sess.URL}, nil
}

func (s *OrderingService) bestEffortAnalysis(ctx context.Context, image string) string {
	if s.analyzer == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.visionTimeout)
	defer cancel()
	text, err := s.AnalyzeRoom(ctx, image)
	if err != nil {
		s.logger.Warn("vision analysis skipped", zap.Error(err))
		return ""
	}
	return text
}

// createSession opens a checkout and records the amount it charges, which
// settles the order later regardless of repricing in between.
func (s *OrderingService) createSession(ctx context.Context, title string, amount int64, sub *models.Submission) (*checkout.Session, error) {
	if title == "" {
		title = "Staging Service"
	}
	sess, err := s.gateway.CreateSession(ctx, checkout.Request{
		PlanTitle: title,
		Amount:    amount,
		OrderID:   sub.ID,
		UserEmail: sub.OwnerEmail,
	})
	if err != nil {
		return nil, apperrors.WithCause(apperrors.ErrCheckout, err)
	}
	if sess.URL == "" {
		return nil, apperrors.Clone(apperrors.ErrCheckout, "checkout session has no url")
	}
	expires := sess.ExpiresAt
	if expires.IsZero() {
		expires = s.now().Add(checkout.SessionLifetime)
	}
	rec := &models.CheckoutRecord{SessionID: sess.ID, SubmissionID: sub.ID, Amount: amount, ExpiresAt: expires}
	if err := s.store.RecordCheckout(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record checkout session: %w", err)
	}
	return sess, nil
}

// ownOrder loads an order of the caller.
func (s *OrderingService) ownOrder(ctx context.Context, user models.User, id string) (*models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != user.ID && user.Role != models.RoleAdmin {
		return nil, apperrors.Clone(apperrors.ErrNotFound, "submission not found")
	}
	return sub, nil
}

// expectedAmount prices an order from the stored plan row, bypassing the
// catalog cache.
func (s *OrderingService) expectedAmount(ctx context.Context, sub *models.Submission) (string, int64, error) {
	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return "", 0, err
	}
	amount, err := lifecycle.ChargeAmount(sub.Lifecycle(), plan.Amount)
	if err != nil {
		return "", 0, err
	}
	return plan.Title, amount, nil
}

// CheckoutSession opens a checkout for an existing order of the caller.
// The amount is always computed from the order, never taken from the
// request.
func (s *OrderingService) CheckoutSession(ctx context.Context, user models.User, req models.CheckoutSessionRequest) (string, error) {
	if req.OrderID == "" {
		return "", apperrors.Clone(apperrors.ErrValidation, "orderId is required")
	}
	sub, err := s.ownOrder(ctx, user, req.OrderID)
	if err != nil {
		return "", err
	}
	if sub.PaymentStatus == lifecycle.PaymentPaid {
		return "", apperrors.Clone(apperrors.ErrConflict, "order is already paid")
	}
	title, amount, err := s.expectedAmount(ctx, sub)
	if err != nil {
		return "", err
	}
	if req.PlanTitle != "" {
		title = req.PlanTitle
	}
	if req.Amount != 0 && req.Amount != amount {
		s.logger.Warn("checkout amount overridden", zap.String("order_id", sub.ID), zap.Int64("requested", req.Amount), zap.Int64("charged", amount))
	}
	sess, err := s.createSession(ctx, title, amount, sub)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// PayQuote opens a checkout for exactly the quoted amount.
func (s *OrderingService) PayQuote(ctx context.Context, user models.User, id string) (string, error) {
	sub, err := s.ownOrder(ctx, user, id)
	if err != nil {
		return "", err
	}
	if lifecycle.KindOf(sub.PlanID) != lifecycle.PlanQuote || sub.PaymentStatus != lifecycle.PaymentQuotePending {
		return "", apperrors.Clone(apperrors.ErrInvalidTransition, "order is not awaiting quote payment")
	}
	if sub.QuotedAmount == nil || *sub.QuotedAmount <= 0 {
		return "", apperrors.Clone(apperrors.ErrInvalidTransition, "order has not been quoted yet")
	}
	title, amount, err := s.expectedAmount(ctx, sub)
	if err != nil {
		return "", err
	}
	sess, err := s.createSession(ctx, title, amount, sub)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// ConfirmPayment reconciles the return from checkout. It is idempotent on
// the session id: repeating it changes nothing and sends no email.
func (s *OrderingService) ConfirmPayment(ctx context.Context, user models.User, id string, req models.ConfirmPaymentRequest) (*models.ConfirmPaymentResponse, error) {
	if req.Payment != "success" {
		return nil, apperrors.Clone(apperrors.ErrValidation, "payment was not completed")
	}
	sub, err := s.ownOrder(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if done, ok := alreadyPaid(sub, req.SessionID); ok {
		return done, nil
	} else if sub.PaymentStatus == lifecycle.PaymentPaid {
		return nil, apperrors.ErrPaymentMismatch
	}

	sess, err := s.gateway.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, apperrors.WithCause(apperrors.ErrCheckout, err)
	}
	return s.settle(ctx, sub, sess)
}

// ReconcileSession settles the order referenced by a completed checkout
// delivered by webhook.
func (s *OrderingService) ReconcileSession(ctx context.Context, sess *checkout.Session) (*models.ConfirmPaymentResponse, error) {
	if sess == nil || sess.OrderID == "" {
		return nil, apperrors.Clone(apperrors.ErrValidation, "session does not reference an order")
	}
	sub, err := s.store.GetSubmission(ctx, sess.OrderID)
	if err != nil {
		return nil, err
	}
	if done, ok := alreadyPaid(sub, sess.ID); ok {
		return done, nil
	} else if sub.PaymentStatus == lifecycle.PaymentPaid {
		return nil, apperrors.ErrPaymentMismatch
	}
	return s.settle(ctx, sub, sess)
}

func alreadyPaid(sub *models.Submission, sessionID string) (*models.ConfirmPaymentResponse, bool) {
	if sub.PaymentStatus == lifecycle.PaymentPaid && sub.StripeSessionID != nil && *sub.StripeSessionID == sessionID {
		return &models.ConfirmPaymentResponse{Submission: *sub, AlreadyConfirmed: true}, true
	}
	return nil, false
}

// chargedAmount is the amount the session was opened for. Sessions without
// a record are priced as the order is now.
func (s *OrderingService) chargedAmount(ctx context.Context, sub *models.Submission, sessionID string) (int64, error) {
	rec, err := s.store.GetCheckout(ctx, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		_, amount, err := s.expectedAmount(ctx, sub)
		return amount, err
	} else if err != nil {
		return 0, err
	}
	if rec.SubmissionID != sub.ID {
		return 0, apperrors.ErrPaymentMismatch
	}
	return rec.Amount, nil
}

// settle verifies the session against the order and marks it paid once.
func (s *OrderingService) settle(ctx context.Context, sub *models.Submission, sess *checkout.Session) (*models.ConfirmPaymentResponse, error) {
	if sess.OrderID != sub.ID {
		s.logger.Warn("checkout session for another order",
			zap.String("order_id", sub.ID),
			zap.String("session_id", sess.ID),
			zap.String("session_order_id", sess.OrderID),
		)
		return nil, apperrors.ErrPaymentMismatch
	}
	amount, err := s.chargedAmount(ctx, sub, sess.ID)
	if err != nil {
		return nil, err
	}
	if !sess.Paid || sess.AmountTotal != amount {
		s.logger.Warn("checkout session mismatch",
			zap.String("order_id", sub.ID),
			zap.String("session_id", sess.ID),
			zap.Bool("paid", sess.Paid),
			zap.Int64("expected", amount),
			zap.Int64("total", sess.AmountTotal),
		)
		return nil, apperrors.ErrPaymentMismatch
	}

	out, err := lifecycle.MarkPaid(sub.Lifecycle())
	s.metrics.RecordTransition("pay", err)
	if err != nil {
		return nil, err
	}
	changed, err := s.store.MarkSubmissionPaid(ctx, sub.ID, sess.ID, out.Order.State.Status)
	if err != nil {
		return nil, err
	}
	fresh, err := s.store.GetSubmission(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		// A concurrent confirmation won the race and sent the email.
		return &models.ConfirmPaymentResponse{Submission: *fresh, AlreadyConfirmed: true}, nil
	}
	s.logger.Info("order paid", zap.String("order_id", fresh.ID), zap.String("session_id", sess.ID))
	s.notifier.Dispatch(ctx, fresh, out.Notify)
	return &models.ConfirmPaymentResponse{Submission: *fresh}, nil
}

// AnalyzeRoom prepares the image and asks the vision model about it.
func (s *OrderingService) AnalyzeRoom(ctx context.Context, imageBase64 string) (string, error) {
	if s.analyzer == nil {
		return "", vision.ErrDisabled
	}
	prepared, err := vision.PrepareImage(imageBase64)
	if err != nil {
		return "", err
	}
	return s.analyzer.Analyze(ctx, prepared)
}

// Upload stores a data URL for the caller. Clients may only write under
// their own prefix; staff may write anywhere.
func (s *OrderingService) Upload(ctx context.Context, user models.User, path, file string) (string, error) {
	if path == "" || file == "" {
		return "", apperrors.Clone(apperrors.ErrValidation, "Missing path or file")
	}
	if !user.Role.IsStaff() && !strings.HasPrefix(strings.TrimLeft(path, "/"), user.ID+"/") {
		return "", apperrors.Clone(apperrors.ErrForbidden, "path is outside your upload area")
	}
	return s.uploader.UploadDataURL(ctx, path, file)
}
