package services

import (
	"context"

	"go.uber.org/zap"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/notify"
)

type planLookup interface {
	PlanByID(ctx context.Context, id string) (*models.Plan, error)
}

// Notifier turns lifecycle notifications into queued emails. It never
// reports failure to the caller.
type Notifier struct {
	plans    planLookup
	composer notify.Composer
	sender   notify.Sender
	logger   *zap.Logger
}

func NewNotifier(plans planLookup, composer notify.Composer, sender notify.Sender, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{plans: plans, composer: composer, sender: sender, logger: logger}
}

func (n *Notifier) Dispatch(ctx context.Context, sub *models.Submission, kind lifecycle.Notification) {
	if n == nil || n.sender == nil || kind == lifecycle.NotifyNone {
		return
	}
	plan, err := n.plans.PlanByID(ctx, sub.PlanID)
	if err != nil {
		n.logger.Warn("plan lookup failed for email", zap.String("plan_id", sub.PlanID), zap.Error(err))
		plan = nil
	}

	var emails []notify.Email
	switch kind {
	case lifecycle.NotifyOrderConfirmed:
		emails, err = n.composer.OrderConfirmed(sub, plan)
	case lifecycle.NotifyQuoteReady:
		emails, err = n.composer.QuoteReady(sub, plan)
	case lifecycle.NotifyDeliveryReady:
		emails, err = n.composer.DeliveryReady(sub, plan)
	}
	if err != nil {
		n.logger.Warn("failed to compose email", zap.String("order_id", sub.ID), zap.Error(err))
		return
	}
	if len(emails) == 0 {
		return
	}
	n.sender.Enqueue(ctx, emails...)
}
