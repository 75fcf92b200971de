package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"staging-studio-backend/internal/checkout"
	"staging-studio-backend/internal/models"
)

// maxWebhookBytes matches the payload limit Stripe documents for events.
const maxWebhookBytes = 64 << 10

type webhookParser interface {
	ParseWebhook(payload []byte, signature string) (*checkout.Session, error)
}

type sessionReconciler interface {
	ReconcileSession(ctx context.Context, sess *checkout.Session) (*models.ConfirmPaymentResponse, error)
}

type WebhookHandler struct {
	parser     webhookParser
	reconciler sessionReconciler
	logger     *zap.Logger
}

func NewWebhookHandler(parser webhookParser, reconciler sessionReconciler, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{parser: parser, reconciler: reconciler, logger: logger}
}

// HandleStripe godoc
// @Summary     Stripe webhook endpoint
// @Description Receives signed Stripe events. checkout.session.completed settles the referenced order the same way the return URL does; other events are acknowledged and ignored.
// @Tags        webhooks
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature header string true "Stripe signature"
// @Success     200 {object} map[string]string "status"
// @Failure     400 {object} models.ErrorResponse
// @Failure     503 {object} models.ErrorResponse
// @Router      /webhooks/stripe [post]
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read request body", Message: err.Error()})
		return
	}

	sess, err := h.parser.ParseWebhook(body, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, checkout.ErrDisabled) {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "webhooks not configured"})
		return
	}
	if err != nil {
		h.logger.Warn("rejected stripe webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid signature", Message: err.Error()})
		return
	}
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	res, err := h.reconciler.ReconcileSession(c.Request.Context(), sess)
	if err != nil {
		h.logger.Error("failed to reconcile checkout session",
			zap.String("session_id", sess.ID), zap.String("order_id", sess.OrderID), zap.Error(err))
		respondError(c, err)
		return
	}
	status := "ok"
	if res.AlreadyConfirmed {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
