package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"staging-studio-backend/internal/apperrors"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/metrics"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/realtime"
	"staging-studio-backend/internal/services"
)

// maxDeliveryBytes caps a multipart delivery upload.
const maxDeliveryBytes = 25 << 20

type submissionService interface {
	ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission]
	Get(ctx context.Context, user models.User, id string) (*models.Submission, error)
	Assign(ctx context.Context, user models.User, id string, editorID *string) (*models.Submission, error)
	Deliver(ctx context.Context, user models.User, id, slot, file string) (*models.Submission, error)
	Approve(ctx context.Context, user models.User, id string) (*models.Submission, error)
	Reject(ctx context.Context, user models.User, id, notes string) (*models.Submission, error)
	SetQuote(ctx context.Context, user models.User, id, raw string) (*models.Submission, error)
	Delete(ctx context.Context, user models.User, id string) error
}

type dashboardBuilder interface {
	BuildView(ctx context.Context, user models.User, q services.DashboardQuery) (*services.DashboardView, error)
}

// Subscriber is the change feed a stream listens on.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan realtime.Change, func())
}

type SubmissionsHandler struct {
	submissions  submissionService
	dashboard    dashboardBuilder
	feed         Subscriber
	metrics      *metrics.Metrics
	logger       *zap.Logger
	deliveryDays int
	heartbeat    time.Duration
}

func NewSubmissionsHandler(submissions submissionService, dashboard dashboardBuilder, feed Subscriber, m *metrics.Metrics, logger *zap.Logger, deliveryDays int) *SubmissionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionsHandler{
		submissions:  submissions,
		dashboard:    dashboard,
		feed:         feed,
		metrics:      m,
		logger:       logger,
		deliveryDays: deliveryDays,
		heartbeat:    25 * time.Second,
	}
}

// List godoc
// @Summary     List submissions
// @Description Lists the caller's submissions newest first: everything for admins, assigned orders for editors, own orders for clients. Unpaid orders are never listed. A failed read returns an empty list with degraded=true.
// @Tags        submissions
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.Listing[models.Submission]
// @Failure     401 {object} models.ErrorResponse
// @Router      /submissions [get]
func (h *SubmissionsHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.submissions.ListScoped(c.Request.Context(), user))
}

// Get godoc
// @Summary     Get a submission
// @Tags        submissions
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Success     200 {object} models.SubmissionResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /submissions/{id} [get]
func (h *SubmissionsHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sub, err := h.submissions.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SubmissionResponse{
		Submission:        *sub,
		EstimatedDelivery: lifecycle.EstimatedDeliveryDate(sub.CreatedAt, h.deliveryDays),
	})
}

// Stream godoc
// @Summary     Stream submission changes
// @Description Server-sent events. A "snapshot" event carries the scoped list, then "upsert" and "remove" events follow row changes, "message" events announce new chat messages on listed orders and "heartbeat" keeps the connection open.
// @Tags        submissions
// @Produce     text/event-stream
// @Security    Bearer
// @Router      /submissions/stream [get]
func (h *SubmissionsHandler) Stream(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Subscribe before the snapshot read so rows written during it arrive
	// as changes; the set drops inserts it already holds.
	changes, unsubscribe := h.feed.Subscribe(ctx, realtime.TopicSubmissions)
	defer unsubscribe()
	defer h.metrics.StreamOpened()()
	initial := h.submissions.ListScoped(ctx, user)
	set := realtime.NewSubmissionSet(initial.Items)

	prepareStream(c)
	c.SSEvent("snapshot", initial)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case change, ok := <-changes:
			if !ok {
				return false
			}
			switch change.Table {
			case realtime.TableSubmissions:
				if set.Apply(change, user.CanSee) {
					event := "remove"
					if set.Contains(change.ID) {
						event = "upsert"
					}
					c.SSEvent(event, change)
				}
			case realtime.TableMessages:
				if set.Contains(change.SubmissionID) {
					c.SSEvent("message", change)
				}
			}
			return true
		case <-ticker.C:
			c.SSEvent(realtime.EventHeartbeat, gin.H{"timestamp": time.Now().UTC()})
			return true
		}
	})
}

func prepareStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// Dashboard godoc
// @Summary     Staff dashboard
// @Description Builds the staff view. filter is one of all, pending, processing, reviewing, completed, comments, archive or plans; the last three switch the view mode. mine restricts to orders assigned to the caller and defaults to true for editors.
// @Tags        dashboard
// @Produce     json
// @Security    Bearer
// @Param       filter query string false "View filter" default(all)
// @Param       mine query bool false "Only my assignments"
// @Success     200 {object} services.DashboardView
// @Failure     400 {object} models.ErrorResponse
// @Failure     403 {object} models.ErrorResponse
// @Router      /dashboard [get]
func (h *SubmissionsHandler) Dashboard(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	filter, err := services.ParseDashboardFilter(c.Query("filter"))
	if err != nil {
		respondError(c, err)
		return
	}
	q := services.DashboardQuery{Filter: filter}
	if raw := c.Query("mine"); raw != "" {
		mine, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, apperrors.Clone(apperrors.ErrValidation, "mine must be a boolean"))
			return
		}
		q.Mine = &mine
	}
	view, err := h.dashboard.BuildView(c.Request.Context(), user, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Assign godoc
// @Summary     Assign an editor
// @Description Sets the assigned editor and moves the order to processing. An empty or null editorId clears the assignment and returns the order to pending.
// @Tags        staff
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Param       request body models.AssignRequest true "Editor"
// @Success     200 {object} models.Submission
// @Failure     403 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /submissions/{id}/assignment [put]
func (h *SubmissionsHandler) Assign(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, func(ctx context.Context) (*models.Submission, error) {
		return h.submissions.Assign(ctx, user, c.Param("id"), req.EditorID)
	})
}

// Deliver godoc
// @Summary     Upload a result
// @Description Uploads the result image for a slot (remove, add or single depending on the plan) and recomputes the status. Accepts multipart form field "file" or JSON {file: dataURL}.
// @Tags        staff
// @Accept      multipart/form-data
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Param       slot path string true "Deliverable slot"
// @Param       file formData file false "Result image"
// @Success     200 {object} models.Submission
// @Failure     400 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /submissions/{id}/deliveries/{slot} [post]
func (h *SubmissionsHandler) Deliver(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	file, err := deliveryFile(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	h.respond(c, func(ctx context.Context) (*models.Submission, error) {
		return h.submissions.Deliver(ctx, user, c.Param("id"), c.Param("slot"), file)
	})
}

// deliveryFile reads the upload as a data URL from either body format.
func deliveryFile(c *gin.Context) (string, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("missing file: %w", err)
		}
		if header.Size > maxDeliveryBytes {
			return "", fmt.Errorf("file exceeds %d bytes", maxDeliveryBytes)
		}
		f, err := header.Open()
		if err != nil {
			return "", err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxDeliveryBytes))
		if err != nil {
			return "", err
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}

	var req models.DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return "", err
	}
	return req.File, nil
}

// Approve godoc
// @Summary     Approve a reviewed order
// @Tags        staff
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Success     200 {object} models.Submission
// @Failure     403 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /submissions/{id}/approve [post]
func (h *SubmissionsHandler) Approve(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	h.respond(c, func(ctx context.Context) (*models.Submission, error) {
		return h.submissions.Approve(ctx, user, c.Param("id"))
	})
}

// Reject godoc
// @Summary     Request a revision
// @Description Sends a reviewed order back to processing. The notes are stored on the order, not posted as a message.
// @Tags        staff
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Param       request body models.RejectRequest false "Revision notes"
// @Success     200 {object} models.Submission
// @Failure     409 {object} models.ErrorResponse
// @Router      /submissions/{id}/reject [post]
func (h *SubmissionsHandler) Reject(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	h.respond(c, func(ctx context.Context) (*models.Submission, error) {
		return h.submissions.Reject(ctx, user, c.Param("id"), req.Notes)
	})
}

// SetQuote godoc
// @Summary     Set the quoted amount
// @Description Prices a quote-plan order in minor currency units and emails the client.
// @Tags        staff
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Param       request body models.QuoteRequest true "Amount"
// @Success     200 {object} models.Submission
// @Failure     400 {object} models.ErrorResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /submissions/{id}/quote [put]
func (h *SubmissionsHandler) SetQuote(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.WithCause(apperrors.ErrInvalidQuote, err))
		return
	}
	h.respond(c, func(ctx context.Context) (*models.Submission, error) {
		return h.submissions.SetQuote(ctx, user, c.Param("id"), req.Amount.String())
	})
}

// Delete godoc
// @Summary     Delete a submission
// @Tags        staff
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Success     204
// @Failure     403 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /submissions/{id} [delete]
func (h *SubmissionsHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.submissions.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SubmissionsHandler) respond(c *gin.Context, fn func(context.Context) (*models.Submission, error)) {
	sub, err := fn(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}
