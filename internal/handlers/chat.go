package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/realtime"
	"staging-studio-backend/internal/services"
)

type chatService interface {
	Messages(ctx context.Context, user models.User, submissionID string) (models.Listing[models.Message], error)
	Post(ctx context.Context, user models.User, submissionID, content string) (*models.Message, error)
	MarkRead(ctx context.Context, user models.User, submissionID string) error
	Summaries(ctx context.Context, user models.User, subs []models.Submission) (map[string]models.ChatInfo, bool)
}

type scopedLister interface {
	ListScoped(ctx context.Context, user models.User) models.Listing[models.Submission]
}

type ChatHandler struct {
	chat        chatService
	submissions scopedLister
	feed        Subscriber
	heartbeat   time.Duration
}

func NewChatHandler(chat chatService, submissions scopedLister, feed Subscriber) *ChatHandler {
	return &ChatHandler{chat: chat, submissions: submissions, feed: feed, heartbeat: 25 * time.Second}
}

// ChatSummary pairs an order with its conversation summary.
type ChatSummary struct {
	Submission models.Submission `json:"submission"`
	Chat       models.ChatInfo   `json:"chat"`
}

// List godoc
// @Summary     List messages of an order
// @Tags        chat
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Success     200 {object} models.Listing[models.Message]
// @Failure     404 {object} models.ErrorResponse
// @Router      /submissions/{id}/messages [get]
func (h *ChatHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	msgs, err := h.chat.Messages(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Post godoc
// @Summary     Send a message
// @Tags        chat
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Param       request body models.PostMessageRequest true "Message"
// @Success     201 {object} models.Message
// @Failure     400 {object} models.ErrorResponse
// @Failure     404 {object} models.ErrorResponse
// @Router      /submissions/{id}/messages [post]
func (h *ChatHandler) Post(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.chat.Post(c.Request.Context(), user, c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead godoc
// @Summary     Mark a conversation read
// @Tags        chat
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Success     204
// @Failure     404 {object} models.ErrorResponse
// @Router      /submissions/{id}/messages/read [post]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.chat.MarkRead(c.Request.Context(), user, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Chats godoc
// @Summary     Conversations of the caller's orders
// @Description Orders in scope with their chat summary, most recent activity first.
// @Tags        chat
// @Produce     json
// @Security    Bearer
// @Success     200 {object} models.Listing[ChatSummary]
// @Router      /chats [get]
func (h *ChatHandler) Chats(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	subs := h.submissions.ListScoped(ctx, user)
	info, degraded := h.chat.Summaries(ctx, user, subs.Items)
	services.SortByActivity(subs.Items, info)

	out := make([]ChatSummary, 0, len(subs.Items))
	for _, s := range subs.Items {
		out = append(out, ChatSummary{Submission: s, Chat: info[s.ID]})
	}
	c.JSON(http.StatusOK, models.Listing[ChatSummary]{Items: out, Degraded: subs.Degraded || degraded})
}

// Stream godoc
// @Summary     Stream a conversation
// @Description Server-sent events: a snapshot of the conversation, then one message event per new message. The token may be passed as access_token.
// @Tags        chat
// @Produce     text/event-stream
// @Security    Bearer
// @Param       id path string true "Submission ID"
// @Success     200
// @Failure     404 {object} models.ErrorResponse
// @Router      /submissions/{id}/messages/stream [get]
func (h *ChatHandler) Stream(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	changes, unsubscribe := h.feed.Subscribe(ctx, realtime.MessagesTopic(id))
	defer unsubscribe()
	initial, err := h.chat.Messages(ctx, user, id)
	if err != nil {
		respondError(c, err)
		return
	}

	seen := make(map[string]struct{}, len(initial.Items))
	for _, msg := range initial.Items {
		seen[msg.ID] = struct{}{}
	}

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
			if change.Message == nil {
				return true
			}
			// Messages written between subscribing and the snapshot read
			// arrive twice.
			if _, dup := seen[change.Message.ID]; dup {
				return true
			}
			seen[change.Message.ID] = struct{}{}
			c.SSEvent("message", change.Message)
			return true
		case <-ticker.C:
			c.SSEvent(realtime.EventHeartbeat, gin.H{"timestamp": time.Now().UTC()})
			return true
		}
	})
}
