package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"staging-studio-backend/internal/handlers"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/realtime"
)

func chatRouter(user *models.User, chat *stubChat, subs *stubSubmissions, feed *stubFeed) http.Handler {
	h := handlers.NewChatHandler(chat, subs, feed)
	r := newRouter(user)
	r.GET("/chats", h.Chats)
	r.GET("/submissions/:id/messages", h.List)
	r.POST("/submissions/:id/messages", h.Post)
	r.POST("/submissions/:id/messages/read", h.MarkRead)
	r.GET("/submissions/:id/messages/stream", h.Stream)
	return r
}

func TestChatListAndPost(t *testing.T) {
	chat := &stubChat{messages: map[string][]models.Message{
		"a": {{ID: "m1", SubmissionID: "a", SenderID: client.ID, Content: "Hello"}},
	}}
	r := chatRouter(&client, chat, &stubSubmissions{}, &stubFeed{})

	w := doJSON(r, http.MethodGet, "/submissions/a/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[models.Listing[models.Message]](w).Items, 1)

	w = doJSON(r, http.MethodGet, "/submissions/zzz/messages", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPost, "/submissions/a/messages", map[string]string{"content": "Any update?"})
	require.Equal(t, http.StatusCreated, w.Code)
	msg := decode[models.Message](w)
	assert.Equal(t, client.ID, msg.SenderID)

	w = doJSON(r, http.MethodPost, "/submissions/a/messages", map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/submissions/a/messages", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatMarkRead(t *testing.T) {
	chat := &stubChat{}
	r := chatRouter(&admin, chat, &stubSubmissions{}, &stubFeed{})

	w := doJSON(r, http.MethodPost, "/submissions/a/messages/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"a"}, chat.marked)
}

func TestChats_SortedByActivity(t *testing.T) {
	subs := &stubSubmissions{items: []models.Submission{
		paid("quiet", client.ID, lifecycle.StatusPending),
		paid("busy", client.ID, lifecycle.StatusProcessing),
		paid("older", client.ID, lifecycle.StatusCompleted),
	}}
	chat := &stubChat{info: map[string]models.ChatInfo{
		"busy":  {Count: 3, HasUnread: true, LastActivity: created.Add(2 * time.Hour)},
		"older": {Count: 1, LastActivity: created.Add(time.Hour)},
	}}
	r := chatRouter(&client, chat, subs, &stubFeed{})

	w := doJSON(r, http.MethodGet, "/chats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.Listing[handlers.ChatSummary]](w)
	require.Len(t, list.Items, 3)
	assert.Equal(t, "busy", list.Items[0].Submission.ID)
	assert.True(t, list.Items[0].Chat.HasUnread)
	assert.Equal(t, "older", list.Items[1].Submission.ID)
	assert.Equal(t, "quiet", list.Items[2].Submission.ID)
	assert.Zero(t, list.Items[2].Chat.Count)
}

func TestChatStream(t *testing.T) {
	chat := &stubChat{messages: map[string][]models.Message{"a": {}}}
	feed := &stubFeed{changes: []realtime.Change{
		{Table: realtime.TableMessages, Op: realtime.OpInsert, ID: "m1", SubmissionID: "a",
			Message: &models.Message{ID: "m1", SubmissionID: "a", Content: "New sofa uploaded"}},
	}}
	r := chatRouter(&client, chat, &stubSubmissions{}, feed)

	req := httptest.NewRequest(http.MethodGet, "/submissions/a/messages/stream", nil)
	w := newStreamRecorder()
	r.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, []string{realtime.MessagesTopic("a")}, feed.topics)
	assert.Equal(t, 1, strings.Count(body, "event:snapshot"))
	assert.Equal(t, 1, strings.Count(body, "event:message"))
	assert.Contains(t, body, "New sofa uploaded")
}

func TestChatStream_SkipsMessagesInSnapshot(t *testing.T) {
	known := models.Message{ID: "m1", SubmissionID: "a", Content: "Sofa looks great"}
	chat := &stubChat{messages: map[string][]models.Message{"a": {known}}}
	feed := &stubFeed{changes: []realtime.Change{
		{Table: realtime.TableMessages, Op: realtime.OpInsert, ID: "m1", SubmissionID: "a", Message: &known},
		{Table: realtime.TableMessages, Op: realtime.OpInsert, ID: "m2", SubmissionID: "a",
			Message: &models.Message{ID: "m2", SubmissionID: "a", Content: "Can we try a darker rug?"}},
		{Table: realtime.TableMessages, Op: realtime.OpInsert, ID: "m2", SubmissionID: "a",
			Message: &models.Message{ID: "m2", SubmissionID: "a", Content: "Can we try a darker rug?"}},
	}}
	r := chatRouter(&client, chat, &stubSubmissions{}, feed)

	w := newStreamRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/submissions/a/messages/stream", nil))

	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, "event:message"), body)
	assert.Equal(t, 1, strings.Count(body, "Sofa looks great"))
	assert.Equal(t, 1, strings.Count(body, "darker rug"))
}

func TestChatStream_NoAccess(t *testing.T) {
	r := chatRouter(&client, &stubChat{}, &stubSubmissions{}, &stubFeed{})

	w := doJSON(r, http.MethodGet, "/submissions/other/messages/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
