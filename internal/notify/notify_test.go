package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/models"
	"staging-studio-backend/internal/notify"
)

func strPtr(s string) *string { return &s }

func composer() notify.Composer {
	return notify.Composer{StudioEmail: "studio@example.com", ActionURL: "https://app.example.com", DeliveryDays: 3}
}

func TestRenderEscapesInput(t *testing.T) {
	html, err := notify.Render(notify.OrderConfirmed, notify.Data{OrderID: "<script>", PlanName: "Add"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")

	_, err = notify.Render("unknown", notify.Data{})
	assert.Error(t, err)
}

func TestComposer_OrderConfirmedPaid(t *testing.T) {
	sub := &models.Submission{
		ID:            "ord-1",
		OwnerEmail:    "client@example.com",
		PlanID:        lifecycle.PlanFurnitureAdd,
		PaymentStatus: lifecycle.PaymentPaid,
		SourceURL:     "https://cdn.example.com/u/ord-1_source.jpg",
		CreatedAt:     time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC),
	}
	plan := &models.Plan{ID: lifecycle.PlanFurnitureAdd, Title: "Furniture Add", Price: "$35"}

	emails, err := composer().OrderConfirmed(sub, plan)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, "client@example.com", emails[0].To)
	assert.Equal(t, "Order Confirmation: ord-1", emails[0].Subject)
	assert.Equal(t, "studio@example.com", emails[1].To)
	assert.Equal(t, "New Paid Order: ord-1", emails[1].Subject)
	assert.Contains(t, emails[0].HTML, "2024/05/21 (3 Business Days)")
	assert.Contains(t, emails[0].HTML, "$35")
}

func TestComposer_OrderConfirmedQuote(t *testing.T) {
	sub := &models.Submission{
		ID:            "ord-2",
		OwnerEmail:    "client@example.com",
		PlanID:        lifecycle.PlanFloorPlan,
		PaymentStatus: lifecycle.PaymentQuotePending,
		CreatedAt:     time.Now(),
	}
	emails, err := composer().OrderConfirmed(sub, nil)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, "Quote Request Received: ord-2", emails[0].Subject)
	assert.Equal(t, "New Quote Request: ord-2", emails[1].Subject)
	assert.Contains(t, emails[0].HTML, "Custom Quote (Requested)")
	assert.Contains(t, emails[0].HTML, "TBD (Quote Pending)")
}

func TestComposer_QuoteAndDelivery(t *testing.T) {
	amount := int64(5000)
	sub := &models.Submission{ID: "ord-3", OwnerEmail: "client@example.com", QuotedAmount: &amount, CreatedAt: time.Now()}

	emails, err := composer().QuoteReady(sub, nil)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Contains(t, emails[0].HTML, "$ 50.00")
	assert.Equal(t, notify.QuoteReady, emails[0].Template)

	emails, err = composer().DeliveryReady(sub, nil)
	require.NoError(t, err)
	assert.Empty(t, emails, "no final result, no delivery email")

	sub.ResultURL = strPtr("https://cdn.example.com/results/ord-3_single.jpg")
	emails, err = composer().DeliveryReady(sub, nil)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "Results Ready: ord-3", emails[0].Subject)
	assert.Contains(t, emails[0].HTML, "ord-3_single.jpg")
}

func TestResendMailer_RetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "Studio <noreply@example.com>", payload["from"])
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	mailer := notify.NewResendMailer("key", "Studio <noreply@example.com>").WithEndpoint(server.URL, time.Millisecond)
	err := mailer.Send(context.Background(), notify.Email{To: "a@example.com", Subject: "s", HTML: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestResendMailer_RetryWithBackoffExhausted(t *testing.T) {
	mailer := notify.NewResendMailer("key", "from").WithEndpoint("http://unused", time.Millisecond, time.Millisecond)
	attempts := 0
	err := mailer.RetryWithBackoff(func() error {
		attempts++
		return errors.New("temporary error")
	}, 3)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, strings.Contains(err.Error(), "failed after 3 retries"))
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Email
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, e notify.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return m.err
}

type countingRecorder struct {
	mu  sync.Mutex
	ok  int
	bad int
}

func (r *countingRecorder) RecordEmail(template string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.ok++
	} else {
		r.bad++
	}
}

func TestAsyncSender_DeliversAndDrainsOnClose(t *testing.T) {
	mailer := &recordingMailer{}
	rec := &countingRecorder{}
	sender := notify.NewAsyncSender(mailer, 2, nil, rec)

	sender.Enqueue(context.Background(), notify.Email{To: "a"}, notify.Email{To: "b"})
	sender.Close()

	assert.Len(t, mailer.sent, 2)
	assert.Equal(t, 2, rec.ok)

	sender.Enqueue(context.Background(), notify.Email{To: "late"})
	assert.Len(t, mailer.sent, 2)
}

func TestAsyncSender_FailureIsSwallowed(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("provider down")}
	rec := &countingRecorder{}
	sender := notify.NewAsyncSender(mailer, 1, nil, rec)

	sender.Enqueue(context.Background(), notify.Email{To: "a"})
	sender.Close()

	assert.Equal(t, 1, rec.bad)
}

type stubPublisher struct {
	bodies [][]byte
	err    error
}

func (p *stubPublisher) Publish(ctx context.Context, body []byte) error {
	p.bodies = append(p.bodies, body)
	return p.err
}

type stubAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *stubAck) Ack(multiple bool) error { a.acked = true; return nil }
func (a *stubAck) Nack(multiple, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func TestQueueSenderAndWorkerRoundTrip(t *testing.T) {
	pub := &stubPublisher{}
	notify.NewQueueSender(pub, nil).Enqueue(context.Background(), notify.Email{Template: notify.QuoteReady, OrderID: "ord-9", To: "c@example.com"})
	require.Len(t, pub.bodies, 1)

	mailer := &recordingMailer{}
	worker := notify.NewWorker(mailer, 1, nil, nil)
	ack := &stubAck{}
	worker.Handle(context.Background(), pub.bodies[0], ack)

	assert.True(t, ack.acked)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "ord-9", mailer.sent[0].OrderID)
}

func TestWorker_DiscardsBadMessages(t *testing.T) {
	worker := notify.NewWorker(&recordingMailer{}, 1, nil, nil)
	ack := &stubAck{}
	worker.Handle(context.Background(), []byte("{"), ack)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)

	failing := notify.NewWorker(&recordingMailer{err: errors.New("down")}, 1, nil, nil)
	ack = &stubAck{}
	failing.Handle(context.Background(), []byte(`{"to":"x"}`), ack)
	assert.True(t, ack.nacked)
}
