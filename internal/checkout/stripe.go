// Package checkout creates and verifies hosted payment sessions.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const EventSessionCompleted = "checkout.session.completed"

// SessionLifetime is how long a checkout session stays payable. The
// provider accepts at most 24 hours.
const SessionLifetime = 23 * time.Hour

// ErrDisabled is returned when no payment provider is configured.
var ErrDisabled = errors.New("payments are not configured")

// ProviderError carries the payment provider's own description of a
// rejected request.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

func providerError(op string, err error) error {
	msg := err.Error()
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		msg = se.Msg
	}
	return &ProviderError{Message: msg, Err: fmt.Errorf("%s: %w", op, err)}
}

type Request struct {
	PlanTitle string
	Amount    int64
	OrderID   string
	UserEmail string
}

// Session is the part of a provider session the studio relies on.
type Session struct {
	ID          string
	URL         string
	OrderID     string
	Paid        bool
	AmountTotal int64
	Currency    string
	ExpiresAt   time.Time
}

type Gateway interface {
	CreateSession(ctx context.Context, req Request) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

type StripeClient struct {
	api           *client.API
	secretKey     string
	currency      string
	baseURL       string
	webhookSecret string
}

func NewStripeClient(secretKey, webhookSecret, currency, baseURL string) *StripeClient {
	var api *client.API
	if secretKey != "" {
		api = &client.API{}
		api.Init(secretKey, nil)
	}
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeClient{
		api:           api,
		secretKey:     secretKey,
		currency:      strings.ToLower(currency),
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		webhookSecret: webhookSecret,
	}
}

// WithAPIURL points the client at another API host.
func (s *StripeClient) WithAPIURL(apiURL string) *StripeClient {
	if s.api == nil {
		return s
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(apiURL),
		MaxNetworkRetries: stripe.Int64(0),
	})
	s.api = &client.API{}
	s.api.Init(s.secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return s
}

func (s *StripeClient) Enabled() bool {
	return s.api != nil
}

// CreateSession opens a one-item payment session. The browser returns to
// the landing page with payment, session_id and order_id query parameters.
func (s *StripeClient) CreateSession(ctx context.Context, req Request) (*Session, error) {
	if s.api == nil {
		return nil, ErrDisabled
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(s.ReturnURL("success", req.OrderID) + "&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.ReturnURL("cancel", req.OrderID)),
		ExpiresAt:         stripe.Int64(time.Now().Add(SessionLifetime).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.PlanTitle),
					},
					UnitAmount: stripe.Int64(req.Amount),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.UserEmail != "" {
		params.CustomerEmail = stripe.String(req.UserEmail)
	}
	params.AddMetadata("orderId", req.OrderID)
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, providerError("failed to create checkout session", err)
	}
	return fromStripe(sess), nil
}

func (s *StripeClient) GetSession(ctx context.Context, id string) (*Session, error) {
	if s.api == nil {
		return nil, ErrDisabled
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := s.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, providerError("failed to get checkout session", err)
	}
	return fromStripe(sess), nil
}

// ParseWebhook verifies a signed event. It returns a nil session for
// events other than a completed checkout.
func (s *StripeClient) ParseWebhook(payload []byte, signature string) (*Session, error) {
	if s.webhookSecret == "" {
		return nil, ErrDisabled
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify webhook: %w", err)
	}
	if string(event.Type) != EventSessionCompleted {
		return nil, nil
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return fromStripe(&sess), nil
}

func (s *StripeClient) ReturnURL(outcome, orderID string) string {
	q := url.Values{}
	q.Set("payment", outcome)
	q.Set("order_id", orderID)
	return s.baseURL + "/?" + q.Encode()
}

func fromStripe(sess *stripe.CheckoutSession) *Session {
	orderID := sess.ClientReferenceID
	if orderID == "" && sess.Metadata != nil {
		orderID = sess.Metadata["orderId"]
	}
	var expires time.Time
	if sess.ExpiresAt > 0 {
		expires = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return &Session{
		ID:          sess.ID,
		URL:         sess.URL,
		OrderID:     orderID,
		Paid:        sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal: sess.AmountTotal,
		Currency:    string(sess.Currency),
		ExpiresAt:   expires,
	}
}
