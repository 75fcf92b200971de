package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const resendURL = "https://api.resend.com/emails"

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// ResendMailer delivers through the Resend HTTP API.
type ResendMailer struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	backoffs   []time.Duration
	maxRetries int
}

func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		baseURL: resendURL,
		apiKey:  apiKey,
		from:    from,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		backoffs:   []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		maxRetries: 3,
	}
}

// WithEndpoint points the mailer at another URL and retry schedule.
func (m *ResendMailer) WithEndpoint(url string, backoffs ...time.Duration) *ResendMailer {
	m.baseURL = url
	if backoffs != nil {
		m.backoffs = backoffs
	}
	return m
}

func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	body, err := json.Marshal(resendRequest{
		From:    m.from,
		To:      []string{email.To},
		Subject: email.Subject,
		HTML:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	return m.RetryWithBackoff(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("failed to send email: status %d, body: %s", resp.StatusCode, string(respBody))
		}
		return nil
	}, m.maxRetries)
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func (m *ResendMailer) RetryWithBackoff(fn func() error, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if i < len(m.backoffs) && i < maxRetries-1 {
			time.Sleep(m.backoffs[i])
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// LogMailer only logs. It is used when no mail provider is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.logger.Info("email not sent, no provider configured",
		zap.String("template", string(email.Template)),
		zap.String("order_id", email.OrderID),
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
	)
	return nil
}
