package models

import "time"

// CheckoutRecord is a checkout session the studio opened for an order,
// with the amount it charged at the time.
type CheckoutRecord struct {
	SessionID    string    `json:"sessionId" db:"session_id"`
	SubmissionID string    `json:"submissionId" db:"submission_id"`
	Amount       int64     `json:"amount" db:"amount"`
	ExpiresAt    time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
