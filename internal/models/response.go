package models

import "time"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// MessageResponse is the error shape of the passthrough endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type SessionResponse struct {
	User        User                `json:"user"`
	Submissions Listing[Submission] `json:"submissions"`
}

type SubmissionResponse struct {
	Submission
	EstimatedDelivery time.Time `json:"estimatedDelivery"`
}

type CreateOrderResponse struct {
	Submission Submission `json:"submission"`
	// CheckoutURL is empty for quote orders.
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

type ConfirmPaymentResponse struct {
	Submission Submission `json:"submission"`
	// AlreadyConfirmed is set when the session had been reconciled before.
	AlreadyConfirmed bool `json:"alreadyConfirmed"`
}

type UploadResponse struct {
	URL string `json:"url"`
}

type AnalyzeRoomResponse struct {
	Analysis string `json:"analysis"`
}
