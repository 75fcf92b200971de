// Package lifecycle holds the order state machine. It is pure: callers load
// an Order, ask for an Outcome and persist whatever changed.
package lifecycle

import (
	"fmt"

	"staging-studio-backend/internal/apperrors"
)

// Status is the fulfilment axis of an order.
type Status string

const (
	StatusQuoteRequest Status = "quote_request"
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusReviewing    Status = "reviewing"
	StatusCompleted    Status = "completed"
)

// PaymentStatus is the payment axis of an order.
type PaymentStatus string

const (
	PaymentUnpaid       PaymentStatus = "unpaid"
	PaymentQuotePending PaymentStatus = "quote_pending"
	PaymentPaid         PaymentStatus = "paid"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusQuoteRequest, StatusPending, StatusProcessing, StatusReviewing, StatusCompleted:
		return s, nil
	}
	return "", apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch p := PaymentStatus(raw); p {
	case PaymentUnpaid, PaymentQuotePending, PaymentPaid:
		return p, nil
	}
	return "", apperrors.Clone(apperrors.ErrValidation, fmt.Sprintf("unknown payment status %q", raw))
}

// State is a valid pairing of the two axes. Build it with Combine.
type State struct {
	Status  Status
	Payment PaymentStatus
}

// Combine pairs a status with a payment status and rejects combinations the
// order lifecycle can never reach:
//
//	unpaid        -> pending or quote_request only
//	quote_pending -> anything but completed
//	paid          -> anything but quote_request
func Combine(status Status, payment PaymentStatus) (State, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return State{}, err
	}
	if _, err := ParsePaymentStatus(string(payment)); err != nil {
		return State{}, err
	}

	ok := true
	switch payment {
	case PaymentUnpaid:
		ok = status == StatusPending || status == StatusQuoteRequest
	case PaymentQuotePending:
		ok = status != StatusCompleted
	case PaymentPaid:
		ok = status != StatusQuoteRequest
	}
	if !ok {
		return State{}, apperrors.Clone(apperrors.ErrInvalidTransition,
			fmt.Sprintf("status %s is not allowed while payment is %s", status, payment))
	}
	return State{Status: status, Payment: payment}, nil
}

// Visible reports whether the order may appear in any listing. Unpaid
// orders never do.
func (s State) Visible() bool {
	return s.Payment == PaymentPaid || s.Payment == PaymentQuotePending
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s.Status == StatusCompleted
}
