package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// Hint carries an operator instruction, such as a migration statement.
	Hint string `json:"hint,omitempty"`
	Err  error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so wrapped clones still compare equal to the
// predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

var (
	ErrNotFound          = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden         = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized      = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict          = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation        = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal          = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "transition not allowed in current state")
	ErrTerminal          = New("ORDER_COMPLETED", http.StatusConflict, "order is completed")
	ErrNotActionable     = New("ORDER_UNPAID", http.StatusConflict, "order is not paid yet")
	ErrInvalidQuote      = New("INVALID_QUOTE", http.StatusBadRequest, "quoted amount must be a positive integer")
	ErrReferenced        = New("REFERENCED", http.StatusConflict, "record is referenced by other records")
	ErrPlanReferenced    = New("PLAN_REFERENCED", http.StatusConflict, "plan is referenced by existing orders; hide it with the visibility toggle instead")
	ErrSchemaMissing     = New("SCHEMA_MISSING", http.StatusServiceUnavailable, "database schema is missing a required table or column")
	ErrUpload            = New("UPLOAD_FAILED", http.StatusBadGateway, "upload failed")
	ErrCheckout          = New("CHECKOUT_FAILED", http.StatusBadGateway, "checkout session could not be created")
	ErrPaymentMismatch   = New("PAYMENT_MISMATCH", http.StatusConflict, "checkout session does not match the order")
	ErrSuperseded        = New("SUPERSEDED", http.StatusConflict, "a newer session resolution replaced this one")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithCause returns a copy of err wrapping cause.
func WithCause(err *Error, cause error) *Error {
	clone := Clone(err, "")
	if clone != nil {
		clone.Err = cause
	}
	return clone
}
