package lifecycle

import (
	"fmt"
	"strconv"
	"strings"

	"staging-studio-backend/internal/apperrors"
)

// Notification is a side effect the caller must dispatch after persisting
// an Outcome. Delivery of notifications never affects the persisted state.
type Notification int

const (
	NotifyNone Notification = iota
	NotifyOrderConfirmed
	NotifyQuoteReady
	NotifyDeliveryReady
)

// Order is the slice of a submission the state machine reads and writes.
type Order struct {
	Plan            PlanKind
	State           State
	AssignedEditor  string
	RemoveResultURL string
	FinalResultURL  string
	QuotedAmount    int64
	RevisionNotes   string
}

// Outcome is the order after a transition plus the notification it triggers.
type Outcome struct {
	Order  Order
	Notify Notification
}

// New returns the initial order for a plan kind.
func New(kind PlanKind) Outcome {
	if kind == PlanQuote {
		return Outcome{
			Order:  Order{Plan: kind, State: State{Status: StatusQuoteRequest, Payment: PaymentQuotePending}},
			Notify: NotifyOrderConfirmed,
		}
	}
	return Outcome{Order: Order{Plan: kind, State: State{Status: StatusPending, Payment: PaymentUnpaid}}}
}

// Actionable reports whether staff may act on the order at all.
func Actionable(o Order) error {
	if o.State.Terminal() {
		return apperrors.ErrTerminal
	}
	if !o.State.Visible() {
		return apperrors.ErrNotActionable
	}
	return nil
}

func (o Order) withStatus(s Status) (Order, error) {
	st, err := Combine(s, o.State.Payment)
	if err != nil {
		return o, err
	}
	o.State = st
	return o, nil
}

// deliveryNotice fires when a transition lands in reviewing or completed
// and the final result is present.
func deliveryNotice(o Order) Notification {
	if (o.State.Status == StatusReviewing || o.State.Status == StatusCompleted) && o.FinalResultURL != "" {
		return NotifyDeliveryReady
	}
	return NotifyNone
}

// Assign sets or clears the assigned editor. Assigning moves the order to
// processing; clearing always returns it to pending.
func Assign(o Order, editorID string) (Outcome, error) {
	if err := Actionable(o); err != nil {
		return Outcome{}, err
	}
	editorID = strings.TrimSpace(editorID)

	next := StatusProcessing
	if editorID == "" {
		next = StatusPending
	}
	n, err := o.withStatus(next)
	if err != nil {
		return Outcome{}, err
	}
	n.AssignedEditor = editorID
	return Outcome{Order: n}, nil
}

// Deliver records a result URL in a slot. A dual plan reaches reviewing only
// once both results exist; until then it sits in processing.
func Deliver(o Order, slot Slot, url string) (Outcome, error) {
	if err := Actionable(o); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(url) == "" {
		return Outcome{}, apperrors.Clone(apperrors.ErrValidation, "result url is required")
	}
	if _, err := ParseSlot(o.Plan, string(slot)); err != nil {
		return Outcome{}, err
	}

	n := o
	switch slot {
	case SlotRemove:
		n.RemoveResultURL = url
	default:
		n.FinalResultURL = url
	}

	next := StatusReviewing
	if n.Plan == PlanDual && (n.RemoveResultURL == "" || n.FinalResultURL == "") {
		next = StatusProcessing
	}
	n, err := n.withStatus(next)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Order: n, Notify: deliveryNotice(n)}, nil
}

// Approve completes a reviewed order.
func Approve(o Order) (Outcome, error) {
	if err := Actionable(o); err != nil {
		return Outcome{}, err
	}
	if o.State.Status != StatusReviewing {
		return Outcome{}, apperrors.Clone(apperrors.ErrInvalidTransition,
			fmt.Sprintf("only reviewing orders can be approved, order is %s", o.State.Status))
	}
	n, err := o.withStatus(StatusCompleted)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Order: n, Notify: deliveryNotice(n)}, nil
}

// Reject sends a reviewed order back to processing with revision notes.
func Reject(o Order, notes string) (Outcome, error) {
	if err := Actionable(o); err != nil {
		return Outcome{}, err
	}
	if o.State.Status != StatusReviewing {
		return Outcome{}, apperrors.Clone(apperrors.ErrInvalidTransition,
			fmt.Sprintf("only reviewing orders can be rejected, order is %s", o.State.Status))
	}
	n, err := o.withStatus(StatusProcessing)
	if err != nil {
		return Outcome{}, err
	}
	n.RevisionNotes = strings.TrimSpace(notes)
	return Outcome{Order: n}, nil
}

// SetQuote prices a quote-plan order awaiting its quote.
func SetQuote(o Order, amount int64) (Outcome, error) {
	if err := Actionable(o); err != nil {
		return Outcome{}, err
	}
	if o.Plan != PlanQuote || o.State.Payment != PaymentQuotePending {
		return Outcome{}, apperrors.Clone(apperrors.ErrInvalidTransition, "order is not awaiting a quote")
	}
	if amount <= 0 {
		return Outcome{}, apperrors.ErrInvalidQuote
	}
	n := o
	n.QuotedAmount = amount
	return Outcome{Order: n, Notify: NotifyQuoteReady}, nil
}

// ParseQuoteAmount parses staff input in minor units.
func ParseQuoteAmount(raw string) (int64, error) {
	amount, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || amount <= 0 {
		return 0, apperrors.ErrInvalidQuote
	}
	return amount, nil
}

// ChargeAmount is what the client must pay for the order. planAmount is the
// catalogue price of the order's plan.
func ChargeAmount(o Order, planAmount int64) (int64, error) {
	if o.Plan == PlanQuote {
		if o.QuotedAmount <= 0 {
			return 0, apperrors.Clone(apperrors.ErrInvalidTransition, "order has not been quoted yet")
		}
		return o.QuotedAmount, nil
	}
	return planAmount, nil
}

// MarkPaid settles payment. Quote requests become pending. Marking an
// already paid order is a no-op without notification.
func MarkPaid(o Order) (Outcome, error) {
	if o.State.Payment == PaymentPaid {
		return Outcome{Order: o}, nil
	}
	if o.Plan == PlanQuote && o.QuotedAmount <= 0 {
		return Outcome{}, apperrors.Clone(apperrors.ErrInvalidTransition, "order has not been quoted yet")
	}

	status := o.State.Status
	if status == StatusQuoteRequest {
		status = StatusPending
	}
	st, err := Combine(status, PaymentPaid)
	if err != nil {
		return Outcome{}, err
	}
	n := o
	n.State = st
	return Outcome{Order: n, Notify: NotifyOrderConfirmed}, nil
}
