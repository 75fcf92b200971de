package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"staging-studio-backend/internal/lifecycle"
)

// ReferenceImage is an extra photo a client attaches to an order.
type ReferenceImage struct {
	URL         string `json:"dataUrl"`
	Description string `json:"description,omitempty"`
}

// ReferenceImages is stored as a jsonb array.
type ReferenceImages []ReferenceImage

func (r ReferenceImages) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

func (r *ReferenceImages) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = ReferenceImages{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported reference_images type %T", src)
	}
	return json.Unmarshal(raw, r)
}

type Submission struct {
	ID               string                  `json:"id" db:"id"`
	OwnerID          string                  `json:"ownerId" db:"owner_id"`
	OwnerEmail       string                  `json:"ownerEmail" db:"owner_email"`
	PlanID           string                  `json:"plan" db:"plan_id"`
	SourceURL        string                  `json:"dataUrl" db:"source_url"`
	FileName         string                  `json:"fileName" db:"file_name"`
	FileSize         int64                   `json:"fileSize" db:"file_size"`
	Instructions     string                  `json:"instructions" db:"instructions"`
	ReferenceImages  ReferenceImages         `json:"referenceImages" db:"reference_images"`
	AssignedEditorID *string                 `json:"assignedEditorId,omitempty" db:"assigned_editor_id"`
	ResultRemoveURL  *string                 `json:"resultRemoveUrl,omitempty" db:"result_remove_url"`
	ResultURL        *string                 `json:"resultAddUrl,omitempty" db:"result_url"`
	Status           lifecycle.Status        `json:"status" db:"status"`
	PaymentStatus    lifecycle.PaymentStatus `json:"paymentStatus" db:"payment_status"`
	QuotedAmount     *int64                  `json:"quotedAmount,omitempty" db:"quoted_amount"`
	RevisionNotes    *string                 `json:"revisionNotes,omitempty" db:"revision_notes"`
	StripeSessionID  *string                 `json:"-" db:"stripe_session_id"`
	CreatedAt        time.Time               `json:"timestamp" db:"created_at"`
	UpdatedAt        time.Time               `json:"updatedAt" db:"updated_at"`
}

// Lifecycle projects the submission onto the state machine.
func (s *Submission) Lifecycle() lifecycle.Order {
	return lifecycle.Order{
		Plan:            lifecycle.KindOf(s.PlanID),
		State:           lifecycle.State{Status: s.Status, Payment: s.PaymentStatus},
		AssignedEditor:  deref(s.AssignedEditorID),
		RemoveResultURL: deref(s.ResultRemoveURL),
		FinalResultURL:  deref(s.ResultURL),
		QuotedAmount:    derefInt(s.QuotedAmount),
		RevisionNotes:   deref(s.RevisionNotes),
	}
}

// Apply copies a state machine result back onto the submission.
func (s *Submission) Apply(o lifecycle.Order) {
	s.Status = o.State.Status
	s.PaymentStatus = o.State.Payment
	s.AssignedEditorID = ref(o.AssignedEditor)
	s.ResultRemoveURL = ref(o.RemoveResultURL)
	s.ResultURL = ref(o.FinalResultURL)
	s.RevisionNotes = ref(o.RevisionNotes)
	if o.QuotedAmount > 0 {
		amount := o.QuotedAmount
		s.QuotedAmount = &amount
	} else {
		s.QuotedAmount = nil
	}
}

// Visible reports whether the submission may be listed at all.
func (s *Submission) Visible() bool {
	return s.PaymentStatus == lifecycle.PaymentPaid || s.PaymentStatus == lifecycle.PaymentQuotePending
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
