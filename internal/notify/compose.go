package notify

import (
	"fmt"
	"strings"
	"time"

	"staging-studio-backend/internal/lifecycle"
	"staging-studio-backend/internal/models"
)

// Email is one rendered message ready for a Mailer.
type Email struct {
	Template Template `json:"template"`
	OrderID  string   `json:"orderId"`
	To       string   `json:"to"`
	Subject  string   `json:"subject"`
	HTML     string   `json:"html"`
}

// Composer builds the emails for each lifecycle event.
type Composer struct {
	StudioEmail  string
	ActionURL    string
	DeliveryDays int
	// Location formats order dates; UTC when nil.
	Location *time.Location
}

// OrderConfirmed is sent to the client and the studio when a quote is
// requested or a standard order is paid.
func (c Composer) OrderConfirmed(sub *models.Submission, plan *models.Plan) ([]Email, error) {
	data := c.base(sub, plan)
	quote := lifecycle.KindOf(sub.PlanID) == lifecycle.PlanQuote && sub.PaymentStatus == lifecycle.PaymentQuotePending
	clientSubject := "Order Confirmation: " + sub.ID
	studioSubject := "New Paid Order: " + sub.ID
	if quote {
		data.Price = "Custom Quote (Requested)"
		data.Delivery = "TBD (Quote Pending)"
		clientSubject = "Quote Request Received: " + sub.ID
		studioSubject = "New Quote Request: " + sub.ID
	} else {
		if plan != nil && plan.Price != "" {
			data.Price = plan.Price
		} else {
			data.Price = "Paid"
		}
		due := lifecycle.EstimatedDeliveryDate(sub.CreatedAt, c.DeliveryDays)
		data.Delivery = fmt.Sprintf("%s (%d Business Days)", due.In(c.location()).Format("2006/01/02"), c.DeliveryDays)
	}

	html, err := Render(OrderConfirmed, data)
	if err != nil {
		return nil, err
	}
	emails := []Email{}
	if sub.OwnerEmail != "" {
		emails = append(emails, Email{Template: OrderConfirmed, OrderID: sub.ID, To: sub.OwnerEmail, Subject: clientSubject, HTML: html})
	}
	if c.StudioEmail != "" {
		emails = append(emails, Email{Template: OrderConfirmed, OrderID: sub.ID, To: c.StudioEmail, Subject: studioSubject, HTML: html})
	}
	return emails, nil
}

// QuoteReady tells the client the quoted amount.
func (c Composer) QuoteReady(sub *models.Submission, plan *models.Plan) ([]Email, error) {
	if sub.OwnerEmail == "" || sub.QuotedAmount == nil {
		return nil, nil
	}
	data := c.base(sub, plan)
	if plan == nil {
		data.PlanName = "3D Modeling"
	}
	data.Amount = lifecycle.FormatAmount(*sub.QuotedAmount)
	html, err := Render(QuoteReady, data)
	if err != nil {
		return nil, err
	}
	return []Email{{Template: QuoteReady, OrderID: sub.ID, To: sub.OwnerEmail, Subject: "Quote Ready: " + sub.ID, HTML: html}}, nil
}

// DeliveryReady tells the client the results are uploaded. The thumbnail
// is the final result.
func (c Composer) DeliveryReady(sub *models.Submission, plan *models.Plan) ([]Email, error) {
	if sub.OwnerEmail == "" || sub.ResultURL == nil || *sub.ResultURL == "" {
		return nil, nil
	}
	data := c.base(sub, plan)
	data.Thumbnail = *sub.ResultURL
	html, err := Render(DeliveryReady, data)
	if err != nil {
		return nil, err
	}
	return []Email{{Template: DeliveryReady, OrderID: sub.ID, To: sub.OwnerEmail, Subject: "Results Ready: " + sub.ID, HTML: html}}, nil
}

func (c Composer) base(sub *models.Submission, plan *models.Plan) Data {
	name := "Staging Service"
	if plan != nil && plan.Title != "" {
		name = plan.Title
	}
	return Data{
		OrderID:   sub.ID,
		PlanName:  name,
		Date:      sub.CreatedAt.In(c.location()).Format("2006/01/02 15:04"),
		Thumbnail: thumbnail(sub.SourceURL),
		ActionURL: c.ActionURL,
	}
}

func (c Composer) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Inline data URLs are too large for mail clients.
func thumbnail(url string) string {
	if strings.HasPrefix(url, "data:") {
		return ""
	}
	return url
}
