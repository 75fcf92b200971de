// Package notify renders and delivers the studio's transactional emails.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

type Template string

const (
	OrderConfirmed Template = "order_confirmed"
	QuoteReady     Template = "quote_ready"
	DeliveryReady  Template = "delivery_ready"
)

// Data fills every template. Fields a template does not use are ignored.
type Data struct {
	OrderID   string
	PlanName  string
	Price     string
	Amount    string
	Date      string
	Delivery  string
	Thumbnail string
	ActionURL string
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="margin:0;background:#f8fafc;font-family:Helvetica,Arial,sans-serif;color:#0f172a">
<table width="100%" cellpadding="0" cellspacing="0"><tr><td align="center" style="padding:40px 16px">
<table width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:16px;padding:40px">
<tr><td>
<h1 style="font-size:20px;letter-spacing:2px;text-transform:uppercase;margin:0 0 24px">{{template "title" .}}</h1>
{{if .Thumbnail}}<img src="{{.Thumbnail}}" alt="" width="480" style="border-radius:12px;display:block;margin-bottom:24px">{{end}}
<table width="100%" style="font-size:14px;line-height:22px">
<tr><td style="color:#64748b">Order ID</td><td align="right"><strong>{{.OrderID}}</strong></td></tr>
<tr><td style="color:#64748b">Plan</td><td align="right">{{.PlanName}}</td></tr>
{{template "rows" .}}
</table>
{{template "body" .}}
{{if .ActionURL}}<p style="margin-top:32px"><a href="{{.ActionURL}}" style="background:#0f172a;color:#ffffff;padding:14px 28px;border-radius:10px;text-decoration:none;font-size:12px;letter-spacing:2px;text-transform:uppercase">{{template "cta" .}}</a></p>{{end}}
</td></tr></table>
</td></tr></table>
</body></html>{{end}}`

var sources = map[Template]string{
	OrderConfirmed: `{{define "title"}}Order Confirmed{{end}}
{{define "rows"}}<tr><td style="color:#64748b">Price</td><td align="right">{{.Price}}</td></tr>
<tr><td style="color:#64748b">Ordered</td><td align="right">{{.Date}}</td></tr>
<tr><td style="color:#64748b">Estimated delivery</td><td align="right">{{.Delivery}}</td></tr>{{end}}
{{define "body"}}<p style="font-size:14px;line-height:22px">Thank you. Our editors have received your request.</p>{{end}}
{{define "cta"}}Open Dashboard{{end}}`,
	QuoteReady: `{{define "title"}}Your Quote Is Ready{{end}}
{{define "rows"}}<tr><td style="color:#64748b">Quoted amount</td><td align="right"><strong>{{.Amount}}</strong></td></tr>{{end}}
{{define "body"}}<p style="font-size:14px;line-height:22px">Review the quote and complete payment to start production.</p>{{end}}
{{define "cta"}}Pay Now{{end}}`,
	DeliveryReady: `{{define "title"}}Results Ready{{end}}
{{define "rows"}}<tr><td style="color:#64748b">Ordered</td><td align="right">{{.Date}}</td></tr>{{end}}
{{define "body"}}<p style="font-size:14px;line-height:22px">Your staged images are ready to download.</p>{{end}}
{{define "cta"}}View Results{{end}}`,
}

var templates = func() map[Template]*template.Template {
	out := make(map[Template]*template.Template, len(sources))
	for name, src := range sources {
		t := template.Must(template.New(string(name)).Parse(layout))
		out[name] = template.Must(t.Parse(src))
	}
	return out
}()

// Render executes the named template.
func Render(name Template, data Data) (string, error) {
	t, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
