package confirmation

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/pkg/contracts"

	"github.com/shopspring/decimal"
)

//go:embed templates/*
var templatesFS embed.FS

var (
	htmlTmpl = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/order_confirmation.html"))
	textTmpl = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/order_confirmation.txt"))
)

type lineView struct {
	Name     string
	Price    string
	Quantity int
	Subtotal string
}

type orderView struct {
	OrderID string
	Date    string
	Total   string
	Items   []lineView
}

// Rendered is the confirmation email for one order.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

func Render(evt contracts.OrderPaidEvent) (Rendered, error) {
	view := orderView{
		OrderID: evt.OrderID,
		Date:    orderDate(evt).Format("2 Jan 2006, 15:04 MST"),
		Total:   formatMoney(evt.TotalCents, evt.Currency),
		Items:   make([]lineView, 0, len(evt.Items)),
	}
	for _, it := range evt.Items {
		view.Items = append(view.Items, lineView{
			Name:     it.Name,
			Price:    formatMoney(it.PriceCents, evt.Currency),
			Quantity: it.Quantity,
			Subtotal: formatMoney(it.PriceCents*int64(it.Quantity), evt.Currency),
		})
	}

	var html, text bytes.Buffer
	if err := htmlTmpl.Execute(&html, view); err != nil {
		return Rendered{}, err
	}
	if err := textTmpl.Execute(&text, view); err != nil {
		return Rendered{}, err
	}
	return Rendered{
		Subject: "Order Confirmation #" + evt.OrderID,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func orderDate(evt contracts.OrderPaidEvent) time.Time {
	if !evt.CreatedAt.IsZero() {
		return evt.CreatedAt.UTC()
	}
	return evt.PaidAt.UTC()
}

func formatMoney(cents int64, currency string) string {
	amount := decimal.New(cents, -2).StringFixed(2)
	switch strings.ToLower(currency) {
	case "eur", "":
		return "€" + amount
	case "usd":
		return "$" + amount
	case "gbp":
		return "£" + amount
	default:
		return strings.ToUpper(currency) + " " + amount
	}
}
