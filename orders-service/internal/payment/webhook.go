package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const (
	EventSessionCompleted          = "checkout.session.completed"
	EventSessionAsyncPaymentOK     = "checkout.session.async_payment_succeeded"
	EventSessionAsyncPaymentFailed = "checkout.session.async_payment_failed"
	EventSessionExpired            = "checkout.session.expired"
	EventPaymentIntentFailed       = "payment_intent.payment_failed"
)

// Event is a verified processor notification reduced to what reconciliation needs.
// Actionable is false for event types that carry no order outcome.
type Event struct {
	ID            string
	Type          string
	SessionID     string
	OrderID       string
	Outcome       Outcome
	CustomerEmail string
	Actionable    bool
}

type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance}
}

// Parse authenticates payload against the signature header before reading any of it.
func (v *WebhookVerifier) Parse(payload []byte, signatureHeader string) (Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", order.ErrInvalidSignature, err)
	}

	out := Event{ID: evt.ID, Type: string(evt.Type)}

	switch out.Type {
	case EventSessionCompleted, EventSessionAsyncPaymentOK, EventSessionAsyncPaymentFailed, EventSessionExpired:
		if evt.Data == nil {
			return out, fmt.Errorf("event %s has no data", evt.ID)
		}
		var s stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &s); err != nil {
			return out, fmt.Errorf("decode checkout session: %w", err)
		}
		st := statusOf(&s)
		out.SessionID = st.SessionID
		out.OrderID = st.OrderID
		out.Outcome = st.Outcome
		out.CustomerEmail = st.CustomerEmail
		if out.Type == EventSessionAsyncPaymentFailed || out.Type == EventSessionExpired {
			out.Outcome = OutcomeOther
		}
		out.Actionable = out.OrderID != ""
	case EventPaymentIntentFailed:
		if evt.Data != nil {
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(evt.Data.Raw, &pi); err == nil {
				out.OrderID = pi.Metadata[metaOrderID]
			}
		}
	}

	return out, nil
}
