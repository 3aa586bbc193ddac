package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Outcome is the processor's view of a session's payment.
type Outcome string

const (
	OutcomePaid   Outcome = "paid"
	OutcomeUnpaid Outcome = "unpaid"
	OutcomeOther  Outcome = "other"
)

const (
	metaOrderID = "orderId"
	metaUserID  = "userId"
)

type LineItem struct {
	Name       string
	ImageURL   string
	UnitAmount order.Money
	Quantity   int
}

type SessionRequest struct {
	OrderID       string
	UserID        string
	CustomerEmail string
	Currency      string
	Items         []LineItem
	SuccessURL    string
	CancelURL     string
}

type Session struct {
	ID  string
	URL string
}

type SessionStatus struct {
	SessionID string
	OrderID   string
	Outcome   Outcome
	// CustomerEmail is the address the buyer entered on the hosted page, if any.
	CustomerEmail string
}

type Processor interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	LookupSession(ctx context.Context, sessionID string) (SessionStatus, error)
}

// StripeProcessor talks to Stripe Checkout through its own client instance.
type StripeProcessor struct {
	sc *client.API
}

func NewStripeProcessor(secretKey string, backends *stripe.Backends) *StripeProcessor {
	return &StripeProcessor{sc: client.New(secretKey, backends)}
}

func (p *StripeProcessor) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, it := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(it.Name),
		}
		if it.ImageURL != "" {
			product.Images = []*string{stripe.String(it.ImageURL)}
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(int64(it.UnitAmount)),
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}

	metadata := map[string]string{
		metaOrderID: req.OrderID,
		metaUserID:  req.UserID,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         lineItems,
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	// one session per order
	params.SetIdempotencyKey("checkout-" + req.OrderID)

	s, err := p.sc.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, fmt.Errorf("%w: create checkout session: %w", order.ErrProcessorUnavailable, err)
	}
	return Session{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProcessor) LookupSession(ctx context.Context, sessionID string) (SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return SessionStatus{}, classifyLookupError(err)
	}
	return statusOf(s), nil
}

func classifyLookupError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %w", order.ErrSessionMismatch, err)
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", order.ErrProcessorUnavailable, err)
		default:
			return fmt.Errorf("lookup checkout session: %w", err)
		}
	}
	return fmt.Errorf("%w: %w", order.ErrProcessorUnavailable, err)
}

func statusOf(s *stripe.CheckoutSession) SessionStatus {
	orderID := s.Metadata[metaOrderID]
	if orderID == "" {
		orderID = s.ClientReferenceID
	}
	email := s.CustomerEmail
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		email = s.CustomerDetails.Email
	}
	return SessionStatus{
		SessionID:     s.ID,
		OrderID:       orderID,
		Outcome:       sessionOutcome(s),
		CustomerEmail: email,
	}
}

func sessionOutcome(s *stripe.CheckoutSession) Outcome {
	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return OutcomePaid
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return OutcomeOther
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid:
		return OutcomeUnpaid
	default:
		return OutcomeOther
	}
}
