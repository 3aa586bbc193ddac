package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/metrics"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/payment"
)

// Channel names the path a processor outcome arrived through.
type Channel string

const (
	ChannelWebhook Channel = "webhook"
	ChannelReturn  Channel = "return"
	ChannelSweep   Channel = "sweep"
	ChannelCLI     Channel = "cli"
)

const notifyTimeout = 5 * time.Second

type Store interface {
	Get(ctx context.Context, orderID string) (*order.Order, error)
	GetForUser(ctx context.Context, userID, orderID string) (*order.Order, error)
	Transition(ctx context.Context, orderID string, to order.Status) (*order.Order, bool, error)
	RecordAnomaly(ctx context.Context, a order.Anomaly) error
	FillCustomerEmail(ctx context.Context, orderID, email string) error
	ListStalePending(ctx context.Context, cutoff time.Time, after order.StaleCursor, limit int) ([]order.Order, error)
}

type Notifier interface {
	OrderPaid(ctx context.Context, o *order.Order) error
}

type Broadcaster interface {
	BroadcastOrderUpdate(orderID string, status string)
}

type WebhookParser interface {
	Parse(payload []byte, signatureHeader string) (payment.Event, error)
}

// Result describes what a reconciliation call did to the order.
type Result struct {
	Order    *order.Order
	Applied  bool
	Conflict bool
}

// Engine applies processor outcomes to orders. Every entry point funnels into Reconcile.
type Engine struct {
	store     Store
	processor payment.Processor
	webhooks  WebhookParser
	notifier  Notifier
	broadcast Broadcaster
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewEngine(store Store, processor payment.Processor, webhooks WebhookParser, notifier Notifier, broadcast Broadcaster, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:     store,
		processor: processor,
		webhooks:  webhooks,
		notifier:  notifier,
		broadcast: broadcast,
		metrics:   m,
		logger:    logger,
	}
}

// TargetStatus maps a processor outcome to the order status it implies.
func TargetStatus(outcome payment.Outcome) order.Status {
	switch outcome {
	case payment.OutcomePaid:
		return order.StatusPaid
	case payment.OutcomeUnpaid:
		return order.StatusPending
	default:
		return order.StatusFailed
	}
}

// Reconcile applies outcome to the order.
//
// Replaying the status the order already has is a no-op. Reporting the opposite terminal status
// leaves the order untouched, records an anomaly and returns ErrReconciliationConflict along with
// the current order. The caller that moves the order into paid is the only one that notifies.
func (e *Engine) Reconcile(ctx context.Context, orderID string, outcome payment.Outcome, channel Channel) (Result, error) {
	target := TargetStatus(outcome)

	if target == order.StatusPending {
		o, err := e.store.Get(ctx, orderID)
		if err != nil {
			return Result{}, e.lookupFailed(orderID, channel, err)
		}
		e.count(channel, "unpaid")
		e.logger.Info("payment not completed yet", "order_id", orderID, "channel", channel, "status", o.Status)
		return Result{Order: o}, nil
	}

	o, applied, err := e.store.Transition(ctx, orderID, target)
	if applied {
		if err != nil {
			e.logger.Warn("reload order after transition", "order_id", orderID, "err", err)
			if reloaded, gerr := e.store.Get(ctx, orderID); gerr == nil {
				o = reloaded
			}
		}
		e.applied(ctx, o, channel)
		return Result{Order: o, Applied: true}, nil
	}
	if err != nil {
		return Result{}, e.lookupFailed(orderID, channel, err)
	}

	if o.Status == target {
		e.count(channel, "replay")
		e.logger.Info("order already reconciled", "order_id", orderID, "channel", channel, "status", o.Status)
		return Result{Order: o}, nil
	}

	e.conflict(ctx, o, target, channel)
	return Result{Order: o, Conflict: true}, fmt.Errorf("%w: order %s is %s, processor reported %s",
		order.ErrReconciliationConflict, orderID, o.Status, target)
}

func (e *Engine) applied(ctx context.Context, o *order.Order, channel Channel) {
	e.count(channel, "applied")
	e.logger.Info("order status changed", "order_id", o.ID, "status", o.Status, "channel", channel)
	if e.broadcast != nil {
		e.broadcast.BroadcastOrderUpdate(o.ID, string(o.Status))
	}
	if o.Status != order.StatusPaid {
		return
	}

	// The order is already paid; a canceled request must not drop the notification.
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := e.notifier.OrderPaid(nctx, o); err != nil {
		e.metrics.Notifications.WithLabelValues("failed").Inc()
		e.logger.Error("order paid notification failed", "order_id", o.ID, "err", err)
		return
	}
	e.metrics.Notifications.WithLabelValues("queued").Inc()
}

func (e *Engine) conflict(ctx context.Context, o *order.Order, reported order.Status, channel Channel) {
	e.count(channel, "conflict")
	e.metrics.Anomalies.WithLabelValues(string(channel)).Inc()
	e.logger.Error("reconciliation conflict", "order_id", o.ID, "current_status", o.Status,
		"reported_status", reported, "channel", channel)

	err := e.store.RecordAnomaly(context.WithoutCancel(ctx), order.Anomaly{
		OrderID:        o.ID,
		CurrentStatus:  o.Status,
		ReportedStatus: reported,
		Channel:        string(channel),
		Detail:         fmt.Sprintf("processor reported %s for an order already %s", reported, o.Status),
	})
	if err != nil {
		e.logger.Error("record anomaly failed", "order_id", o.ID, "err", err)
	}
}

func (e *Engine) lookupFailed(orderID string, channel Channel, err error) error {
	if errors.Is(err, order.ErrOrderNotFound) {
		e.count(channel, "not_found")
		e.logger.Warn("reconcile unknown order", "order_id", orderID, "channel", channel)
		return err
	}
	e.count(channel, "error")
	return fmt.Errorf("reconcile order %s: %w", orderID, err)
}

func (e *Engine) count(channel Channel, result string) {
	e.metrics.Reconciliations.WithLabelValues(string(channel), result).Inc()
}

// VerifyReturn handles the buyer's browser coming back from the hosted checkout.
// The outcome always comes from the processor, never from the caller.
func (e *Engine) VerifyReturn(ctx context.Context, userID, sessionID, orderID string) (Result, error) {
	if userID == "" {
		return Result{}, order.ErrUnauthenticated
	}
	if sessionID == "" || orderID == "" {
		return Result{}, fmt.Errorf("%w: session id and order id are required", order.ErrSessionMismatch)
	}

	o, err := e.store.GetForUser(ctx, userID, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.PaymentSessionID != "" && o.PaymentSessionID != sessionID {
		e.logger.Warn("return with foreign session", "order_id", orderID, "session_id", sessionID)
		return Result{}, order.ErrSessionMismatch
	}
	if o.Status.Terminal() && o.PaymentSessionID == sessionID {
		return Result{Order: o}, nil
	}

	st, err := e.processor.LookupSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, order.ErrProcessorUnavailable) {
			e.logger.Warn("processor unavailable during return verification", "order_id", orderID, "err", err)
			return Result{Order: o}, err
		}
		return Result{}, err
	}
	if st.OrderID != orderID {
		e.logger.Warn("return with foreign session", "order_id", orderID, "session_id", sessionID, "session_order_id", st.OrderID)
		return Result{}, order.ErrSessionMismatch
	}

	e.fillEmail(ctx, orderID, st.Outcome, st.CustomerEmail)
	return e.Reconcile(ctx, orderID, st.Outcome, ChannelReturn)
}

// HandleWebhook verifies and applies one processor event.
// A nil error means the event should be acknowledged, including unknown orders and conflicts.
func (e *Engine) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	evt, err := e.webhooks.Parse(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, order.ErrInvalidSignature) {
			e.count(ChannelWebhook, "bad_signature")
			return err
		}
		e.logger.Warn("unreadable webhook event", "event_id", evt.ID, "event_type", evt.Type, "err", err)
		return nil
	}

	if !evt.Actionable {
		if evt.Type == payment.EventPaymentIntentFailed {
			e.logger.Info("payment attempt failed, session still open", "event_id", evt.ID, "order_id", evt.OrderID)
		} else {
			e.logger.Info("ignoring webhook event", "event_id", evt.ID, "event_type", evt.Type)
		}
		return nil
	}

	e.fillEmail(ctx, evt.OrderID, evt.Outcome, evt.CustomerEmail)
	_, err = e.Reconcile(ctx, evt.OrderID, evt.Outcome, ChannelWebhook)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, order.ErrReconciliationConflict):
		return nil
	default:
		return err
	}
}

// Recheck asks the processor for an order's session and reconciles the answer.
func (e *Engine) Recheck(ctx context.Context, orderID string, channel Channel) (Result, error) {
	o, err := e.store.Get(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if o.PaymentSessionID == "" {
		return Result{Order: o}, order.ErrNoPaymentSession
	}

	st, err := e.processor.LookupSession(ctx, o.PaymentSessionID)
	if err != nil {
		return Result{Order: o}, err
	}
	if st.OrderID != "" && st.OrderID != o.ID {
		return Result{Order: o}, fmt.Errorf("%w: session %s names order %s", order.ErrSessionMismatch, st.SessionID, st.OrderID)
	}
	e.fillEmail(ctx, o.ID, st.Outcome, st.CustomerEmail)
	return e.Reconcile(ctx, o.ID, st.Outcome, channel)
}

// fillEmail gives a paid order without an email the address the buyer entered at the processor,
// so the confirmation has a recipient. It runs before the transition, which then returns it.
func (e *Engine) fillEmail(ctx context.Context, orderID string, outcome payment.Outcome, email string) {
	if outcome != payment.OutcomePaid || email == "" {
		return
	}
	if err := e.store.FillCustomerEmail(ctx, orderID, email); err != nil && !errors.Is(err, order.ErrOrderNotFound) {
		e.logger.Warn("fill customer email failed", "order_id", orderID, "err", err)
	}
}
