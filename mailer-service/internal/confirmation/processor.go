package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Abhinav-Eluri/ProjectZahra/mailer-service/internal/mail"
	"github.com/Abhinav-Eluri/ProjectZahra/pkg/contracts"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Inbox runs fn at most once per event id.
// fn runs while the claim is held; if it fails the claim is released and the event can be retried.
type Inbox interface {
	Claim(ctx context.Context, evt contracts.OrderPaidEvent, fn func(ctx context.Context) error) (claimed bool, err error)
}

type PgInbox struct {
	pool *pgxpool.Pool
}

func NewPgInbox(pool *pgxpool.Pool) *PgInbox {
	return &PgInbox{pool: pool}
}

// Claim inserts the inbox row and keeps the transaction open while fn runs.
// A concurrent delivery of the same event blocks on the row until this one commits or rolls back.
func (i *PgInbox) Claim(ctx context.Context, evt contracts.OrderPaidEvent, fn func(ctx context.Context) error) (bool, error) {
	tx, err := i.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO mailer_inbox (event_id, event_type, order_id, recipient)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, contracts.EventOrderPaid, evt.OrderID, evt.Email,
	)
	if err != nil {
		return false, fmt.Errorf("insert inbox: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := fn(ctx); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit inbox: %w", err)
	}
	return true, nil
}

type Processor struct {
	inbox   Inbox
	sender  mail.Sender
	results *prometheus.CounterVec
	logger  *slog.Logger
}

func NewProcessor(inbox Inbox, sender mail.Sender, reg prometheus.Registerer, logger *slog.Logger) *Processor {
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "artshop",
		Subsystem: "mailer",
		Name:      "confirmations_total",
		Help:      "Order confirmation emails by result.",
	}, []string{"result"})
	reg.MustRegister(results)

	return &Processor{
		inbox:   inbox,
		sender:  sender,
		results: results,
		logger:  logger,
	}
}

// HandleOrderPaid sends the confirmation for evt unless this event was already handled.
func (p *Processor) HandleOrderPaid(ctx context.Context, evt contracts.OrderPaidEvent) error {
	if evt.EventID == "" || evt.OrderID == "" {
		p.results.WithLabelValues("invalid").Inc()
		return errors.New("order paid event missing ids")
	}
	if evt.Email == "" {
		p.results.WithLabelValues("no_recipient").Inc()
		p.logger.Warn("paid order has no email, skipping confirmation", "order_id", evt.OrderID)
		return nil
	}

	rendered, err := Render(evt)
	if err != nil {
		return fmt.Errorf("render confirmation: %w", err)
	}

	claimed, err := p.inbox.Claim(ctx, evt, func(ctx context.Context) error {
		return p.sender.Send(ctx, mail.Message{
			To:      evt.Email,
			Subject: rendered.Subject,
			HTML:    rendered.HTML,
			Text:    rendered.Text,
		})
	})
	if err != nil {
		p.results.WithLabelValues("failed").Inc()
		return err
	}
	if !claimed {
		p.results.WithLabelValues("duplicate").Inc()
		p.logger.Info("confirmation already sent", "order_id", evt.OrderID, "event_id", evt.EventID)
		return nil
	}

	p.results.WithLabelValues("sent").Inc()
	p.logger.Info("order confirmation sent", "order_id", evt.OrderID)
	return nil
}
