package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
	"github.com/Abhinav-Eluri/ProjectZahra/pkg/contracts"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// OutboxNotifier queues an orders.paid event in order_outbox.
// The outbox dispatcher relays it to the broker and the mailer sends the email.
type OutboxNotifier struct {
	db       execer
	currency string
	now      func() time.Time
}

func NewOutboxNotifier(db execer, currency string) *OutboxNotifier {
	return &OutboxNotifier{db: db, currency: currency, now: time.Now}
}

func (n *OutboxNotifier) OrderPaid(ctx context.Context, o *order.Order) error {
	evt := NewOrderPaidEvent(o, n.currency, n.now().UTC())

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w: %v", order.ErrNotificationFailure, err)
	}

	_, err = n.db.Exec(ctx, `
		INSERT INTO order_outbox (event_id, event_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, contracts.EventOrderPaid, payload,
	)
	if err != nil {
		return fmt.Errorf("insert outbox: %w: %v", order.ErrNotificationFailure, err)
	}
	return nil
}

// PaidEventID is stable per order, so queuing the same order twice yields one outbox row.
func PaidEventID(orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("orders.paid/"+orderID)).String()
}

func NewOrderPaidEvent(o *order.Order, currency string, paidAt time.Time) contracts.OrderPaidEvent {
	items := make([]contracts.OrderPaidItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, contracts.OrderPaidItem{
			ItemID:     it.ItemID,
			Name:       it.Name,
			ImageURL:   it.ImageURL,
			PriceCents: int64(it.Price),
			Quantity:   it.Quantity,
		})
	}
	return contracts.OrderPaidEvent{
		EventID:    PaidEventID(o.ID),
		OrderID:    o.ID,
		UserID:     o.UserID,
		Email:      o.CustomerEmail,
		TotalCents: int64(o.Total),
		Currency:   strings.ToLower(currency),
		Items:      items,
		CreatedAt:  o.CreatedAt,
		PaidAt:     paidAt,
	}
}
