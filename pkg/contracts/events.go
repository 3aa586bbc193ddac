package contracts

import "time"

const (
	EventOrderPaid = "orders.paid"
)

type OrderPaidItem struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

// OrderPaidEvent is emitted once per order, on its first transition into paid.
type OrderPaidEvent struct {
	EventID    string          `json:"event_id"`
	OrderID    string          `json:"order_id"`
	UserID     string          `json:"user_id"`
	Email      string          `json:"email,omitempty"`
	TotalCents int64           `json:"total_cents"`
	Currency   string          `json:"currency"`
	Items      []OrderPaidItem `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	PaidAt     time.Time       `json:"paid_at"`
}
