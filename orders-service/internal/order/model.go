package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}

func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// Money is an amount in minor currency units (cents).
type Money int64

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// MoneyFromDecimal converts a major-unit amount such as 12.50 to cents.
// Amounts with sub-cent precision are rejected rather than rounded.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has sub-cent precision", d.String())
	}
	return Money(cents.IntPart()), nil
}

type Order struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Total            Money     `json:"total"`
	Status           Status    `json:"status"`
	PaymentSessionID string    `json:"payment_session_id,omitempty"`
	CustomerEmail    string    `json:"-"`
	Items            []Item    `json:"items"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Item struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	ImageURL string `json:"image_url"`
	Quantity int    `json:"quantity"`
}

func (i Item) Subtotal() Money {
	return i.Price * Money(i.Quantity)
}

// SumItems returns the sum of price*quantity over items.
func SumItems(items []Item) Money {
	var total Money
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}
