package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Anomaly records a processor report that disagrees with an order's terminal status.
type Anomaly struct {
	ID             int64     `json:"id"`
	OrderID        string    `json:"order_id"`
	CurrentStatus  Status    `json:"current_status"`
	ReportedStatus Status    `json:"reported_status"`
	Channel        string    `json:"channel"`
	Detail         string    `json:"detail"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists orders in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts the order and all of its items in one transaction.
// Either everything is visible afterwards or nothing is.
func (s *Store) Create(ctx context.Context, o *Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("create order: %w", ErrInvalidCart)
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.Status = StatusPending
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Total = SumItems(o.Items)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, customer_email, total_cents, status, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		o.ID, o.UserID, o.CustomerEmail, int64(o.Total), StatusPending, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		batch.Queue(`
			INSERT INTO order_items (id, order_id, position, item_id, name, price_cents, image_url, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, o.ID, i, it.ItemID, it.Name, int64(it.Price), it.ImageURL, it.Quantity,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (s *Store) AttachSession(ctx context.Context, orderID, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_session_id = $2, updated_at = NOW()
		WHERE id = $1 AND payment_session_id IS NULL`,
		orderID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("attach payment session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// FillCustomerEmail sets the buyer email on an order that has none yet. An existing email is kept.
func (s *Store) FillCustomerEmail(ctx context.Context, orderID, email string) error {
	if email == "" {
		return nil
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return ErrOrderNotFound
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET customer_email = $2, updated_at = NOW()
		WHERE id = $1 AND customer_email IS NULL`,
		orderID, email,
	)
	if err != nil {
		return fmt.Errorf("fill customer email: %w", err)
	}
	return nil
}

const orderColumns = `id, user_id, COALESCE(customer_email, ''), total_cents, status,
	COALESCE(payment_session_id, ''), created_at, updated_at`

func scanOrder(row pgx.Row, o *Order) error {
	var total int64
	if err := row.Scan(&o.ID, &o.UserID, &o.CustomerEmail, &total, &o.Status,
		&o.PaymentSessionID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	o.Total = Money(total)
	return nil
}

// Get loads an order with its items.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, ErrOrderNotFound
	}

	var o Order
	err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID), &o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := s.loadItems(ctx, []*Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetForUser is Get restricted to orders owned by userID.
func (s *Store) GetForUser(ctx context.Context, userID, orderID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ListByUser returns a user's orders with items, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	result := []Order{}
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*Order, len(result))
	for i := range result {
		ptrs[i] = &result[i]
	}
	if err := s.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) loadItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.Items = []Item{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, item_id, name, price_cents, image_url, quantity
		FROM order_items
		WHERE order_id = ANY($1::text[])
		ORDER BY order_id, position`, ids,
	)
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		var price int64
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.Name, &price, &it.ImageURL, &it.Quantity); err != nil {
			return err
		}
		it.Price = Money(price)
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

// Transition moves a pending order to the given terminal status.
// The update only matches while the row is still pending, so among concurrent callers exactly
// one observes applied=true. The returned order is the row as it stands after the call.
// When applied is true the order is returned even if loading its items failed.
func (s *Store) Transition(ctx context.Context, orderID string, to Status) (*Order, bool, error) {
	if !to.Terminal() {
		return nil, false, fmt.Errorf("transition to non-terminal status %q", to)
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, false, ErrOrderNotFound
	}

	var o Order
	err := scanOrder(s.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+orderColumns,
		orderID, to,
	), &o)
	switch {
	case err == nil:
		if err := s.loadItems(ctx, []*Order{&o}); err != nil {
			return &o, true, err
		}
		return &o, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		current, err := s.Get(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	default:
		return nil, false, fmt.Errorf("update order status: %w", err)
	}
}

func (s *Store) RecordAnomaly(ctx context.Context, a Anomaly) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconciliation_anomalies (order_id, current_status, reported_status, channel, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		a.OrderID, a.CurrentStatus, a.ReportedStatus, a.Channel, a.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

func (s *Store) ListAnomalies(ctx context.Context, limit int) ([]Anomaly, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, current_status, reported_status, channel, detail, created_at
		FROM reconciliation_anomalies
		ORDER BY created_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []Anomaly
	for rows.Next() {
		var a Anomaly
		if err := rows.Scan(&a.ID, &a.OrderID, &a.CurrentStatus, &a.ReportedStatus, &a.Channel, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// StaleCursor marks the last order a stale scan has seen. The zero value starts from the oldest.
type StaleCursor struct {
	CreatedAt time.Time
	ID        string
}

// ListStalePending returns pending orders that have a payment session and were created before
// cutoff, ordered by (created_at, id) and strictly after the cursor. Items are not loaded.
func (s *Store) ListStalePending(ctx context.Context, cutoff time.Time, after StaleCursor, limit int) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'pending'
		  AND payment_session_id IS NOT NULL
		  AND created_at < $1
		  AND (created_at, id) > ($2, $3)
		ORDER BY created_at, id
		LIMIT $4`, cutoff, after.CreatedAt, after.ID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query stale orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Cursor returns the position just past o in a stale scan.
func (o Order) Cursor() StaleCursor {
	return StaleCursor{CreatedAt: o.CreatedAt, ID: o.ID}
}
