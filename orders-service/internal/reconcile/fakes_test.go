package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/metrics"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/payment"

	"github.com/prometheus/client_golang/prometheus"
)

// memStore mirrors the conditional update of the Postgres store under a mutex.
type memStore struct {
	mu        sync.Mutex
	orders    map[string]order.Order
	anomalies []order.Anomaly

	staleCalls int
}

func newMemStore(orders ...order.Order) *memStore {
	s := &memStore{orders: map[string]order.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) Get(_ context.Context, orderID string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

func (s *memStore) GetForUser(ctx context.Context, userID, orderID string) (*order.Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (s *memStore) Transition(_ context.Context, orderID string, to order.Status) (*order.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, false, order.ErrOrderNotFound
	}
	if o.Status != order.StatusPending {
		return &o, false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	s.orders[orderID] = o
	return &o, true, nil
}

func (s *memStore) RecordAnomaly(_ context.Context, a order.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies = append(s.anomalies, a)
	return nil
}

func (s *memStore) FillCustomerEmail(_ context.Context, orderID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || email == "" || o.CustomerEmail != "" {
		return nil
	}
	o.CustomerEmail = email
	s.orders[orderID] = o
	return nil
}

func (s *memStore) ListStalePending(_ context.Context, cutoff time.Time, after order.StaleCursor, limit int) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleCalls++
	var out []order.Order
	for _, o := range s.orders {
		if o.Status == order.StatusPending && o.PaymentSessionID != "" && o.CreatedAt.Before(cutoff) && cursorBefore(after, o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return cursorBefore(out[i].Cursor(), out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cursorBefore reports whether o sorts strictly after c by (created_at, id).
func cursorBefore(c order.StaleCursor, o order.Order) bool {
	if !o.CreatedAt.Equal(c.CreatedAt) {
		return o.CreatedAt.After(c.CreatedAt)
	}
	return o.ID > c.ID
}

func (s *memStore) status(orderID string) order.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID].Status
}

type countingNotifier struct {
	mu     sync.Mutex
	calls  []string
	emails []string
	err    error
}

func (n *countingNotifier) OrderPaid(_ context.Context, o *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, o.ID)
	n.emails = append(n.emails, o.CustomerEmail)
	return n.err
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fakeProcessor struct {
	CreateSessionFunc func(ctx context.Context, req payment.SessionRequest) (payment.Session, error)
	LookupSessionFunc func(ctx context.Context, id string) (payment.SessionStatus, error)
}

func (f *fakeProcessor) CreateSession(ctx context.Context, req payment.SessionRequest) (payment.Session, error) {
	return f.CreateSessionFunc(ctx, req)
}

func (f *fakeProcessor) LookupSession(ctx context.Context, id string) (payment.SessionStatus, error) {
	return f.LookupSessionFunc(ctx, id)
}

func sessionReports(orderID string, outcome payment.Outcome) *fakeProcessor {
	return &fakeProcessor{LookupSessionFunc: func(_ context.Context, id string) (payment.SessionStatus, error) {
		return payment.SessionStatus{SessionID: id, OrderID: orderID, Outcome: outcome}, nil
	}}
}

type fakeParser struct {
	ParseFunc func(payload []byte, header string) (payment.Event, error)
}

func (f *fakeParser) Parse(payload []byte, header string) (payment.Event, error) {
	return f.ParseFunc(payload, header)
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []string
}

func (b *recordingBroadcaster) BroadcastOrderUpdate(orderID, status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, orderID+":"+status)
}

type harness struct {
	store     *memStore
	notifier  *countingNotifier
	broadcast *recordingBroadcaster
	processor *fakeProcessor
	parser    *fakeParser
	metrics   *metrics.Metrics
	engine    *Engine
}

const (
	orderID   = "5d0a7c52-58b6-4a43-9f55-3b4f3a4f7e21"
	userID    = "user-1"
	sessionID = "cs_test_1"
)

func pendingOrder() order.Order {
	return order.Order{
		ID:               orderID,
		UserID:           userID,
		Total:            1975,
		Status:           order.StatusPending,
		PaymentSessionID: sessionID,
		Items: []order.Item{
			{ItemID: "A", Name: "Dawn", Price: 1250, Quantity: 1},
			{ItemID: "B", Name: "Dusk", Price: 725, Quantity: 1},
		},
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func newHarness(t *testing.T, orders ...order.Order) *harness {
	t.Helper()
	h := &harness{
		store:     newMemStore(orders...),
		notifier:  &countingNotifier{},
		broadcast: &recordingBroadcaster{},
		processor: sessionReports(orderID, payment.OutcomePaid),
		parser:    &fakeParser{},
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.engine = NewEngine(h.store, h.processor, h.parser, h.notifier, h.broadcast, h.metrics, logger)
	return h
}
