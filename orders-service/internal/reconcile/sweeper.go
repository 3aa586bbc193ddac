package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
)

// Sweeper re-checks orders that stayed pending past the processor's session lifetime.
// Orders whose session expired end up failed through the processor's own answer. Orders
// that never got a session are not swept and stay pending.
type Sweeper struct {
	engine    *Engine
	store     Store
	interval  time.Duration
	timeout   time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewSweeper(engine *Engine, store Store, interval, timeout time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		engine:    engine,
		store:     store,
		interval:  interval,
		timeout:   timeout,
		batchSize: batch,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("pending order sweep failed", "err", err)
		}
	}
}

// SweepOnce walks every stale pending order that has a payment session, one page at a time,
// and returns how many reached a terminal status. Orders still unpaid at the processor are passed
// over by the cursor, so they never hide newer orders behind them.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.timeout)
	var cursor order.StaleCursor
	settled := 0

	for {
		stale, err := s.store.ListStalePending(ctx, cutoff, cursor, s.batchSize)
		if err != nil {
			return settled, err
		}

		for _, o := range stale {
			if ctx.Err() != nil {
				return settled, ctx.Err()
			}
			cursor = o.Cursor()

			s.engine.metrics.SweptOrders.Inc()
			res, err := s.engine.Recheck(ctx, o.ID, ChannelSweep)
			switch {
			case err == nil:
				if res.Applied {
					settled++
				}
			case errors.Is(err, order.ErrProcessorUnavailable):
				return settled, err
			case errors.Is(err, order.ErrReconciliationConflict):
			default:
				s.logger.Warn("sweep order failed", "order_id", o.ID, "err", err)
			}
		}

		if len(stale) < s.batchSize {
			return settled, nil
		}
	}
}
