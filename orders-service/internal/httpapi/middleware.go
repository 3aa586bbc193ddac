package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type traceKey struct{}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// withRequestLog assigns a trace id (X-Request-ID or a fresh uuid), echoes it back and logs one line per request.
func withRequestLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), traceKey{}, id)))

		logger.Info("http request",
			"trace_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type userLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// Limiter hands out one token bucket per user.
type Limiter struct {
	mu      sync.Mutex
	perSec  rate.Limit
	burst   int
	idleTTL time.Duration
	users   map[string]*userLimiter
	swept   time.Time
	now     func() time.Time
}

func NewLimiter(perSec float64, burst int) *Limiter {
	return &Limiter{
		perSec:  rate.Limit(perSec),
		burst:   burst,
		idleTTL: 30 * time.Minute,
		users:   make(map[string]*userLimiter),
		now:     time.Now,
	}
}

func (l *Limiter) Allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > l.idleTTL {
		for id, u := range l.users {
			if now.Sub(u.last) > l.idleTTL {
				delete(l.users, id)
			}
		}
		l.swept = now
	}

	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.perSec, l.burst)}
		l.users[userID] = u
	}
	u.last = now
	return u.limiter.AllowN(now, 1)
}
