package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/auth"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/checkout"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/metrics"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/reconcile"

	"github.com/go-playground/validator/v10"
)

const maxWebhookBody = 64 << 10

type Checkouter interface {
	Checkout(ctx context.Context, buyer checkout.Buyer, cart []checkout.CartItem) (checkout.Result, error)
}

type Reconciler interface {
	VerifyReturn(ctx context.Context, userID, sessionID, orderID string) (reconcile.Result, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

type OrderReader interface {
	ListByUser(ctx context.Context, userID string) ([]order.Order, error)
	GetForUser(ctx context.Context, userID, orderID string) (*order.Order, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Checkout       Checkouter
	Reconciler     Reconciler
	Orders         OrderReader
	Health         Pinger
	Auth           *auth.Verifier
	Limiter        *Limiter
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

type Server struct {
	deps     Deps
	logger   *slog.Logger
	validate *validator.Validate
	mux      *http.ServeMux
	handler  http.Handler
}

func NewServer(deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		deps:     deps,
		logger:   logger,
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}

	s.routes()
	s.handler = withRequestLog(logger, deps.Auth.Middleware(s.mux))
	return s
}

func (s *Server) routes() {
	s.handle("POST /api/checkout", "checkout", s.checkout)
	s.handle("POST /api/verify-payment", "verify_payment", s.verifyPayment)
	s.handle("GET /api/verify-payment", "verify_payment", s.verifyPayment)
	s.handle("POST /api/webhook", "webhook", s.webhook)
	s.handle("GET /api/orders", "list_orders", s.listOrders)
	s.handle("GET /api/orders/{orderID}", "get_order", s.getOrder)
	s.mux.HandleFunc("GET /health", s.health)
	if s.deps.MetricsHandler != nil {
		s.mux.Handle("GET /metrics", s.deps.MetricsHandler)
	}
}

func (s *Server) handle(pattern, name string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.deps.Metrics != nil {
		h = s.deps.Metrics.Instrument(name, h)
	}
	s.mux.Handle(pattern, h)
}

// HandleFunc mounts extra routes, such as the websocket endpoint, behind the same middleware.
func (s *Server) HandleFunc(pattern string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, fn)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) log(r *http.Request) *slog.Logger {
	return s.logger.With("trace_id", traceID(r.Context()))
}

type checkoutRequest struct {
	Items []checkout.CartItem `json:"items" validate:"required,min=1,max=50,dive"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		s.countCheckout("unauthenticated")
		writeDomainError(w, s.log(r), order.ErrUnauthenticated)
		return
	}
	if s.deps.Limiter != nil && !s.deps.Limiter.Allow(id.UserID) {
		s.countCheckout("rate_limited")
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.countCheckout("invalid")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.countCheckout("invalid")
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_cart", Message: validationMessage(err)})
		return
	}

	res, err := s.deps.Checkout.Checkout(r.Context(), checkout.Buyer{UserID: id.UserID, Email: id.Email}, req.Items)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrProcessorUnavailable):
			s.countCheckout("processor_error")
			s.log(r).Error("checkout session failed", "order_id", res.OrderID, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "payment_unavailable", "orderId": res.OrderID})
		case errors.Is(err, order.ErrInvalidCart), errors.Is(err, order.ErrPricing), errors.Is(err, order.ErrUnauthenticated):
			s.countCheckout("rejected")
			writeDomainError(w, s.log(r), err)
		default:
			s.countCheckout("error")
			writeDomainError(w, s.log(r), err)
		}
		return
	}

	s.countCheckout("ok")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) countCheckout(result string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Checkouts.WithLabelValues(result).Inc()
	}
}

type verifyRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=255"`
	OrderID   string `json:"orderId" validate:"required,max=64"`
}

type verifyResponse struct {
	Order   *order.Order `json:"order"`
	Status  string       `json:"status"`
	Anomaly bool         `json:"anomaly"`
}

// verifyPayment accepts the ids as JSON on POST or as session_id/order_id on GET.
// Any status the caller sends is ignored.
func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeDomainError(w, s.log(r), order.ErrUnauthenticated)
		return
	}

	var req verifyRequest
	if r.Method == http.MethodGet {
		q := r.URL.Query()
		req.SessionID = q.Get("session_id")
		req.OrderID = q.Get("order_id")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: validationMessage(err)})
		return
	}

	res, err := s.deps.Reconciler.VerifyReturn(r.Context(), id.UserID, req.SessionID, req.OrderID)
	switch {
	case err == nil:
	case errors.Is(err, order.ErrReconciliationConflict):
		s.log(r).Warn("verify found conflicting outcome", "order_id", req.OrderID)
	case errors.Is(err, order.ErrProcessorUnavailable):
		s.log(r).Warn("verify deferred, processor unavailable", "order_id", req.OrderID, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"order":     res.Order,
			"status":    "processing",
			"retryable": true,
		})
		return
	default:
		writeDomainError(w, s.log(r), err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Order:   res.Order,
		Status:  buyerStatus(res.Order.Status),
		Anomaly: res.Conflict,
	})
}

func buyerStatus(s order.Status) string {
	switch s {
	case order.StatusPaid:
		return "confirmed"
	case order.StatusFailed:
		return "failed"
	default:
		return "processing"
	}
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	err = s.deps.Reconciler.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, order.ErrInvalidSignature):
		s.log(r).Warn("webhook rejected", "err", err)
		writeDomainError(w, s.log(r), err)
	default:
		s.log(r).Error("webhook processing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeDomainError(w, s.log(r), order.ErrUnauthenticated)
		return
	}

	orders, err := s.deps.Orders.ListByUser(r.Context(), id.UserID)
	if err != nil {
		s.log(r).Error("list orders", "user_id", id.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeDomainError(w, s.log(r), order.ErrUnauthenticated)
		return
	}

	o, err := s.deps.Orders.GetForUser(r.Context(), id.UserID, r.PathValue("orderID"))
	if err != nil {
		writeDomainError(w, s.log(r), err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Health.Ping(ctx); err != nil {
		s.log(r).Warn("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func validationMessage(err error) string {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(vErrs))
	for _, fe := range vErrs {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
