package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeDomainError maps the order error taxonomy to HTTP. Raw processor and database
// errors are logged and never shown to the buyer.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, order.ErrInvalidCart):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_cart", Message: err.Error()})
	case errors.Is(err, order.ErrUnauthenticated):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unauthenticated"})
	case errors.Is(err, order.ErrPricing):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "pricing_error", Message: err.Error()})
	case errors.Is(err, order.ErrSessionMismatch):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "session_mismatch"})
	case errors.Is(err, order.ErrInvalidSignature):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_signature"})
	case errors.Is(err, order.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "order_not_found"})
	case errors.Is(err, order.ErrProcessorUnavailable):
		logger.Warn("payment processor unavailable", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "processing", "retryable": true})
	default:
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}
