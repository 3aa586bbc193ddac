package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/auth"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	gw "github.com/gorilla/websocket"
)

type Conn = gw.Conn

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type OrderReader interface {
	GetForUser(ctx context.Context, userID, orderID string) (*order.Order, error)
}

type Handler struct {
	hub      *Hub
	orders   OrderReader
	upgrader gw.Upgrader
	logger   *slog.Logger
}

// NewHandler accepts upgrades from allowedOrigin only, or from any origin when it is empty.
func NewHandler(hub *Hub, orders OrderReader, allowedOrigin string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		orders: orders,
		upgrader: gw.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || origin == "" || origin == allowedOrigin
			},
		},
		logger: logger,
	}
}

// ServeWS streams status updates for one of the caller's orders, starting with its current status.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	orderID := r.PathValue("orderID")
	o, err := h.orders.GetForUser(r.Context(), id.UserID, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("load order for websocket", "order_id", orderID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 16),
		orderID: o.ID,
	}
	if b, err := json.Marshal(OrderUpdate{OrderID: o.ID, Status: string(o.Status)}); err == nil {
		client.send <- b
	}
	if !h.hub.join(client) {
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(gw.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gw.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
