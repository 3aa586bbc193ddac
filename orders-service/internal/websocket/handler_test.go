package websocket

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/auth"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"

	gw "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	GetForUserFunc func(ctx context.Context, userID, orderID string) (*order.Order, error)
}

func (f *fakeOrders) GetForUser(ctx context.Context, userID, orderID string) (*order.Order, error) {
	return f.GetForUserFunc(ctx, userID, orderID)
}

func newTestServer(t *testing.T, hub *Hub) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	return newOriginTestServer(t, hub, "")
}

func newOriginTestServer(t *testing.T, hub *Hub, allowedOrigin string) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	verifier := auth.NewVerifier("secret")
	orders := &fakeOrders{GetForUserFunc: func(_ context.Context, userID, orderID string) (*order.Order, error) {
		if userID != "user-1" || orderID != "order-1" {
			return nil, order.ErrOrderNotFound
		}
		return &order.Order{ID: "order-1", UserID: "user-1", Status: order.StatusPending}, nil
	}}
	h := NewHandler(hub, orders, allowedOrigin, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders/{orderID}/ws", h.ServeWS)
	srv := httptest.NewServer(verifier.Middleware(mux))
	t.Cleanup(srv.Close)
	return srv, verifier
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestServeWSStreamsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	srv, verifier := newTestServer(t, hub)
	token, err := verifier.Issue(auth.Identity{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)

	conn, _, err := gw.DefaultDialer.Dial(wsURL(srv, "/api/orders/order-1/ws?token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first OrderUpdate
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, OrderUpdate{OrderID: "order-1", Status: "pending"}, first)

	// the write pump starts after registration, so the hub now knows this client
	hub.BroadcastOrderUpdate("order-1", "paid")
	var upd OrderUpdate
	require.NoError(t, conn.ReadJSON(&upd))
	assert.Equal(t, "paid", upd.Status)
}

func TestServeWSRejectsStrangers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	srv, verifier := newTestServer(t, hub)

	_, resp, err := gw.DefaultDialer.Dial(wsURL(srv, "/api/orders/order-1/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := verifier.Issue(auth.Identity{UserID: "intruder"}, time.Minute)
	require.NoError(t, err)
	_, resp, err = gw.DefaultDialer.Dial(wsURL(srv, "/api/orders/order-1/ws?token="+token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeWSChecksOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	srv, verifier := newOriginTestServer(t, hub, "https://shop.example.com")
	token, err := verifier.Issue(auth.Identity{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)
	url := wsURL(srv, "/api/orders/order-1/ws?token="+token)

	_, resp, err := gw.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := gw.DefaultDialer.Dial(url, http.Header{"Origin": {"https://shop.example.com"}})
	require.NoError(t, err)
	conn.Close()
}

func TestBroadcastAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.BroadcastOrderUpdate("order-1", "paid")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked after hub stopped")
	}
}
