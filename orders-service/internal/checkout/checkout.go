package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/catalog"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/payment"
)

// CartItem is one line of the client's cart snapshot. It carries no price.
type CartItem struct {
	ItemID      string `json:"itemId" validate:"required,max=128"`
	ImageRef    string `json:"imageRef" validate:"max=2048"`
	DisplayName string `json:"displayName" validate:"max=256"`
	Quantity    int    `json:"quantity" validate:"gte=1,lte=100"`
}

type Buyer struct {
	UserID string
	Email  string
}

type Result struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	OrderID   string `json:"orderId"`
}

type Pricer interface {
	Price(ctx context.Context, ids []string) (map[string]catalog.Artwork, error)
}

type OrderCreator interface {
	Create(ctx context.Context, o *order.Order) error
	AttachSession(ctx context.Context, orderID, sessionID string) error
}

type Config struct {
	Currency string
	BaseURL  string
}

type Service struct {
	pricer    Pricer
	orders    OrderCreator
	processor payment.Processor
	cfg       Config
	logger    *slog.Logger
}

func NewService(pricer Pricer, orders OrderCreator, processor payment.Processor, cfg Config, logger *slog.Logger) *Service {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "eur"
	}
	return &Service{pricer: pricer, orders: orders, processor: processor, cfg: cfg, logger: logger}
}

// Checkout turns a cart snapshot into a pending order and a hosted payment session.
// If the processor fails after the order is stored, the order stays pending.
func (s *Service) Checkout(ctx context.Context, buyer Buyer, cart []CartItem) (Result, error) {
	if buyer.UserID == "" {
		return Result{}, order.ErrUnauthenticated
	}
	if len(cart) == 0 {
		return Result{}, fmt.Errorf("%w: cart is empty", order.ErrInvalidCart)
	}

	ids := make([]string, 0, len(cart))
	seen := make(map[string]bool, len(cart))
	for _, c := range cart {
		if c.ItemID == "" || c.Quantity < 1 {
			return Result{}, fmt.Errorf("%w: item %q quantity %d", order.ErrInvalidCart, c.ItemID, c.Quantity)
		}
		if !seen[c.ItemID] {
			seen[c.ItemID] = true
			ids = append(ids, c.ItemID)
		}
	}

	priced, err := s.pricer.Price(ctx, ids)
	if err != nil {
		return Result{}, err
	}

	o := &order.Order{
		UserID:        buyer.UserID,
		CustomerEmail: buyer.Email,
		Items:         make([]order.Item, 0, len(cart)),
	}
	for _, c := range cart {
		art, ok := priced[c.ItemID]
		if !ok {
			return Result{}, fmt.Errorf("%w: item %q has no price", order.ErrPricing, c.ItemID)
		}
		o.Items = append(o.Items, order.Item{
			ItemID:   c.ItemID,
			Name:     firstNonEmpty(art.Title, c.DisplayName, c.ItemID),
			Price:    art.Price,
			ImageURL: firstNonEmpty(art.ImageURL, c.ImageRef),
			Quantity: c.Quantity,
		})
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return Result{}, fmt.Errorf("create order: %w", err)
	}

	sess, err := s.processor.CreateSession(ctx, s.sessionRequest(o))
	if err != nil {
		s.logger.Error("create payment session failed, order left pending", "order_id", o.ID, "err", err)
		return Result{OrderID: o.ID}, err
	}

	if err := s.orders.AttachSession(ctx, o.ID, sess.ID); err != nil {
		// the session metadata still carries the order id, so both channels can reconcile it
		s.logger.Warn("attach payment session failed", "order_id", o.ID, "session_id", sess.ID, "err", err)
	}

	s.logger.Info("checkout started", "order_id", o.ID, "user_id", o.UserID, "session_id", sess.ID, "total", o.Total.String())
	return Result{SessionID: sess.ID, URL: sess.URL, OrderID: o.ID}, nil
}

func (s *Service) sessionRequest(o *order.Order) payment.SessionRequest {
	items := make([]payment.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, payment.LineItem{
			Name:       it.Name,
			ImageURL:   absoluteURL(s.cfg.BaseURL, it.ImageURL),
			UnitAmount: it.Price,
			Quantity:   it.Quantity,
		})
	}
	return payment.SessionRequest{
		OrderID:       o.ID,
		UserID:        o.UserID,
		CustomerEmail: o.CustomerEmail,
		Currency:      s.cfg.Currency,
		Items:         items,
		SuccessURL:    SuccessURL(s.cfg.BaseURL, o.ID),
		CancelURL:     s.cfg.BaseURL + "/cart",
	}
}

// SuccessURL keeps the processor's {CHECKOUT_SESSION_ID} placeholder unescaped.
func SuccessURL(baseURL, orderID string) string {
	return baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}&order_id=" + url.QueryEscape(orderID)
}

func absoluteURL(baseURL, ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	return baseURL + "/" + strings.TrimLeft(ref, "/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
