package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/auth"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/catalog"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/checkout"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/config"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/httpapi"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/metrics"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/notify"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/order"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/payment"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/reconcile"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/storage"
	"github.com/Abhinav-Eluri/ProjectZahra/orders-service/internal/websocket"
	"github.com/Abhinav-Eluri/ProjectZahra/pkg/messaging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	wsHub     *websocket.Hub
	publisher messaging.Publisher
	outbox    *messaging.OutboxDispatcher
	sweeper   *reconcile.Sweeper
	httpSrv   *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.OrdersExchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	orders := order.NewStore(store.Pool())
	processor := payment.NewStripeProcessor(cfg.StripeSecretKey, nil)
	wsHub := websocket.NewHub()

	engine := reconcile.NewEngine(
		orders,
		processor,
		payment.NewWebhookVerifier(cfg.StripeWebhookSecret, cfg.WebhookTolerance),
		notify.NewOutboxNotifier(store.Pool(), cfg.Currency),
		wsHub,
		m,
		logger,
	)
	checkoutSvc := checkout.NewService(catalog.New(store.Pool()), orders, processor, checkout.Config{
		Currency: cfg.Currency,
		BaseURL:  cfg.PublicBaseURL,
	}, logger)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	api := httpapi.NewServer(httpapi.Deps{
		Checkout:       checkoutSvc,
		Reconciler:     engine,
		Orders:         orders,
		Health:         store,
		Auth:           verifier,
		Limiter:        httpapi.NewLimiter(cfg.CheckoutRate, cfg.CheckoutBurst),
		Metrics:        m,
		MetricsHandler: metrics.Handler(reg),
	}, logger)
	wsHandler := websocket.NewHandler(wsHub, orders, cfg.AllowedOrigin, logger)
	api.HandleFunc("GET /api/orders/{orderID}/ws", wsHandler.ServeWS)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	outbox := messaging.NewOutboxDispatcher(store.Pool(), publisher, "order_outbox", cfg.OutboxInterval, cfg.OutboxBatchSize, cfg.OutboxMaxAttempts, logger)
	sweeper := reconcile.NewSweeper(engine, orders, cfg.SweepInterval, cfg.PendingTimeout, cfg.SweepBatchSize, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		wsHub:     wsHub,
		publisher: publisher,
		outbox:    outbox,
		sweeper:   sweeper,
		httpSrv:   httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	a.outbox.Start(ctx)
	a.sweeper.Start(ctx)

	go a.wsHub.Run(ctx)

	go func() {
		a.logger.Info("orders http server listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	a.publisher.Close()
	a.store.Close()
}

func Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}
