package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Abhinav-Eluri/ProjectZahra/mailer-service/internal/config"
	"github.com/Abhinav-Eluri/ProjectZahra/mailer-service/internal/confirmation"
	"github.com/Abhinav-Eluri/ProjectZahra/mailer-service/internal/httpapi"
	"github.com/Abhinav-Eluri/ProjectZahra/mailer-service/internal/mail"
	"github.com/Abhinav-Eluri/ProjectZahra/mailer-service/internal/storage"
	"github.com/Abhinav-Eluri/ProjectZahra/pkg/contracts"
	"github.com/Abhinav-Eluri/ProjectZahra/pkg/messaging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rabbitmq/amqp091-go"
)

type orderPaidHandler interface {
	HandleOrderPaid(ctx context.Context, evt contracts.OrderPaidEvent) error
}

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	processor orderPaidHandler
	consumer  *messaging.Consumer
	httpSrv   *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	var sender mail.Sender
	if cfg.SMTP.Enabled() {
		smtp, err := mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			store.Close()
			return nil, err
		}
		sender = smtp
	} else {
		logger.Warn("EMAIL_USER/EMAIL_PASS not set, confirmations will only be logged")
		sender = mail.NewLogSender(logger)
	}

	consumer, err := messaging.NewRabbitConsumer(cfg.RabbitURL, cfg.OrdersExchange, cfg.OrdersQueue, cfg.Prefetch, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	processor := confirmation.NewProcessor(confirmation.NewPgInbox(store.Pool()), sender, reg, logger)

	api := httpapi.NewServer(store, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger)
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		processor: processor,
		consumer:  consumer,
		httpSrv:   httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		errCh <- a.consumer.Start(ctx, a.handleDelivery)
	}()

	go func() {
		a.logger.Info("mailer http server listening", "addr", a.cfg.HTTPAddr)
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
	a.consumer.Close()
	a.store.Close()
}

// handleDelivery acks handled and foreign messages. A failed send is requeued once,
// a second failure drops the message.
func (a *App) handleDelivery(ctx context.Context, msg amqp091.Delivery) {
	if msg.Type != "" && msg.Type != contracts.EventOrderPaid {
		_ = msg.Ack(false)
		return
	}

	var evt contracts.OrderPaidEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		a.logger.Error("invalid order paid event", "message_id", msg.MessageId, "err", err)
		_ = msg.Nack(false, false)
		return
	}

	if err := a.processor.HandleOrderPaid(ctx, evt); err != nil {
		if msg.Redelivered {
			a.logger.Error("confirmation failed again, dropping", "order_id", evt.OrderID, "event_id", evt.EventID, "err", err)
			_ = msg.Nack(false, false)
			return
		}
		a.logger.Warn("confirmation failed, requeueing", "order_id", evt.OrderID, "err", err)
		_ = msg.Nack(false, true)
		return
	}

	_ = msg.Ack(false)
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

	return app.Run(ctx)
}
