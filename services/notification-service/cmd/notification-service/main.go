package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zapagenda/zapagenda/libs/db"
	"github.com/zapagenda/zapagenda/libs/httpx"
	"github.com/zapagenda/zapagenda/libs/kafkax"
	"github.com/zapagenda/zapagenda/libs/metrics"
	otelx "github.com/zapagenda/zapagenda/libs/otel"
	"github.com/zapagenda/zapagenda/libs/runtime"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/consumer"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/email"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/inbox"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/notify"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/storage"
	"github.com/zapagenda/zapagenda/services/notification-service/internal/whatsapp"
	"github.com/zapagenda/zapagenda/services/notification-service/migrations"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("notification-service exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg appConfig, logger *slog.Logger) error {
	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, cfg.Otel)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL, migrations.FS, "."); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{})
	if err != nil {
		return err
	}
	defer pool.Close()

	var (
		emailSender email.Sender
		waSender    whatsapp.Sender
	)
	if cfg.SMTPHost != "" {
		emailSender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	} else {
		logger.Warn("SMTP_HOST not set; email channel disabled")
	}
	if cfg.whatsAppEnabled() {
		waSender = whatsapp.NewEvolutionSender(cfg.EvolutionURL, cfg.EvolutionInstance, cfg.EvolutionAPIKey)
	} else {
		logger.Warn("Evolution API not configured; whatsapp channel disabled")
	}

	notifier := notify.New(emailSender, waSender, storage.NewRepository(pool), cfg.Location, logger)
	inboxRepo := inbox.NewRepository(pool)

	var wg sync.WaitGroup
	for _, topic := range cfg.Topics {
		reader := consumer.NewReader(cfg.KafkaBrokers, cfg.GroupID, topic)
		c := consumer.New(logger.With("topic", topic), reader, inboxRepo, consumer.Config{
			MaxAttempts:  cfg.MaxAttempts,
			RetryBackoff: cfg.RetryBackoff,
		}, notifier.Handle)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Run(ctx)
		}()
		logger.Info("consumer started", "topic", topic, "group_id", cfg.GroupID)
	}

	reg := metrics.NewRegistry(cfg.Service)
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	)
	mux.Handle("GET /metrics", reg.Handler())
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		reg.Middleware(),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	wg.Wait()
	logger.Info("notification-service stopped")
	return runErr
}
