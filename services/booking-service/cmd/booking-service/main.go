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

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zapagenda/zapagenda/libs/auth"
	"github.com/zapagenda/zapagenda/libs/db"
	"github.com/zapagenda/zapagenda/libs/grpcx"
	"github.com/zapagenda/zapagenda/libs/httpx"
	"github.com/zapagenda/zapagenda/libs/kafkax"
	"github.com/zapagenda/zapagenda/libs/metrics"
	otelx "github.com/zapagenda/zapagenda/libs/otel"
	"github.com/zapagenda/zapagenda/libs/runtime"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/booking"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/catalog"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/handlers"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/outbox"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/storage"
	"github.com/zapagenda/zapagenda/services/booking-service/migrations"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("booking-service exited", "err", err)
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

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: int32(cfg.MaxDBConns)})
	if err != nil {
		return err
	}
	defer pool.Close()

	// Background workers stop before the pool closes.
	var wg sync.WaitGroup
	defer func() {
		stop()
		wg.Wait()
	}()

	reg := metrics.NewRegistry(cfg.Service)
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var (
		rdb         *redis.Client
		publicLimit httpx.Middleware
		cache       catalog.Cache
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		cache = catalog.NewRedisCache(rdb)
		rl := httpx.NewRedisRateLimiter(rdb, cfg.PublicRatePerMin, time.Minute, "rl:public")
		publicLimit = rl.Middleware(logger, cfg.RateLimitFailOpen)
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.PublicRatePerMin, "redis_addr", cfg.RedisAddr)
	} else {
		publicLimit = httpx.NewRateLimiter(cfg.PublicRatePerMin, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.PublicRatePerMin)
	}

	outboxRepo := outbox.NewRepository()
	repo := storage.NewBookingRepository(pool, outboxRepo)
	cat := catalog.New(catalog.NewRepository(pool), cache, cfg.CatalogTTL, logger)
	engine := booking.NewEngine(repo, cat, booking.WithMetrics(booking.NewMetrics(reg)))

	if len(cfg.KafkaBrokers) > 0 {
		// The publisher closes the writer when it stops.
		publisher := outbox.NewPublisher(pool, outboxRepo, outbox.NewKafkaWriter(cfg.KafkaBrokers), logger, outbox.PublisherConfig{
			PollEvery: cfg.OutboxPollEvery,
			BatchSize: cfg.OutboxBatchSize,
			Retention: cfg.OutboxRetention,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
		}()
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; outbox events stay unpublished")
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier, err = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
		if err != nil {
			return err
		}
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", reg.Handler())
	handlers.Routes{
		Appointments: handlers.NewAppointmentHandler(engine, cat, logger),
		Calendar:     handlers.NewCalendarHandler(engine, cat, logger),
		Catalog:      handlers.NewCatalogHandler(cat, logger),
		Owner:        auth.RequireOwner(verifier, cfg.TrustOwnerHeader, logger),
		Public:       publicLimit,
	}.Register(mux)

	// The metrics middleware reads the matched pattern and must wrap the mux
	// directly.
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.BrowserCORSPolicy(cfg.CORSAllowedOrigins)),
		httpx.WithBodyLimit(int64(cfg.BodyLimitBytes)),
		httpx.WithTimeout(cfg.RequestTimeout),
		reg.Middleware(),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")

	if cfg.GRPCPort != "" {
		hs, err := grpcx.NewHealthServer(":"+cfg.GRPCPort, logger)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("grpc health server starting", "addr", hs.Addr())
			if err := hs.Run(ctx, 10*time.Second, checks...); err != nil {
				logger.Error("grpc health server error", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
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
	logger.Info("booking-service stopped")
	return runErr
}
