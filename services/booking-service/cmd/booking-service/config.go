package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zapagenda/zapagenda/libs/config"
	otelx "github.com/zapagenda/zapagenda/libs/otel"
)

type appConfig struct {
	Service  string
	Port     string
	GRPCPort string
	LogLevel string

	DatabaseURL    string
	MaxDBConns     int
	MigrateOnStart bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CatalogTTL    time.Duration

	KafkaBrokers    []string
	OutboxPollEvery time.Duration
	OutboxBatchSize int
	OutboxRetention time.Duration

	JWTSecret        string
	JWTIssuer        string
	TrustOwnerHeader bool

	RequestTimeout     time.Duration
	BodyLimitBytes     int
	PublicRatePerMin   int
	RateLimitFailOpen  bool
	CORSAllowedOrigins []string

	Otel otelx.Config
}

var defaults = map[string]any{
	"SERVICE_NAME":           "booking-service",
	"PORT":                   "8083",
	"LOG_LEVEL":              "info",
	"DB_MAX_CONNS":           10,
	"MIGRATE_ON_START":       false,
	"REDIS_DB":               0,
	"CATALOG_CACHE_TTL":      "5m",
	"OUTBOX_POLL_INTERVAL":   "2s",
	"OUTBOX_BATCH_SIZE":      50,
	"OUTBOX_RETENTION":       "168h",
	"TRUST_OWNER_HEADER":     false,
	"REQUEST_TIMEOUT":        "10s",
	"BODY_LIMIT_BYTES":       1 << 20,
	"PUBLIC_RATE_PER_MINUTE": 30,
	"RATE_LIMIT_FAIL_OPEN":   true,
	"OTEL_ENABLED":           false,
	"OTEL_SAMPLE_RATIO":      "1",
}

func loadConfig() (appConfig, error) {
	l, err := config.New(defaults)
	if err != nil {
		return appConfig{}, err
	}

	cfg := appConfig{
		Service:            l.String("SERVICE_NAME"),
		LogLevel:           l.String("LOG_LEVEL"),
		MigrateOnStart:     l.Bool("MIGRATE_ON_START"),
		RedisAddr:          l.String("REDIS_ADDR"),
		RedisPassword:      l.String("REDIS_PASSWORD"),
		KafkaBrokers:       l.List("KAFKA_BROKERS"),
		JWTSecret:          l.String("JWT_SECRET"),
		JWTIssuer:          l.String("JWT_ISSUER"),
		TrustOwnerHeader:   l.Bool("TRUST_OWNER_HEADER"),
		RateLimitFailOpen:  l.Bool("RATE_LIMIT_FAIL_OPEN"),
		CORSAllowedOrigins: l.List("CORS_ALLOWED_ORIGINS"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.Port, err = l.Port("PORT")
	collect(err)
	if l.String("GRPC_PORT") != "" {
		cfg.GRPCPort, err = l.Port("GRPC_PORT")
		collect(err)
	}
	cfg.DatabaseURL, err = l.RequiredString("DATABASE_URL")
	collect(err)
	cfg.MaxDBConns, err = l.Int("DB_MAX_CONNS")
	collect(err)
	cfg.RedisDB, err = l.Int("REDIS_DB")
	collect(err)
	cfg.CatalogTTL, err = l.Duration("CATALOG_CACHE_TTL")
	collect(err)
	cfg.OutboxPollEvery, err = l.Duration("OUTBOX_POLL_INTERVAL")
	collect(err)
	cfg.OutboxBatchSize, err = l.Int("OUTBOX_BATCH_SIZE")
	collect(err)
	cfg.OutboxRetention, err = l.Duration("OUTBOX_RETENTION")
	collect(err)
	cfg.RequestTimeout, err = l.Duration("REQUEST_TIMEOUT")
	collect(err)
	cfg.BodyLimitBytes, err = l.Int("BODY_LIMIT_BYTES")
	collect(err)
	cfg.PublicRatePerMin, err = l.Int("PUBLIC_RATE_PER_MINUTE")
	collect(err)

	ratio, err := strconv.ParseFloat(l.String("OTEL_SAMPLE_RATIO"), 64)
	if err != nil {
		collect(fmt.Errorf("OTEL_SAMPLE_RATIO must be a number (got %q)", l.String("OTEL_SAMPLE_RATIO")))
	}
	cfg.Otel = otelx.Config{
		Enabled:      l.Bool("OTEL_ENABLED"),
		ServiceName:  cfg.Service,
		OTLPEndpoint: l.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SampleRatio:  ratio,
	}

	if cfg.JWTSecret == "" && !cfg.TrustOwnerHeader {
		collect(errors.New("JWT_SECRET is required unless TRUST_OWNER_HEADER is set"))
	}
	if cfg.RequestTimeout <= 0 {
		collect(errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if len(errs) > 0 {
		return appConfig{}, errors.Join(errs...)
	}
	return cfg, nil
}
