package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/zapagenda/zapagenda/libs/config"
	"github.com/zapagenda/zapagenda/libs/events"
	otelx "github.com/zapagenda/zapagenda/libs/otel"
)

type appConfig struct {
	Service  string
	Port     string
	LogLevel string

	DatabaseURL    string
	MigrateOnStart bool

	KafkaBrokers []string
	GroupID      string
	Topics       []string
	MaxAttempts  int
	RetryBackoff time.Duration

	Location *time.Location

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	EvolutionURL      string
	EvolutionInstance string
	EvolutionAPIKey   string

	Otel otelx.Config
}

var defaults = map[string]any{
	"SERVICE_NAME":           "notification-service",
	"PORT":                   "8085",
	"LOG_LEVEL":              "info",
	"MIGRATE_ON_START":       false,
	"KAFKA_GROUP_ID":         "notification-service",
	"KAFKA_TOPICS":           events.AppointmentBooked + "," + events.AppointmentCancelled,
	"CONSUMER_MAX_ATTEMPTS":  3,
	"CONSUMER_RETRY_BACKOFF": "1s",
	"NOTIFY_TIMEZONE":        "UTC",
	"SMTP_HOST":              "mailpit",
	"SMTP_PORT":              "1025",
	"SMTP_FROM":              "no-reply@zapagenda.local",
	"OTEL_ENABLED":           false,
	"OTEL_SAMPLE_RATIO":      "1",
}

func loadConfig() (appConfig, error) {
	l, err := config.New(defaults)
	if err != nil {
		return appConfig{}, err
	}

	cfg := appConfig{
		Service:           l.String("SERVICE_NAME"),
		LogLevel:          l.String("LOG_LEVEL"),
		MigrateOnStart:    l.Bool("MIGRATE_ON_START"),
		KafkaBrokers:      l.List("KAFKA_BROKERS"),
		GroupID:           l.String("KAFKA_GROUP_ID"),
		Topics:            l.List("KAFKA_TOPICS"),
		SMTPHost:          l.String("SMTP_HOST"),
		SMTPPort:          l.String("SMTP_PORT"),
		SMTPFrom:          l.String("SMTP_FROM"),
		SMTPUsername:      l.String("SMTP_USERNAME"),
		SMTPPassword:      l.String("SMTP_PASSWORD"),
		EvolutionURL:      l.String("EVOLUTION_API_URL"),
		EvolutionInstance: l.String("EVOLUTION_INSTANCE"),
		EvolutionAPIKey:   l.String("EVOLUTION_API_KEY"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.Port, err = l.Port("PORT")
	collect(err)
	cfg.DatabaseURL, err = l.RequiredString("DATABASE_URL")
	collect(err)
	cfg.MaxAttempts, err = l.Int("CONSUMER_MAX_ATTEMPTS")
	collect(err)
	cfg.RetryBackoff, err = l.Duration("CONSUMER_RETRY_BACKOFF")
	collect(err)
	cfg.Location, err = time.LoadLocation(l.String("NOTIFY_TIMEZONE"))
	if err != nil {
		collect(fmt.Errorf("NOTIFY_TIMEZONE: %w", err))
	}
	if len(cfg.KafkaBrokers) == 0 {
		collect(errors.New("KAFKA_BROKERS is required"))
	}
	if len(cfg.Topics) == 0 {
		collect(errors.New("KAFKA_TOPICS must name at least one topic"))
	}

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

	if len(errs) > 0 {
		return appConfig{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c appConfig) whatsAppEnabled() bool {
	return c.EvolutionURL != "" && c.EvolutionInstance != ""
}
