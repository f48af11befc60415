package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapagenda/zapagenda/libs/events"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/notifications")
	t.Setenv("KAFKA_BROKERS", "kafka:9092")
	t.Setenv("NOTIFY_TIMEZONE", "America/Sao_Paulo")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{events.AppointmentBooked, events.AppointmentCancelled}, cfg.Topics)
	assert.Equal(t, "America/Sao_Paulo", cfg.Location.String())
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.False(t, cfg.whatsAppEnabled())

	t.Setenv("EVOLUTION_API_URL", "http://evolution:8080")
	t.Setenv("EVOLUTION_INSTANCE", "salon")
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.whatsAppEnabled())
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("NOTIFY_TIMEZONE", "Mars/Olympus")
	t.Setenv("KAFKA_BROKERS", "")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "KAFKA_BROKERS is required")
	assert.Contains(t, err.Error(), "NOTIFY_TIMEZONE")
}
