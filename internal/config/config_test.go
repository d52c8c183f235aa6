package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TX_MAX_ATTEMPTS", "")
	t.Setenv("LOYALTY_POINTS_RATE", "")
	t.Setenv("OUTBOX_POLL_INTERVAL", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.Equal(t, "0.01", cfg.LoyaltyPointsRate.String())
	assert.Equal(t, time.Second, cfg.OutboxPollInterval)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TX_MAX_ATTEMPTS", "9")
	t.Setenv("LOYALTY_POINTS_RATE", "0.05")
	t.Setenv("TAX_RATE", "0.11")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("APP_ENV", "development")

	cfg := Load()
	assert.Equal(t, 9, cfg.TxMaxAttempts)
	assert.Equal(t, "0.05", cfg.LoyaltyPointsRate.String())
	assert.Equal(t, "0.11", cfg.TaxRate.String())
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Development())
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("TX_MAX_ATTEMPTS", "-3")
	t.Setenv("LOYALTY_POINTS_RATE", "lots")
	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 5, cfg.TxMaxAttempts)
	assert.Equal(t, "0.01", cfg.LoyaltyPointsRate.String())
	assert.Equal(t, time.Second, cfg.OutboxPollInterval)
}
