package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EMAIL_USER", "")
	t.Setenv("EMAIL_PASS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "orders.events", cfg.OrdersExchange)
	assert.Equal(t, "mailer.orders-paid", cfg.OrdersQueue)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.Enabled())
}

func TestLoadSMTPFromEnv(t *testing.T) {
	t.Setenv("EMAIL_USER", "shop@example.com")
	t.Setenv("EMAIL_PASS", "app-password")
	t.Setenv("EMAIL_PORT", "465")
	t.Setenv("EMAIL_SECURE", "true")
	t.Setenv("EMAIL_TIMEOUT", "3s")
	t.Setenv("MAILER_PREFETCH", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.SMTP.Enabled())
	assert.Equal(t, "shop@example.com", cfg.SMTP.From)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.Secure)
	assert.Equal(t, 3*time.Second, cfg.SMTP.Timeout)
	assert.Equal(t, 8, cfg.Prefetch)
}
