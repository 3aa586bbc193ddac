package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("PUBLIC_BASE_URL", "https://shop.example.com/")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PENDING_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", cfg.PublicBaseURL)
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, 25*time.Hour, cfg.PendingTimeout)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.Equal(t, "orders.events", cfg.OrdersExchange)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CHECKOUT_CURRENCY", "USD")
	t.Setenv("SWEEP_INTERVAL", "1m")
	t.Setenv("ORDERS_OUTBOX_BATCH", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 32, cfg.OutboxBatchSize)
}

func TestLoadRequiresSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET, STRIPE_WEBHOOK_SECRET")
}

func TestLoadRejectsRelativeBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("PUBLIC_BASE_URL", "shop.example.com")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	for _, key := range []string{"SWEEP_INTERVAL", "ORDERS_OUTBOX_INTERVAL", "PENDING_TIMEOUT"} {
		for _, value := range []string{"0s", "-5m"} {
			t.Run(key+"="+value, func(t *testing.T) {
				setRequired(t)
				t.Setenv(key, value)

				_, err := Load()
				require.Error(t, err)
				assert.Contains(t, err.Error(), key)
			})
		}
	}
}

func TestLoadRejectsNonPositiveBatch(t *testing.T) {
	setRequired(t)
	t.Setenv("SWEEP_BATCH", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestAllowedOriginFallsBackToBaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("ORDERS_ALLOWED_ORIGIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com", cfg.AllowedOrigin)

	t.Setenv("ORDERS_ALLOWED_ORIGIN", "https://app.example.com")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com", cfg.AllowedOrigin)
}
