package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hotel-payments/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":          "postgres://localhost:5432/hotel",
		"STRIPE_SECRET_KEY":     "sk_test_123",
		"STRIPE_WEBHOOK_SECRET": "whsec_123",
		"FRONTEND_URL":          "https://app.example.com/",
		"PORT":                  "",
		"PAYMENT_RETURN_PATH":   "",
		"WEBHOOK_REPLAY_TTL":    "",
		"REDIS_URL":             "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "https://app.example.com", cfg.FrontendURL)
	require.Equal(t, "https://app.example.com/return?session_id={CHECKOUT_SESSION_ID}", cfg.ReturnURL())
	require.Equal(t, 72*time.Hour, cfg.WebhookReplayTTL)
	require.False(t, cfg.RedisEnabled())
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["PAYMENT_RETURN_PATH"] = "checkout/return"
	env["WEBHOOK_REPLAY_TTL"] = "1h"
	env["REDIS_URL"] = "redis://localhost:6379/0"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, "https://app.example.com/checkout/return?session_id={CHECKOUT_SESSION_ID}", cfg.ReturnURL())
	require.Equal(t, time.Hour, cfg.WebhookReplayTTL)
	require.True(t, cfg.RedisEnabled())
}

func TestLoadFailsFastOnMissingSecrets(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "FRONTEND_URL"} {
		t.Run(key, func(t *testing.T) {
			env := baseEnv()
			env[key] = ""
			_, err := config.LoadForTests(env)
			require.ErrorContains(t, err, key)
		})
	}
}

func TestLoadRejectsRelativeFrontendURL(t *testing.T) {
	env := baseEnv()
	env["FRONTEND_URL"] = "app.example.com"
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "FRONTEND_URL")
}

func TestLoadRejectsNonNumericPort(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "http"
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "PORT")
}
