package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	AutoMigrate        bool

	FrontendURL       string
	PaymentReturnPath string

	StripeSecretKey         string
	StripeWebhookSecret     string
	StripeAPIBaseURL        string
	StripeIgnoreAPIVersion  bool
	GatewayTimeout          time.Duration
	GatewayBreakerMinReq    int
	GatewayBreakerFailRatio float64
	GatewayBreakerOpenFor   time.Duration

	WebhookReplayTTL     time.Duration
	WebhookMaxBodyBytes  int64
	JSONMaxBodyBytes     int64
	IdempotencyTTL       time.Duration
	FulfillLockTTL       time.Duration
	LockRetryBackoff     time.Duration
	CheckoutRateLimitMax int
	CheckoutRateWindow   time.Duration

	SecurityHeaders bool
	EnableHSTS      bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AutoMigrate:        parseBool(k.String("DB_AUTO_MIGRATE")),

		FrontendURL:       strings.TrimRight(strings.TrimSpace(k.String("FRONTEND_URL")), "/"),
		PaymentReturnPath: valueOrDefault(k.String("PAYMENT_RETURN_PATH"), "/return"),

		StripeSecretKey:         strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripeWebhookSecret:     strings.TrimSpace(k.String("STRIPE_WEBHOOK_SECRET")),
		StripeAPIBaseURL:        strings.TrimSpace(k.String("STRIPE_API_BASE_URL")),
		StripeIgnoreAPIVersion:  parseBool(k.String("STRIPE_IGNORE_API_VERSION")),
		GatewayTimeout:          parseDuration(k.String("GATEWAY_TIMEOUT"), "20s"),
		GatewayBreakerMinReq:    parseInt(k.String("GATEWAY_BREAKER_MIN_REQUESTS"), 5),
		GatewayBreakerFailRatio: parseFloat(k.String("GATEWAY_BREAKER_FAILURE_RATIO"), 0.5),
		GatewayBreakerOpenFor:   parseDuration(k.String("GATEWAY_BREAKER_OPEN_FOR"), "30s"),

		WebhookReplayTTL:     parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "72h"),
		WebhookMaxBodyBytes:  int64(parseInt(k.String("WEBHOOK_MAX_BODY_BYTES"), 65536)),
		JSONMaxBodyBytes:     int64(parseInt(k.String("JSON_MAX_BODY_BYTES"), 16384)),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		FulfillLockTTL:       parseDuration(k.String("FULFILL_LOCK_TTL"), "10s"),
		LockRetryBackoff:     parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		CheckoutRateLimitMax: parseInt(k.String("CHECKOUT_RATE_LIMIT_MAX"), 20),
		CheckoutRateWindow:   parseDuration(k.String("CHECKOUT_RATE_LIMIT_WINDOW"), "1m"),

		SecurityHeaders: parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		EnableHSTS:      parseBool(k.String("SECURITY_HSTS_ENABLED")),
	}

	if !strings.HasPrefix(cfg.PaymentReturnPath, "/") {
		cfg.PaymentReturnPath = "/" + cfg.PaymentReturnPath
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.StripeSecretKey == "" {
		return errors.New("STRIPE_SECRET_KEY is required")
	}
	if c.StripeWebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.FrontendURL == "" {
		return errors.New("FRONTEND_URL is required")
	}
	u, err := url.Parse(c.FrontendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FRONTEND_URL must be an absolute http(s) url, got %q", c.FrontendURL)
	}
	if c.StripeAPIBaseURL != "" {
		if u, err := url.Parse(c.StripeAPIBaseURL); err != nil || u.Host == "" {
			return fmt.Errorf("STRIPE_API_BASE_URL is not a valid url: %q", c.StripeAPIBaseURL)
		}
	}
	if _, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(c.Port), ":")); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// ReturnURL is the post-payment redirect handed to the gateway. The gateway
// substitutes {CHECKOUT_SESSION_ID} with the real session id.
func (c *Config) ReturnURL() string {
	return c.FrontendURL + c.PaymentReturnPath + "?session_id={CHECKOUT_SESSION_ID}"
}

// RedisEnabled reports whether Redis-backed features should be wired.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != ""
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
