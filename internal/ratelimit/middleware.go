package ratelimit

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/hotel-payments/internal/common"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ClientIPKey keys limits by route scope and client IP.
func ClientIPKey(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// Handler enforces a per-key request budget. When the limiter itself fails
// the request is let through and OnError is told; losing Redis must not take
// checkout down with it.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

var errRateLimited = errors.New("rate limit exceeded")

// Middleware rejects over-budget requests with 429 and advertises the budget
// in X-RateLimit-* headers.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if allowed {
			next.ServeHTTP(w, r)
			return
		}

		wait := math.Ceil(time.Until(resetAt).Seconds())
		headers.Set("Retry-After", strconv.Itoa(int(max(wait, 1))))
		common.JSONMessage(w, http.StatusTooManyRequests, "Too many requests", errRateLimited)
	})
}
