package payment

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/hotel-payments/internal/obs"
)

type replayStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Fulfiller settles a paid checkout session.
type Fulfiller interface {
	Fulfill(ctx context.Context, sessionID string) (FulfillOutcome, error)
}

// Webhook authenticates gateway callbacks and dispatches checkout events to fulfillment.
type Webhook struct {
	Verifier  EventVerifier
	Fulfiller Fulfiller
	// Replay is optional. When set, an event id is processed at most once per ReplayTTL.
	Replay    replayStore
	ReplayTTL time.Duration
	Logger    zerolog.Logger
}

// Handle verifies the signature over the exact request bytes, acknowledges
// every authenticated event with 200 and fulfills the checkout ones.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Verifier == nil || h.Fulfiller == nil {
		http.Error(w, "Webhook Error: webhook unavailable", http.StatusInternalServerError)
		return
	}
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "PaymentWebhook.Handle")
	defer span.End()

	eventType := "unknown"
	outcome := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.webhook.result", outcome))
		if obs.PaymentWebhookTotal != nil {
			obs.PaymentWebhookTotal.WithLabelValues(eventType, outcome).Inc()
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		span.RecordError(err)
		outcome = "invalid"
		webhookError(w, err)
		return
	}
	ev, err := h.Verifier.ConstructEvent(body, signatureHeader(r))
	if err != nil {
		span.RecordError(err)
		outcome = "invalid"
		h.Logger.Warn().Err(err).Msg("webhook signature verification failed")
		webhookError(w, err)
		return
	}
	eventType = ev.Type
	span.SetAttributes(
		attribute.String("payment.webhook.event_id", ev.ID),
		attribute.String("payment.webhook.event_type", ev.Type),
	)

	if !ev.Actionable() {
		outcome = "ignored"
		w.WriteHeader(http.StatusOK)
		return
	}

	replayKey := ""
	if h.Replay != nil && ev.ID != "" {
		replayKey = "stripe:evt:" + ev.ID
		ttl := h.ReplayTTL
		if ttl <= 0 {
			ttl = 72 * time.Hour
		}
		fresh, err := h.Replay.SetNX(ctx, replayKey, "1", ttl).Result()
		if err != nil {
			// The fulfillment guard still holds without the marker.
			h.Logger.Error().Err(err).Str("event_id", ev.ID).Msg("webhook replay store unavailable")
			replayKey = ""
		} else if !fresh {
			outcome = "duplicate"
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	result, err := h.Fulfiller.Fulfill(ctx, ev.SessionID)
	if err != nil {
		span.RecordError(err)
		if replayKey != "" {
			_ = h.Replay.Del(context.Background(), replayKey).Err()
		}
		h.Logger.Error().Err(err).Str("event_id", ev.ID).Str("session_id", ev.SessionID).Msg("webhook fulfillment failed")
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	outcome = string(result)
	w.WriteHeader(http.StatusOK)
}

func signatureHeader(r *http.Request) string {
	if sig := strings.TrimSpace(r.Header.Get("Stripe-Signature")); sig != "" {
		return sig
	}
	return strings.TrimSpace(r.Header.Get("Signature"))
}

func webhookError(w http.ResponseWriter, err error) {
	http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
}
