package payment_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/noah-isme/hotel-payments/internal/booking"
	"github.com/noah-isme/hotel-payments/internal/payment"
)

const webhookSecret = "whsec_test_secret"

func newVerifier(t *testing.T) *payment.Stripe {
	t.Helper()
	gw, err := payment.NewStripe(payment.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: webhookSecret})
	require.NoError(t, err)
	return gw
}

func eventPayload(id, eventType, sessionID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"api_version":%q,"data":{"object":{"id":%q,"object":"checkout.session"}}}`,
		id, eventType, stripe.APIVersion, sessionID))
}

func signedRequest(payload []byte, secret string) *http.Request {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	fulfiller := &fakeFulfiller{}
	wh := payment.Webhook{Verifier: newVerifier(t), Fulfiller: fulfiller}

	payload := eventPayload("evt_1", payment.EventCheckoutCompleted, "cs_1")
	cases := map[string]*http.Request{
		"wrong secret": signedRequest(payload, "whsec_other"),
		"no header":    httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload)),
	}
	tampered := signedRequest(payload, webhookSecret)
	tampered.Body = http.NoBody
	cases["tampered body"] = tampered

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			wh.Handle(rr, req)
			require.Equal(t, http.StatusBadRequest, rr.Code)
			require.Contains(t, rr.Body.String(), "Webhook Error:")
		})
	}
	require.Zero(t, fulfiller.count())
}

func TestWebhookAcknowledgesUnknownEvents(t *testing.T) {
	fulfiller := &fakeFulfiller{}
	wh := payment.Webhook{Verifier: newVerifier(t), Fulfiller: fulfiller}

	for _, eventType := range []string{"payment_intent.created", "charge.refunded", "checkout.session.expired"} {
		rr := httptest.NewRecorder()
		wh.Handle(rr, signedRequest(eventPayload("evt_"+eventType, eventType, "cs_1"), webhookSecret))
		require.Equal(t, http.StatusOK, rr.Code)
		require.Empty(t, rr.Body.String())
	}
	require.Zero(t, fulfiller.count())
}

func TestWebhookDispatchesCheckoutEvents(t *testing.T) {
	fulfiller := &fakeFulfiller{}
	wh := payment.Webhook{Verifier: newVerifier(t), Fulfiller: fulfiller}

	for i, eventType := range []string{payment.EventCheckoutCompleted, payment.EventCheckoutAsyncPaymentSucceed} {
		payload := eventPayload(fmt.Sprintf("evt_%d", i), eventType, "cs_abc")
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: webhookSecret})
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(payload))
		req.Header.Set("signature", signed.Header)

		rr := httptest.NewRecorder()
		wh.Handle(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	require.Equal(t, []string{"cs_abc", "cs_abc"}, fulfiller.calls)
}

func TestWebhookFulfillsBookingEndToEnd(t *testing.T) {
	store, gw := seeded(), newFakeGateway()
	svc := newService(store, gw)
	sess, err := svc.CreateCheckoutSession(context.Background(), "B1")
	require.NoError(t, err)
	gw.settle(sess.ID, "guest@example.com")

	wh := payment.Webhook{Verifier: newVerifier(t), Fulfiller: svc}
	payload := eventPayload("evt_paid", payment.EventCheckoutCompleted, sess.ID)

	rr := httptest.NewRecorder()
	wh.Handle(rr, signedRequest(payload, webhookSecret))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, booking.PaymentStatusPaid, store.status("B1"))

	// Gateway redelivery of the same event is a no-op.
	rr = httptest.NewRecorder()
	wh.Handle(rr, signedRequest(payload, webhookSecret))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, booking.PaymentStatusPaid, store.status("B1"))
	require.Equal(t, 1, store.markCalls)
}

func TestWebhookMissingMetadataStillAcknowledged(t *testing.T) {
	store, gw := seeded(), newFakeGateway()
	gw.sessions["cs_foreign"] = payment.Session{ID: "cs_foreign", PaymentStatus: "paid"}
	wh := payment.Webhook{Verifier: newVerifier(t), Fulfiller: newService(store, gw)}

	rr := httptest.NewRecorder()
	wh.Handle(rr, signedRequest(eventPayload("evt_f", payment.EventCheckoutCompleted, "cs_foreign"), webhookSecret))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Zero(t, store.markCalls)
}

func TestWebhookReplayGuard(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fulfiller := &fakeFulfiller{}
	wh := payment.Webhook{Verifier: newVerifier(t), Fulfiller: fulfiller, Replay: client, ReplayTTL: time.Hour}
	payload := eventPayload("evt_dup", payment.EventCheckoutCompleted, "cs_1")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		wh.Handle(rr, signedRequest(payload, webhookSecret))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	require.Equal(t, 1, fulfiller.count())
	require.True(t, mr.Exists("stripe:evt:evt_dup"))
}

func TestWebhookFailureClearsReplayMarker(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fulfiller := &fakeFulfiller{err: errors.New("database unavailable")}
	wh := payment.Webhook{Verifier: newVerifier(t), Fulfiller: fulfiller, Replay: client, ReplayTTL: time.Hour}
	payload := eventPayload("evt_retry", payment.EventCheckoutCompleted, "cs_1")

	rr := httptest.NewRecorder()
	wh.Handle(rr, signedRequest(payload, webhookSecret))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.False(t, mr.Exists("stripe:evt:evt_retry"))

	fulfiller.err = nil
	rr = httptest.NewRecorder()
	wh.Handle(rr, signedRequest(payload, webhookSecret))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 2, fulfiller.count())
}
