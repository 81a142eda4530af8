package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds the configuration for creating a Stripe gateway.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// BaseURL overrides the Stripe API endpoint, mainly for tests.
	BaseURL string
	// HTTPClient carries timeout and circuit breaker transport.
	HTTPClient       *http.Client
	IgnoreAPIVersion bool
	Logger           zerolog.Logger
}

// Stripe implements Gateway on top of the official stripe-go SDK.
type Stripe struct {
	sessions      session.Client
	webhookSecret string
	ignoreVersion bool
}

var _ Gateway = (*Stripe)(nil)

// NewStripe builds a Stripe gateway. Network retries are disabled so failures
// surface to the caller immediately.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     zerologLeveled{log: cfg.Logger.With().Str("component", "stripe").Logger()},
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		backendCfg.URL = stripe.String(base)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return &Stripe{
		sessions:      session.Client{B: backend, Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		ignoreVersion: cfg.IgnoreAPIVersion,
	}, nil
}

// CreateSession opens an embedded checkout session in payment mode with a
// single line item and the booking id attached as metadata.
func (s *Stripe) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:      stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:    stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		ReturnURL: stripe.String(req.ReturnURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(req.Quantity),
		}},
	}
	params.Context = ctx
	params.AddMetadata(MetadataBookingID, req.BookingID)
	cs, err := s.sessions.New(params)
	if err != nil {
		return Session{}, err
	}
	return fromStripeSession(cs), nil
}

// GetSession retrieves a checkout session with its payment intent expanded.
func (s *Stripe) GetSession(ctx context.Context, id string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	cs, err := s.sessions.Get(id, params)
	if err != nil {
		return Session{}, err
	}
	return fromStripeSession(cs), nil
}

// ConstructEvent verifies the signature header against the exact payload bytes.
func (s *Stripe) ConstructEvent(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: s.ignoreVersion,
	})
	if err != nil {
		return Event{}, errors.Join(ErrVerification, err)
	}
	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if strings.HasPrefix(out.Type, "checkout.session.") && ev.Data != nil {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return Event{}, errors.Join(ErrVerification, fmt.Errorf("decode checkout session: %w", err))
		}
		out.SessionID = cs.ID
	}
	return out, nil
}

func fromStripeSession(cs *stripe.CheckoutSession) Session {
	if cs == nil {
		return Session{}
	}
	out := Session{
		ID:            cs.ID,
		ClientSecret:  cs.ClientSecret,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		CustomerEmail: cs.CustomerEmail,
		Metadata:      cs.Metadata,
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		out.CustomerEmail = cs.CustomerDetails.Email
	}
	return out
}

// zerologLeveled satisfies stripe.LeveledLoggerInterface.
type zerologLeveled struct {
	log zerolog.Logger
}

func (l zerologLeveled) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }

// Infof is demoted to debug; the SDK logs every request at info.
func (l zerologLeveled) Infof(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }

func (l zerologLeveled) Warnf(format string, v ...interface{}) { l.log.Warn().Msgf(format, v...) }

func (l zerologLeveled) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
