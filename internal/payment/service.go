package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/hotel-payments/internal/booking"
	"github.com/noah-isme/hotel-payments/internal/events"
	"github.com/noah-isme/hotel-payments/internal/obs"
)

// BookingStore is the persistence surface the payment flow needs.
type BookingStore interface {
	GetBooking(ctx context.Context, id string) (booking.Booking, error)
	GetHotel(ctx context.Context, id string) (booking.Hotel, error)
	MarkBookingPaid(ctx context.Context, id string) (bool, error)
}

// EventEmitter publishes domain events after a successful transition.
type EventEmitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Locker serialises work on a key across instances.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// FulfillOutcome describes what a fulfillment call did.
type FulfillOutcome string

const (
	FulfillPaid            FulfillOutcome = "paid"
	FulfillAlreadyPaid     FulfillOutcome = "already_paid"
	FulfillNotPaid         FulfillOutcome = "not_paid"
	FulfillMetadataMissing FulfillOutcome = "metadata_missing"
	FulfillError           FulfillOutcome = "error"
)

// Service creates checkout sessions, fulfills paid sessions and answers status polls.
type Service struct {
	Store     BookingStore
	Gateway   Gateway
	ReturnURL string
	Events    EventEmitter
	// Locker is optional; without it fulfillment relies on the conditional update alone.
	Locker  Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// StatusView is the composite answer to a session status poll. PaymentStatus is
// the booking's own field and may lag Status until the webhook lands.
type StatusView struct {
	BookingID     string          `json:"bookingId"`
	Booking       booking.Booking `json:"booking"`
	Hotel         booking.Hotel   `json:"hotel"`
	Status        string          `json:"status"`
	CustomerEmail *string         `json:"customer_email"`
	PaymentStatus string          `json:"paymentStatus"`
}

// CreateCheckoutSession opens a gateway session for the booking, charging the
// hotel's price once per night of the stay.
func (s *Service) CreateCheckoutSession(ctx context.Context, bookingID string) (Session, error) {
	if s == nil || s.Store == nil || s.Gateway == nil {
		return Session{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.CreateCheckoutSession")
	defer span.End()

	start := time.Now()
	result := "error"
	defer func() {
		span.SetAttributes(
			attribute.String("checkout.result", result),
			attribute.Float64("checkout.duration_ms", obs.DurationMillis(time.Since(start))),
		)
		if obs.CheckoutSessionTotal != nil {
			obs.CheckoutSessionTotal.WithLabelValues(result).Inc()
		}
	}()

	bookingID = strings.TrimSpace(bookingID)
	if bookingID == "" {
		result = "invalid"
		return Session{}, invalidRequestError("bookingId is required")
	}
	span.SetAttributes(attribute.String("booking.id", bookingID))

	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		result = resultLabel(err)
		return Session{}, wrapLookup("Booking not found", err)
	}
	hotel, err := s.Store.GetHotel(ctx, b.HotelID)
	if err != nil {
		result = resultLabel(err)
		return Session{}, wrapLookup("Hotel not found", err)
	}
	if !hotel.HasPrice() {
		result = "configuration"
		return Session{}, configurationError("Stripe price ID is missing for this hotel")
	}

	nights := b.Nights()
	span.SetAttributes(attribute.Int64("booking.nights", nights))
	if nights <= 0 {
		s.Logger.Warn().
			Str("booking_id", b.ID).
			Time("check_in", b.CheckIn).
			Time("check_out", b.CheckOut).
			Int64("nights", nights).
			Msg("booking has a non-positive stay length")
	}

	sess, err := s.callGateway(ctx, "create_session", func(ctx context.Context) (Session, error) {
		return s.Gateway.CreateSession(ctx, SessionRequest{
			BookingID: b.ID,
			PriceID:   hotel.StripePriceID,
			Quantity:  nights,
			ReturnURL: s.ReturnURL,
		})
	})
	if err != nil {
		result = "gateway_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "create session")
		return Session{}, gatewayError("Error creating checkout session", err)
	}
	if strings.TrimSpace(sess.ClientSecret) == "" {
		result = "gateway_error"
		return Session{}, gatewayError("Checkout session did not return a client secret", nil)
	}
	span.SetAttributes(attribute.String("checkout.session_id", sess.ID))
	result = "success"
	s.Logger.Info().Str("booking_id", b.ID).Str("session_id", sess.ID).Int64("quantity", nights).Msg("checkout session created")
	return sess, nil
}

// Fulfill marks the booking behind a gateway session PAID once the gateway
// confirms payment. Repeated and concurrent calls are safe: a PAID booking is
// never written again. A session without booking metadata is logged and
// skipped without error.
func (s *Service) Fulfill(ctx context.Context, sessionID string) (FulfillOutcome, error) {
	if s == nil || s.Store == nil || s.Gateway == nil {
		return FulfillError, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Fulfill")
	defer span.End()

	outcome := FulfillError
	defer func() {
		span.SetAttributes(attribute.String("fulfillment.outcome", string(outcome)))
		if obs.FulfillmentTotal != nil {
			obs.FulfillmentTotal.WithLabelValues(string(outcome)).Inc()
		}
	}()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return outcome, invalidRequestError("session id is required")
	}
	span.SetAttributes(attribute.String("checkout.session_id", sessionID))

	// The event payload is not trusted; the gateway copy is authoritative.
	sess, err := s.callGateway(ctx, "get_session", func(ctx context.Context) (Session, error) {
		return s.Gateway.GetSession(ctx, sessionID)
	})
	if err != nil {
		span.RecordError(err)
		return outcome, gatewayError("Error retrieving checkout session", err)
	}
	bookingID := sess.BookingID()
	if bookingID == "" {
		outcome = FulfillMetadataMissing
		s.Logger.Warn().Str("session_id", sessionID).Msg("no bookingId found in session metadata")
		return outcome, nil
	}
	span.SetAttributes(attribute.String("booking.id", bookingID))

	run := func(ctx context.Context) error {
		var err error
		outcome, err = s.settle(ctx, bookingID, sess)
		return err
	}
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, "fulfill:booking:"+bookingID, s.LockTTL, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		outcome = FulfillError
		span.RecordError(err)
		span.SetStatus(codes.Error, "fulfill")
		return outcome, err
	}

	log := s.Logger.With().Str("booking_id", bookingID).Str("session_id", sessionID).Logger()
	switch outcome {
	case FulfillPaid:
		log.Info().Msg("booking marked as paid")
		s.emitPaid(ctx, bookingID, sess)
	case FulfillAlreadyPaid:
		log.Debug().Msg("booking already paid, skipping")
	case FulfillNotPaid:
		log.Info().Str("payment_status", sess.PaymentStatus).Msg("session not paid yet")
	}
	return outcome, nil
}

func (s *Service) settle(ctx context.Context, bookingID string, sess Session) (FulfillOutcome, error) {
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return FulfillError, wrapLookup("Booking not found", err)
	}
	if b.IsPaid() {
		return FulfillAlreadyPaid, nil
	}
	if !sess.IsPaid() {
		return FulfillNotPaid, nil
	}
	changed, err := s.Store.MarkBookingPaid(ctx, b.ID)
	if err != nil {
		return FulfillError, fmt.Errorf("mark booking %s paid: %w", b.ID, err)
	}
	if !changed {
		// Another delivery won the race between the read and the write.
		return FulfillAlreadyPaid, nil
	}
	return FulfillPaid, nil
}

func (s *Service) emitPaid(ctx context.Context, bookingID string, sess Session) {
	if s.Events == nil {
		return
	}
	payload := map[string]any{
		"bookingId": bookingID,
		"sessionId": sess.ID,
		"status":    string(booking.PaymentStatusPaid),
	}
	if sess.CustomerEmail != "" {
		payload["email"] = sess.CustomerEmail
	}
	if _, err := s.Events.Emit(ctx, events.TopicBookingPaid, bookingID, payload); err != nil {
		s.Logger.Error().Err(err).Str("booking_id", bookingID).Msg("emit booking.paid")
	}
}

// SessionStatus joins the gateway session with its booking and hotel. It never writes.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (StatusView, error) {
	if s == nil || s.Store == nil || s.Gateway == nil {
		return StatusView{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.SessionStatus")
	defer span.End()

	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("status.result", result))
		if obs.SessionStatusTotal != nil {
			obs.SessionStatusTotal.WithLabelValues(result).Inc()
		}
	}()

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		result = "invalid"
		return StatusView{}, invalidRequestError("session_id is required")
	}
	span.SetAttributes(attribute.String("checkout.session_id", sessionID))

	sess, err := s.callGateway(ctx, "get_session", func(ctx context.Context) (Session, error) {
		return s.Gateway.GetSession(ctx, sessionID)
	})
	if err != nil {
		result = "gateway_error"
		span.RecordError(err)
		return StatusView{}, gatewayError("Error retrieving checkout session", err)
	}
	bookingID := sess.BookingID()
	if bookingID == "" {
		result = "metadata_missing"
		return StatusView{}, metadataMissingError(sessionID)
	}
	b, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		result = resultLabel(err)
		return StatusView{}, wrapLookup("Booking not found", err)
	}
	hotel, err := s.Store.GetHotel(ctx, b.HotelID)
	if err != nil {
		result = resultLabel(err)
		return StatusView{}, wrapLookup("Hotel not found", err)
	}

	view := StatusView{
		BookingID:     bookingID,
		Booking:       b,
		Hotel:         hotel,
		Status:        sess.Status,
		PaymentStatus: string(b.PaymentStatus),
	}
	if sess.CustomerEmail != "" {
		email := sess.CustomerEmail
		view.CustomerEmail = &email
	}
	result = "success"
	return view, nil
}

func (s *Service) callGateway(ctx context.Context, op string, fn func(context.Context) (Session, error)) (Session, error) {
	start := time.Now()
	sess, err := fn(ctx)
	if obs.GatewayLatency != nil {
		label := "success"
		if err != nil {
			label = "error"
		}
		obs.GatewayLatency.WithLabelValues(op, label).Observe(obs.DurationMillis(time.Since(start)))
	}
	return sess, err
}

func wrapLookup(message string, err error) error {
	if errors.Is(err, booking.ErrNotFound) {
		return notFoundError(message, err)
	}
	return err
}

func resultLabel(err error) string {
	if errors.Is(err, booking.ErrNotFound) {
		return "not_found"
	}
	return "error"
}
