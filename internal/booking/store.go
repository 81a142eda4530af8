package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/hotel-payments/internal/events"
)

// DBTX is the subset of pgx used by Store. Both *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists hotels, bookings and domain events in Postgres.
type Store struct {
	DB DBTX
}

// NewStore constructs a Store backed by the given connection.
func NewStore(db DBTX) *Store {
	return &Store{DB: db}
}

const getHotelSQL = `SELECT id, name, city, stripe_price_id, attributes, created_at, updated_at
FROM hotels WHERE id = $1`

// GetHotel loads a hotel by id.
func (s *Store) GetHotel(ctx context.Context, id string) (Hotel, error) {
	if s == nil || s.DB == nil {
		return Hotel{}, errors.New("booking: store not configured")
	}
	var (
		h       Hotel
		city    pgtype.Text
		priceID pgtype.Text
		attrs   []byte
	)
	err := s.DB.QueryRow(ctx, getHotelSQL, strings.TrimSpace(id)).Scan(
		&h.ID, &h.Name, &city, &priceID, &attrs, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Hotel{}, fmt.Errorf("hotel %s: %w", id, ErrNotFound)
		}
		return Hotel{}, err
	}
	h.City = city.String
	h.StripePriceID = priceID.String
	if h.Attributes, err = decodeAttributes(attrs); err != nil {
		return Hotel{}, fmt.Errorf("hotel %s attributes: %w", id, err)
	}
	return h, nil
}

const getBookingSQL = `SELECT id, hotel_id, user_id, check_in, check_out, payment_status, attributes, created_at, updated_at
FROM bookings WHERE id = $1`

// GetBooking loads a booking by id.
func (s *Store) GetBooking(ctx context.Context, id string) (Booking, error) {
	if s == nil || s.DB == nil {
		return Booking{}, errors.New("booking: store not configured")
	}
	var (
		b      Booking
		userID pgtype.Text
		status string
		attrs  []byte
	)
	err := s.DB.QueryRow(ctx, getBookingSQL, strings.TrimSpace(id)).Scan(
		&b.ID, &b.HotelID, &userID, &b.CheckIn, &b.CheckOut, &status, &attrs, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
		}
		return Booking{}, err
	}
	b.UserID = userID.String
	b.PaymentStatus = PaymentStatus(status)
	if b.Attributes, err = decodeAttributes(attrs); err != nil {
		return Booking{}, fmt.Errorf("booking %s attributes: %w", id, err)
	}
	return b, nil
}

// The status predicate keeps the write one-directional: a PAID row is never touched again.
const markBookingPaidSQL = `UPDATE bookings SET payment_status = 'PAID', updated_at = now()
WHERE id = $1 AND payment_status <> 'PAID'`

// MarkBookingPaid moves a booking to PAID. It reports whether this call
// performed the transition; false with a nil error means it was already PAID.
func (s *Store) MarkBookingPaid(ctx context.Context, id string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("booking: store not configured")
	}
	tag, err := s.DB.Exec(ctx, markBookingPaidSQL, strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const upsertHotelSQL = `INSERT INTO hotels (id, name, city, stripe_price_id, attributes)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, city = EXCLUDED.city,
	stripe_price_id = EXCLUDED.stripe_price_id, attributes = EXCLUDED.attributes, updated_at = now()`

// UpsertHotel inserts or replaces a hotel document.
func (s *Store) UpsertHotel(ctx context.Context, h Hotel) error {
	attrs, err := encodeAttributes(h.Attributes)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, upsertHotelSQL, h.ID, h.Name,
		pgtype.Text{String: h.City, Valid: h.City != ""},
		pgtype.Text{String: h.StripePriceID, Valid: h.HasPrice()},
		attrs,
	)
	return err
}

const upsertBookingSQL = `INSERT INTO bookings (id, hotel_id, user_id, check_in, check_out, payment_status, attributes)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET hotel_id = EXCLUDED.hotel_id, user_id = EXCLUDED.user_id,
	check_in = EXCLUDED.check_in, check_out = EXCLUDED.check_out, attributes = EXCLUDED.attributes, updated_at = now()`

// UpsertBooking inserts or replaces a booking document. The payment status of
// an existing row is left untouched.
func (s *Store) UpsertBooking(ctx context.Context, b Booking) error {
	attrs, err := encodeAttributes(b.Attributes)
	if err != nil {
		return err
	}
	status := b.PaymentStatus
	if !status.Valid() {
		status = PaymentStatusUnpaid
	}
	_, err = s.DB.Exec(ctx, upsertBookingSQL, b.ID, b.HotelID,
		pgtype.Text{String: b.UserID, Valid: b.UserID != ""},
		b.CheckIn, b.CheckOut, string(status), attrs,
	)
	return err
}

const insertDomainEventSQL = `INSERT INTO domain_events (id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4) RETURNING occurred_at`

// InsertEvent persists a domain event emitted by the events bus.
func (s *Store) InsertEvent(ctx context.Context, topic, aggregateID string, payload []byte) (events.Event, error) {
	if s == nil || s.DB == nil {
		return events.Event{}, errors.New("booking: store not configured")
	}
	ev := events.Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     payload,
	}
	var occurred time.Time
	if err := s.DB.QueryRow(ctx, insertDomainEventSQL, ev.ID, topic, aggregateID, payload).Scan(&occurred); err != nil {
		return events.Event{}, err
	}
	ev.OccurredAt = occurred
	return ev, nil
}

func decodeAttributes(raw []byte) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	if len(attrs) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(attrs)
}
