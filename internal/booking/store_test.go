package booking_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hotel-payments/internal/booking"
)

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakeDB struct {
	row      fakeRow
	tag      pgconn.CommandTag
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL = sql
	f.lastArgs = args
	return f.tag, f.execErr
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL = sql
	f.lastArgs = args
	return f.row
}

func noRows() fakeRow {
	return fakeRow{scan: func(...any) error { return pgx.ErrNoRows }}
}

func TestGetBookingScansRow(t *testing.T) {
	checkIn := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	checkOut := time.Date(2024, 1, 3, 11, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "B1"
		*dest[1].(*string) = "H1"
		*dest[2].(*pgtype.Text) = pgtype.Text{String: "U1", Valid: true}
		*dest[3].(*time.Time) = checkIn
		*dest[4].(*time.Time) = checkOut
		*dest[5].(*string) = "UNPAID"
		*dest[6].(*[]byte) = []byte(`{"guests":2}`)
		return nil
	}}}
	store := booking.NewStore(db)

	b, err := store.GetBooking(context.Background(), " B1 ")
	require.NoError(t, err)
	require.Equal(t, []any{"B1"}, db.lastArgs)
	require.Equal(t, "H1", b.HotelID)
	require.Equal(t, "U1", b.UserID)
	require.Equal(t, booking.PaymentStatusUnpaid, b.PaymentStatus)
	require.False(t, b.IsPaid())
	require.EqualValues(t, 2, b.Attributes["guests"])
	require.EqualValues(t, 2, b.Nights())
}

func TestGetBookingNotFound(t *testing.T) {
	store := booking.NewStore(&fakeDB{row: noRows()})
	_, err := store.GetBooking(context.Background(), "missing")
	require.ErrorIs(t, err, booking.ErrNotFound)
}

func TestGetHotelScansOptionalPrice(t *testing.T) {
	db := &fakeDB{row: fakeRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "H1"
		*dest[1].(*string) = "Grand Hotel"
		*dest[2].(*pgtype.Text) = pgtype.Text{}
		*dest[3].(*pgtype.Text) = pgtype.Text{}
		*dest[4].(*[]byte) = nil
		return nil
	}}}
	hotel, err := booking.NewStore(db).GetHotel(context.Background(), "H1")
	require.NoError(t, err)
	require.Equal(t, "Grand Hotel", hotel.Name)
	require.False(t, hotel.HasPrice())
	require.Nil(t, hotel.Attributes)
}

func TestGetHotelNotFound(t *testing.T) {
	_, err := booking.NewStore(&fakeDB{row: noRows()}).GetHotel(context.Background(), "H404")
	require.ErrorIs(t, err, booking.ErrNotFound)
}

func TestGetHotelPropagatesErrors(t *testing.T) {
	boom := errors.New("connection reset")
	db := &fakeDB{row: fakeRow{scan: func(...any) error { return boom }}}
	_, err := booking.NewStore(db).GetHotel(context.Background(), "H1")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, booking.ErrNotFound)
}

func TestMarkBookingPaidReportsTransition(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 1")}
	store := booking.NewStore(db)

	changed, err := store.MarkBookingPaid(context.Background(), "B1")
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, strings.Contains(db.lastSQL, "payment_status <> 'PAID'"))

	db.tag = pgconn.NewCommandTag("UPDATE 0")
	changed, err = store.MarkBookingPaid(context.Background(), "B1")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestUpsertBookingDefaultsStatus(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("INSERT 0 1")}
	err := booking.NewStore(db).UpsertBooking(context.Background(), booking.Booking{ID: "B1", HotelID: "H1"})
	require.NoError(t, err)
	require.Equal(t, "UNPAID", db.lastArgs[5])
	require.Equal(t, []byte("{}"), db.lastArgs[6])
}

func TestNightsBetweenRoundsUp(t *testing.T) {
	in := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.EqualValues(t, 2, booking.NightsBetween(in, in.Add(48*time.Hour)))
	require.EqualValues(t, 3, booking.NightsBetween(in, in.Add(49*time.Hour)))
	require.EqualValues(t, 0, booking.NightsBetween(in, in))
	require.EqualValues(t, -1, booking.NightsBetween(in, in.Add(-24*time.Hour)))
}
