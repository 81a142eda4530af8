package booking

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ErrNotFound is returned when a booking or hotel document does not exist.
var ErrNotFound = errors.New("booking: record not found")

// PaymentStatus is the payment lifecycle state stored on a booking.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// Valid reports whether the status is one of the known values.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid:
		return true
	default:
		return false
	}
}

// Hotel is a bookable property. StripePriceID references a price configured
// in the payment gateway and may be empty when the hotel is not sellable yet.
type Hotel struct {
	ID            string         `json:"_id"`
	Name          string         `json:"name"`
	City          string         `json:"city,omitempty"`
	StripePriceID string         `json:"stripePriceId,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// HasPrice reports whether the hotel carries a gateway price identifier.
func (h Hotel) HasPrice() bool {
	return strings.TrimSpace(h.StripePriceID) != ""
}

// Booking is a guest's reserved stay together with its payment status.
type Booking struct {
	ID            string         `json:"_id"`
	HotelID       string         `json:"hotel"`
	UserID        string         `json:"user,omitempty"`
	CheckIn       time.Time      `json:"checkIn"`
	CheckOut      time.Time      `json:"checkOut"`
	PaymentStatus PaymentStatus  `json:"paymentStatus"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// IsPaid reports whether the booking already reached the terminal PAID state.
func (b Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentStatusPaid
}

// Nights returns the stay length rounded up to whole days. A check-out on or
// before check-in yields zero or a negative number; callers decide what to do.
func (b Booking) Nights() int64 {
	return NightsBetween(b.CheckIn, b.CheckOut)
}

// NightsBetween returns ceil((checkOut - checkIn) / 24h).
func NightsBetween(checkIn, checkOut time.Time) int64 {
	days := checkOut.Sub(checkIn).Hours() / 24
	return int64(math.Ceil(days))
}
