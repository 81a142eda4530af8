package payment

import (
	"context"
	"strings"
)

// MetadataBookingID is the session metadata key linking a gateway session to a booking.
const MetadataBookingID = "bookingId"

// Gateway event types that trigger fulfillment.
const (
	EventCheckoutCompleted           = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceed = "checkout.session.async_payment_succeeded"
)

// SessionPaymentStatusPaid is the gateway payment status that allows fulfillment.
const SessionPaymentStatusPaid = "paid"

// SessionRequest captures what the gateway needs to open a checkout session.
type SessionRequest struct {
	BookingID string
	PriceID   string
	Quantity  int64
	ReturnURL string
}

// Session is the gateway's view of a checkout session. The gateway owns it;
// this service never persists it.
type Session struct {
	ID            string
	ClientSecret  string
	Status        string
	PaymentStatus string
	CustomerEmail string
	Metadata      map[string]string
}

// BookingID returns the booking identifier carried in the session metadata.
func (s Session) BookingID() string {
	if s.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(s.Metadata[MetadataBookingID])
}

// IsPaid reports whether the gateway settled the payment.
func (s Session) IsPaid() bool {
	return s.PaymentStatus == SessionPaymentStatusPaid
}

// Event is an authenticated webhook event. SessionID is set for checkout.session.* events.
type Event struct {
	ID        string
	Type      string
	SessionID string
}

// Actionable reports whether the event type triggers fulfillment.
func (e Event) Actionable() bool {
	switch e.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceed:
		return true
	default:
		return false
	}
}

// Gateway abstracts the operations required from the upstream payment processor.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	EventVerifier
}

// EventVerifier authenticates a raw webhook payload against its signature header.
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (Event, error)
}
