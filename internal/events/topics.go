package events

// Topic constants for domain events emitted by the payment bridge.
const (
	TopicBookingPaid = "booking.paid"
)

