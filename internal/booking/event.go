// Package booking consumes the external booking collaborator's broker
// events and applies them to the seat cache: a confirmed booking pins the
// seat BOOKED, a cancellation releases it and triggers an emergency sync
// of the whole event.
package booking

// ConfirmedEvent is published by the booking collaborator after payment
// succeeds.  The cache transition it drives is unconditional: durable
// truth wins over whatever the cache currently says.
type ConfirmedEvent struct {
	EventID     string `json:"event_id"`
	SeatID      string `json:"seat_id"`
	UserID      string `json:"user_id"`
	ConfirmedAt string `json:"confirmed_at"`
}

// CancelledEvent is published when a confirmed booking is cancelled and
// the seat should return to sale.
type CancelledEvent struct {
	EventID     string `json:"event_id"`
	SeatID      string `json:"seat_id"`
	UserID      string `json:"user_id"`
	CancelledAt string `json:"cancelled_at"`
}
