// Package seat implements the distributed seat-state cache in front of
// booking: conditional hold/release transitions, event-driven expiry of
// abandoned holds, pre-sale cache warming, and reconciliation against the
// durable booking records that remain the source of truth.
package seat

import (
	"errors"
	"time"
)

// Status is a seat's cached sale state.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusHeld      Status = "HELD"
	StatusBooked    Status = "BOOKED"
	// StatusBlocked marks a non-sellable seat; no transition leaves it.
	StatusBlocked Status = "BLOCKED"
)

// ErrSeatConflict is returned when the seat's current status forbids the
// transition: a hold on a seat that is not AVAILABLE (including a
// double-hold by the same user), or a release of a seat nobody holds.
// Handlers translate it into an HTTP 409 response.
var ErrSeatConflict = errors.New("seat conflict")

// ErrNotHolder is returned when a release is attempted by someone other
// than the current holder.  Handlers translate it into an HTTP 403.
var ErrNotHolder = errors.New("not the holder")

// Record is one seat's cached status.  HolderID, ReservedAt and ExpiresAt
// are set only while the seat is HELD (HolderID also survives into BOOKED).
type Record struct {
	EventID    string     `json:"event_id"`
	SeatID     string     `json:"seat_id"`
	Status     Status     `json:"status"`
	HolderID   string     `json:"holder_id,omitempty"`
	ReservedAt *time.Time `json:"reserved_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}
