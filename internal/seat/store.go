package seat

import (
	"context"
	"time"
)

// StateStore is the per-(event, seat) status cache.  Implementations must
// make every transition conditional on the store side, never a
// read-modify-write from the application, because multiple instances
// mutate the same seats concurrently.
//
// The durable booking system owns the truth; this cache only ever
// reconciles toward it.
type StateStore interface {
	// Hold transitions AVAILABLE -> HELD for the user and arms a TTL key
	// whose expiry releases the hold automatically.  Any other current
	// status, including a hold by the same user, fails with
	// ErrSeatConflict.
	Hold(ctx context.Context, eventID, seatID, userID string, ttl time.Duration) error

	// Release transitions HELD -> AVAILABLE and disarms the TTL key, but
	// only for the current holder.  A seat not currently held fails with
	// ErrSeatConflict; a hold owned by someone else fails with
	// ErrNotHolder.
	Release(ctx context.Context, eventID, seatID, userID string) error

	// FinalizeBooking transitions to BOOKED unconditionally; booking is
	// authoritative.  A mismatch (no hold, or a different holder) is
	// logged by the implementation and does not block the booking.
	FinalizeBooking(ctx context.Context, eventID, seatID, userID string) error

	// ForceRelease transitions HELD -> AVAILABLE regardless of holder and
	// disarms the TTL key.  Non-held seats are left untouched.
	ForceRelease(ctx context.Context, eventID, seatID string) error

	// Put overwrites a seat's record; the reconciler uses it to install
	// durable truth into the cache.
	Put(ctx context.Context, rec Record) error

	// PutIfNotHeld writes a bare status record unless the seat is
	// currently HELD.  A BOOKED write still lands on a held seat because
	// the durable booking wins.  The warmer uses it so a repeated warmup
	// pass cannot clobber a live hold.
	PutIfNotHeld(ctx context.Context, eventID, seatID string, status Status) error

	// Get returns the cached record; ok is false for unknown seats.
	Get(ctx context.Context, eventID, seatID string) (rec Record, ok bool, err error)

	// List returns every cached record for the event, order unspecified.
	List(ctx context.Context, eventID string) ([]Record, error)
}
