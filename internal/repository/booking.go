package repository

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/jehyuk/seatgate/internal/seat"
)

// BookingRepo reads confirmed bookings from the durable store.  Bookings
// are written by the external booking/payment collaborator; the seat cache
// treats them as truth.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

var _ seat.BookingSource = (*BookingRepo)(nil)

// BookedSeatIDs returns the set of seat IDs with a confirmed booking for
// the event.
func (r *BookingRepo) BookedSeatIDs(ctx context.Context, eventID string) (map[string]struct{}, error) {
	id, err := strconv.ParseUint(eventID, 10, 64)
	if err != nil {
		return nil, ErrEventNotFound
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seat_id FROM bookings WHERE event_id = ? AND status = 'CONFIRMED'`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	booked := make(map[string]struct{})
	for rows.Next() {
		var seatID uint64
		if err := rows.Scan(&seatID); err != nil {
			return nil, err
		}
		booked[strconv.FormatUint(seatID, 10)] = struct{}{}
	}
	return booked, rows.Err()
}
