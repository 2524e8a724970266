package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/jehyuk/seatgate/internal/seat"
)

// CatalogRepo provides read access to the events and seats tables.  All
// timestamps are compared in UTC; callers must not rely on session time
// zones.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a CatalogRepo bound to the provided database.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

var _ seat.Catalog = (*CatalogRepo)(nil)

// EventsOpeningWithin lists events whose sale window opens within the
// given duration from now, including events already open and not yet
// closed.  The seat warmer uses this to decide which caches to build.
func (r *CatalogRepo) EventsOpeningWithin(ctx context.Context, window time.Duration) ([]seat.CatalogEvent, error) {
	const q = `SELECT id, name, opens_at FROM events
	           WHERE opens_at <= DATE_ADD(UTC_TIMESTAMP(), INTERVAL ? SECOND)
	             AND closes_at > UTC_TIMESTAMP()
	           ORDER BY opens_at`
	return r.queryEvents(ctx, q, int64(window/time.Second))
}

// EventsOnSale lists events whose sale window is currently open.
func (r *CatalogRepo) EventsOnSale(ctx context.Context) ([]seat.CatalogEvent, error) {
	const q = `SELECT id, name, opens_at FROM events
	           WHERE opens_at <= UTC_TIMESTAMP() AND closes_at > UTC_TIMESTAMP()
	           ORDER BY opens_at`
	return r.queryEvents(ctx, q)
}

func (r *CatalogRepo) queryEvents(ctx context.Context, query string, args ...any) ([]seat.CatalogEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []seat.CatalogEvent
	for rows.Next() {
		var (
			id      uint64
			name    string
			opensAt time.Time
		)
		if err := rows.Scan(&id, &name, &opensAt); err != nil {
			return nil, err
		}
		events = append(events, seat.CatalogEvent{
			ID:      strconv.FormatUint(id, 10),
			Name:    name,
			OpensAt: opensAt,
		})
	}
	return events, rows.Err()
}

// SeatsForEvent lists every seat row of the event.  It returns
// ErrEventNotFound for an unknown event so the warmer can distinguish "no
// seats yet" from a bad ID.
func (r *CatalogRepo) SeatsForEvent(ctx context.Context, eventID string) ([]seat.CatalogSeat, error) {
	id, err := strconv.ParseUint(eventID, 10, 64)
	if err != nil {
		return nil, ErrEventNotFound
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM events WHERE id = ?)`, id,
	).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrEventNotFound
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, label, is_sellable FROM seats WHERE event_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []seat.CatalogSeat
	for rows.Next() {
		var (
			seatID   uint64
			label    string
			sellable bool
		)
		if err := rows.Scan(&seatID, &label, &sellable); err != nil {
			return nil, err
		}
		seats = append(seats, seat.CatalogSeat{
			ID:       strconv.FormatUint(seatID, 10),
			Label:    label,
			Sellable: sellable,
		})
	}
	return seats, rows.Err()
}
