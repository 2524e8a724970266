package seat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

// Reconciler is the poll-based backstop for the cache: it compares cached
// seat statuses against durable booking records and corrects whatever
// disagrees: a booked seat cached as available, a cancelled booking still
// cached as booked, a hold whose expiry notification never arrived.  It
// runs periodically over all on-sale events and on demand for a single
// event (emergency sync after a cancellation).
type Reconciler struct {
	seats    StateStore
	catalog  Catalog
	bookings BookingSource
	locker   store.Locker
	interval time.Duration
	now      func() time.Time
}

func NewReconciler(seats StateStore, catalog Catalog, bookings BookingSource, locker store.Locker, interval time.Duration) *Reconciler {
	return &Reconciler{
		seats:    seats,
		catalog:  catalog,
		bookings: bookings,
		locker:   locker,
		interval: interval,
		now:      time.Now,
	}
}

// Run executes periodic passes until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Printf("[seat-sync] started (interval=%s)", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[seat-sync] stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				log.Printf("[seat-sync] pass failed: %v", err)
			}
		}
	}
}

// RunOnce syncs every on-sale event under the sync lock; busy lock skips
// the cycle.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	release, err := r.locker.Acquire(ctx, store.LockSeatSync, 200*time.Millisecond, 30*time.Second)
	if err != nil {
		if errors.Is(err, store.ErrLockBusy) {
			log.Println("[seat-sync] lock busy, skipping cycle")
			return nil
		}
		return err
	}
	defer release()

	events, err := r.catalog.EventsOnSale(ctx)
	if err != nil {
		return fmt.Errorf("list on-sale events: %w", err)
	}
	for _, ev := range events {
		if err := r.SyncEvent(ctx, ev.ID); err != nil {
			log.Printf("[seat-sync] event %s: %v", ev.ID, err)
		}
	}
	return nil
}

// SyncEvent corrects one event's cache against durable truth.  Holds are
// left alone unless the seat is durably booked (an in-flight hold is not
// drift). The exception is stale holds whose expiry has clearly passed,
// which are released here as the watcher's backstop.
func (r *Reconciler) SyncEvent(ctx context.Context, eventID string) error {
	booked, err := r.bookings.BookedSeatIDs(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load booked seats: %w", err)
	}
	cached, err := r.seats.List(ctx, eventID)
	if err != nil {
		return fmt.Errorf("list cached seats: %w", err)
	}
	var corrected int
	for _, rec := range cached {
		durablyBooked := contains(booked, rec.SeatID)
		switch {
		case durablyBooked && rec.Status != StatusBooked:
			rec.Status = StatusBooked
			rec.ReservedAt = nil
			rec.ExpiresAt = nil
			if err := r.seats.Put(ctx, rec); err != nil {
				return err
			}
			corrected++
		case !durablyBooked && rec.Status == StatusBooked:
			if err := r.seats.Put(ctx, Record{EventID: eventID, SeatID: rec.SeatID, Status: StatusAvailable}); err != nil {
				return err
			}
			corrected++
		case rec.Status == StatusHeld && rec.ExpiresAt != nil && r.now().After(*rec.ExpiresAt):
			if err := r.seats.ForceRelease(ctx, eventID, rec.SeatID); err != nil {
				return err
			}
			corrected++
		}
	}
	if corrected > 0 {
		log.Printf("[seat-sync] event %s corrected %d seats", eventID, corrected)
	}
	return nil
}
