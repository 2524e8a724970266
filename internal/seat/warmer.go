package seat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

// CatalogEvent is a sellable event as the durable catalog describes it.
type CatalogEvent struct {
	ID      string
	Name    string
	OpensAt time.Time
}

// CatalogSeat is one seat row from the durable catalog.
type CatalogSeat struct {
	ID       string
	Label    string
	Sellable bool
}

// Catalog reads the durable event/seat catalog owned by the CRUD side.
type Catalog interface {
	// EventsOpeningWithin lists events whose sale opens within the window
	// from now (already-open, still-selling events included).
	EventsOpeningWithin(ctx context.Context, window time.Duration) ([]CatalogEvent, error)
	// EventsOnSale lists events currently selling.
	EventsOnSale(ctx context.Context) ([]CatalogEvent, error)
	// SeatsForEvent lists every seat of the event.
	SeatsForEvent(ctx context.Context, eventID string) ([]CatalogSeat, error)
}

// BookingSource reads the durable booking records, the source of truth the
// cache reconciles toward.
type BookingSource interface {
	BookedSeatIDs(ctx context.Context, eventID string) (map[string]struct{}, error)
}

// Warmer pre-populates the seat cache for events whose sale opens soon, so
// the first burst of hold traffic hits a warm cache instead of racing to
// build one.  The pass runs under a distributed lock, and each event gets
// a short-lived guard key so repeated ticks do not redo the load.
type Warmer struct {
	seats    StateStore
	catalog  Catalog
	bookings BookingSource
	values   store.ExpiringValue
	locker   store.Locker
	lead     time.Duration
	interval time.Duration
}

func NewWarmer(seats StateStore, catalog Catalog, bookings BookingSource, values store.ExpiringValue, locker store.Locker, lead, interval time.Duration) *Warmer {
	return &Warmer{
		seats:    seats,
		catalog:  catalog,
		bookings: bookings,
		values:   values,
		locker:   locker,
		lead:     lead,
		interval: interval,
	}
}

// Run executes warmup passes until ctx is cancelled.
func (w *Warmer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	log.Printf("[seat-warmer] started (interval=%s lead=%s)", w.interval, w.lead)
	for {
		select {
		case <-ctx.Done():
			log.Println("[seat-warmer] stopped")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				log.Printf("[seat-warmer] pass failed: %v", err)
			}
		}
	}
}

// RunOnce warms every event opening within the lead window.  A busy lock
// means another instance is warming; skip the cycle.
func (w *Warmer) RunOnce(ctx context.Context) error {
	release, err := w.locker.Acquire(ctx, store.LockSeatWarmup, 200*time.Millisecond, 30*time.Second)
	if err != nil {
		if errors.Is(err, store.ErrLockBusy) {
			log.Println("[seat-warmer] lock busy, skipping cycle")
			return nil
		}
		return err
	}
	defer release()

	events, err := w.catalog.EventsOpeningWithin(ctx, w.lead)
	if err != nil {
		return fmt.Errorf("list opening events: %w", err)
	}
	for _, ev := range events {
		fresh, err := w.values.SetIfAbsent(ctx, store.WarmedGuardKey(ev.ID), "1", w.lead)
		if err != nil {
			return fmt.Errorf("guard key %s: %w", ev.ID, err)
		}
		if !fresh {
			continue
		}
		if err := w.WarmEvent(ctx, ev.ID); err != nil {
			// Drop the guard so the next tick retries the load.
			_ = w.values.Delete(ctx, store.WarmedGuardKey(ev.ID))
			log.Printf("[seat-warmer] event %s: %v", ev.ID, err)
		}
	}
	return nil
}

// WarmEvent loads the event's catalog into the cache: sellable seats as
// AVAILABLE, already-booked seats as BOOKED, non-sellable as BLOCKED.
// Seats currently HELD are left alone; a warmup pass during an open sale
// (or after the guard key lapsed) must never revert a hold mid-checkout.
func (w *Warmer) WarmEvent(ctx context.Context, eventID string) error {
	seats, err := w.catalog.SeatsForEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load catalog seats: %w", err)
	}
	booked, err := w.bookings.BookedSeatIDs(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load booked seats: %w", err)
	}
	for _, cs := range seats {
		status := StatusAvailable
		switch {
		case !cs.Sellable:
			status = StatusBlocked
		case contains(booked, cs.ID):
			status = StatusBooked
		}
		if err := w.seats.PutIfNotHeld(ctx, eventID, cs.ID, status); err != nil {
			return err
		}
	}
	log.Printf("[seat-warmer] event %s warmed (%d seats, %d booked)", eventID, len(seats), len(booked))
	return nil
}

func contains(set map[string]struct{}, id string) bool {
	_, ok := set[id]
	return ok
}
