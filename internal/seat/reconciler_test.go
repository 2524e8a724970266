package seat

import (
	"context"
	"testing"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

func newReconcilerFixture(booked map[string]struct{}) (*Reconciler, *MemoryStateStore) {
	mem := store.NewMemory()
	seats := NewMemoryStateStore()
	catalog := &fakeCatalog{events: []CatalogEvent{{ID: "e1"}}}
	bookings := &fakeBookings{booked: map[string]map[string]struct{}{"e1": booked}}
	return NewReconciler(seats, catalog, bookings, mem.Locker, time.Minute), seats
}

func TestSyncEventBooksDurablyBookedSeats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, seats := newReconcilerFixture(map[string]struct{}{"A-1": {}})

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})

	if err := rec.SyncEvent(ctx, "e1"); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	got, _, _ := seats.Get(ctx, "e1", "A-1")
	if got.Status != StatusBooked {
		t.Fatalf("durably booked seat cached as %v, want BOOKED", got.Status)
	}
}

func TestSyncEventFreesCancelledBookings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, seats := newReconcilerFixture(map[string]struct{}{})

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusBooked, HolderID: "alice"})

	if err := rec.SyncEvent(ctx, "e1"); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	got, _, _ := seats.Get(ctx, "e1", "A-1")
	if got.Status != StatusAvailable || got.HolderID != "" {
		t.Fatalf("cancelled booking still cached: %+v", got)
	}
}

func TestSyncEventLeavesLiveHoldsAlone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, seats := newReconcilerFixture(map[string]struct{}{})

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})
	_ = seats.Hold(ctx, "e1", "A-1", "alice", time.Hour)

	if err := rec.SyncEvent(ctx, "e1"); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	got, _, _ := seats.Get(ctx, "e1", "A-1")
	if got.Status != StatusHeld || got.HolderID != "alice" {
		t.Fatalf("live hold disturbed: %+v", got)
	}
}

func TestSyncEventReleasesStaleHolds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, seats := newReconcilerFixture(map[string]struct{}{})

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})
	_ = seats.Hold(ctx, "e1", "A-1", "alice", time.Minute)

	// The hold's expiry passed but the expiry notification never arrived.
	rec.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	if err := rec.SyncEvent(ctx, "e1"); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	got, _, _ := seats.Get(ctx, "e1", "A-1")
	if got.Status != StatusAvailable {
		t.Fatalf("stale hold survived: %+v", got)
	}
}

func TestSyncEventHoldOnDurablyBookedSeat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, seats := newReconcilerFixture(map[string]struct{}{"A-1": {}})

	// Someone is holding a seat that a booking already owns; durable truth
	// wins over the hold.
	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})
	_ = seats.Hold(ctx, "e1", "A-1", "alice", time.Hour)

	if err := rec.SyncEvent(ctx, "e1"); err != nil {
		t.Fatalf("SyncEvent: %v", err)
	}
	got, _, _ := seats.Get(ctx, "e1", "A-1")
	if got.Status != StatusBooked {
		t.Fatalf("hold on booked seat: got %v, want BOOKED", got.Status)
	}
}

func TestReconcilerRunOnceCoversOnSaleEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec, seats := newReconcilerFixture(map[string]struct{}{"A-1": {}})

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})

	if err := rec.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, _, _ := seats.Get(ctx, "e1", "A-1")
	if got.Status != StatusBooked {
		t.Fatalf("RunOnce did not sync: %+v", got)
	}
}
