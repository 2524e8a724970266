package seat

import (
	"context"
	"testing"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

// fakeCatalog serves a static event/seat catalog to the warmup and sync
// jobs under test.
type fakeCatalog struct {
	events []CatalogEvent
	seats  map[string][]CatalogSeat
}

func (f *fakeCatalog) EventsOpeningWithin(context.Context, time.Duration) ([]CatalogEvent, error) {
	return f.events, nil
}

func (f *fakeCatalog) EventsOnSale(context.Context) ([]CatalogEvent, error) {
	return f.events, nil
}

func (f *fakeCatalog) SeatsForEvent(_ context.Context, eventID string) ([]CatalogSeat, error) {
	return f.seats[eventID], nil
}

type fakeBookings struct {
	booked map[string]map[string]struct{} // eventID -> seatIDs
}

func (f *fakeBookings) BookedSeatIDs(_ context.Context, eventID string) (map[string]struct{}, error) {
	if f.booked[eventID] == nil {
		return map[string]struct{}{}, nil
	}
	return f.booked[eventID], nil
}

func newWarmerFixture() (*Warmer, *MemoryStateStore, *store.Memory) {
	mem := store.NewMemory()
	seats := NewMemoryStateStore()
	catalog := &fakeCatalog{
		events: []CatalogEvent{{ID: "e1", Name: "Opening Night", OpensAt: time.Now().Add(10 * time.Minute)}},
		seats: map[string][]CatalogSeat{
			"e1": {
				{ID: "A-1", Label: "A1", Sellable: true},
				{ID: "A-2", Label: "A2", Sellable: true},
				{ID: "A-3", Label: "A3", Sellable: false},
			},
		},
	}
	bookings := &fakeBookings{booked: map[string]map[string]struct{}{
		"e1": {"A-2": {}},
	}}
	w := NewWarmer(seats, catalog, bookings, mem.Values, mem.Locker, 30*time.Minute, time.Minute)
	return w, seats, mem
}

func TestWarmEventLoadsStatuses(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, seats, _ := newWarmerFixture()

	if err := w.WarmEvent(ctx, "e1"); err != nil {
		t.Fatalf("WarmEvent: %v", err)
	}

	want := map[string]Status{
		"A-1": StatusAvailable,
		"A-2": StatusBooked,
		"A-3": StatusBlocked,
	}
	for seatID, status := range want {
		rec, ok, _ := seats.Get(ctx, "e1", seatID)
		if !ok || rec.Status != status {
			t.Errorf("seat %s: got (%v, ok=%v), want %v", seatID, rec.Status, ok, status)
		}
	}
}

func TestWarmerRunOnceGuardsAgainstRewarm(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, seats, _ := newWarmerFixture()

	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if err := seats.Hold(ctx, "e1", "A-1", "alice", time.Minute); err != nil {
		t.Fatalf("Hold on warmed seat: %v", err)
	}

	// A second pass inside the guard window must not overwrite the hold.
	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	rec, _, _ := seats.Get(ctx, "e1", "A-1")
	if rec.Status != StatusHeld || rec.HolderID != "alice" {
		t.Fatalf("rewarm clobbered a live hold: %+v", rec)
	}
}

func TestWarmerRewarmAfterGuardExpiryKeepsHold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, seats, mem := newWarmerFixture()

	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if err := seats.Hold(ctx, "e1", "A-1", "alice", time.Minute); err != nil {
		t.Fatalf("Hold on warmed seat: %v", err)
	}

	// The guard key lapses while the sale is still open; the next pass
	// reloads the catalog but must not revert the live hold.
	if err := mem.Values.Delete(ctx, store.WarmedGuardKey("e1")); err != nil {
		t.Fatalf("Delete guard: %v", err)
	}
	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce after guard expiry: %v", err)
	}

	rec, _, _ := seats.Get(ctx, "e1", "A-1")
	if rec.Status != StatusHeld || rec.HolderID != "alice" {
		t.Fatalf("rewarm after guard expiry clobbered a live hold: %+v", rec)
	}
	// The rest of the event was still refreshed.
	for seatID, want := range map[string]Status{"A-2": StatusBooked, "A-3": StatusBlocked} {
		rec, ok, _ := seats.Get(ctx, "e1", seatID)
		if !ok || rec.Status != want {
			t.Errorf("seat %s after rewarm: got (%v, ok=%v), want %v", seatID, rec.Status, ok, want)
		}
	}
}

func TestWarmerSkipsWhenLockBusy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, seats, mem := newWarmerFixture()

	release, err := mem.Locker.Acquire(ctx, store.LockSeatWarmup, 0, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	if err := w.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce under held lock: %v", err)
	}
	if _, ok, _ := seats.Get(ctx, "e1", "A-1"); ok {
		t.Fatal("warmup ran despite the busy lock")
	}
}
