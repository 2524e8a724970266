package seat

import (
	"context"
	"testing"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

func TestWatcherHandleReleasesExpiredHold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seats := NewMemoryStateStore()
	w := NewExpirationWatcher(store.NewMemory().PubSub, seats)

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})
	_ = seats.Hold(ctx, "e1", "A-1", "alice", time.Minute)

	w.Handle(ctx, store.SeatHoldTTLKey("e1", "A-1"))

	rec, _, _ := seats.Get(ctx, "e1", "A-1")
	if rec.Status != StatusAvailable || rec.HolderID != "" {
		t.Fatalf("hold not released: %+v", rec)
	}
}

func TestWatcherHandleIgnoresForeignKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seats := NewMemoryStateStore()
	w := NewExpirationWatcher(store.NewMemory().PubSub, seats)

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})
	_ = seats.Hold(ctx, "e1", "A-1", "alice", time.Minute)

	for _, key := range []string{
		store.GrantKey("e1", "alice"),
		store.SeatStatusKey("e1", "A-1"),
		"random-key",
	} {
		w.Handle(ctx, key)
	}
	rec, _, _ := seats.Get(ctx, "e1", "A-1")
	if rec.Status != StatusHeld {
		t.Fatalf("foreign key released a hold: %+v", rec)
	}
}

func TestWatcherRunConsumesNotifications(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := store.NewMemory()
	seats := NewMemoryStateStore()
	w := NewExpirationWatcher(mem.PubSub, seats)

	_ = seats.Put(ctx, Record{EventID: "e1", SeatID: "A-1", Status: StatusAvailable})
	_ = seats.Hold(ctx, "e1", "A-1", "alice", time.Minute)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the subscription a moment to register, then publish the expiry
	// the way Redis keyspace notifications do: payload is the key.
	time.Sleep(10 * time.Millisecond)
	_ = mem.PubSub.Publish(ctx, "__keyevent@0__:expired", store.SeatHoldTTLKey("e1", "A-1"))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec, _, _ := seats.Get(ctx, "e1", "A-1")
		if rec.Status == StatusAvailable {
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Run: %v", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("hold was never released")
}
