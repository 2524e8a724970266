package seat

import (
	"context"
	"log"

	"github.com/jehyuk/seatgate/internal/store"
)

// expiredKeyPattern matches the store's key-expiry notifications across
// all databases.  Redis must run with notify-keyspace-events including Ex.
const expiredKeyPattern = "__keyevent@*__:expired"

// ExpirationWatcher turns hold-TTL key expiries into immediate releases,
// so an abandoned hold frees its seat with near-zero latency instead of
// waiting for a reconciliation poll.  Notification delivery is best-effort
// on the store's side; the seat reconciler is the backstop for anything
// missed here.
type ExpirationWatcher struct {
	ps    store.PubSub
	seats StateStore
}

func NewExpirationWatcher(ps store.PubSub, seats StateStore) *ExpirationWatcher {
	return &ExpirationWatcher{ps: ps, seats: seats}
}

// Run consumes expiry notifications until ctx is cancelled.
func (w *ExpirationWatcher) Run(ctx context.Context) error {
	msgs, err := w.ps.PSubscribe(ctx, expiredKeyPattern)
	if err != nil {
		return err
	}
	log.Println("[seat-watcher] started")
	for msg := range msgs {
		// The payload of an expiry notification is the expired key itself.
		w.Handle(ctx, msg.Payload)
	}
	log.Println("[seat-watcher] stopped")
	return nil
}

// Handle releases the hold named by an expired key; keys outside the
// hold-TTL namespace are ignored.
func (w *ExpirationWatcher) Handle(ctx context.Context, key string) {
	eventID, seatID, ok := store.ParseSeatHoldTTLKey(key)
	if !ok {
		return
	}
	if err := w.seats.ForceRelease(ctx, eventID, seatID); err != nil {
		log.Printf("[seat-watcher] release %s/%s: %v", eventID, seatID, err)
		return
	}
	log.Printf("[seat-watcher] hold expired, released %s/%s", eventID, seatID)
}
