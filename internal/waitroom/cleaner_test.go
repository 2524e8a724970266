package waitroom

import (
	"context"
	"testing"
	"time"
)

func TestCleanerRemovesDueSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStack(10)

	now := time.Now()
	_ = s.sessions.Add(ctx, "e1", "alice", now.Add(-time.Minute))
	_ = s.sessions.Add(ctx, "e1", "bob", now.Add(-time.Second))
	_ = s.sessions.Add(ctx, "e1", "carol", now.Add(time.Hour))
	_, _ = s.sessions.AddCount(ctx, "e1", 3)

	if err := s.cleaner.SweepEvent(ctx, "e1"); err != nil {
		t.Fatalf("SweepEvent: %v", err)
	}

	count, _ := s.sessions.Count(ctx, "e1")
	if count != 1 {
		t.Fatalf("count after sweep: got %d, want 1", count)
	}
	if _, ok, _ := s.sessions.ExpiresAt(ctx, "e1", "carol"); !ok {
		t.Fatal("live session was swept")
	}
	if _, ok, _ := s.sessions.ExpiresAt(ctx, "e1", "alice"); ok {
		t.Fatal("expired session survived the sweep")
	}
}

func TestCleanerSweepIsNoOpWhenNothingDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStack(10)

	_ = s.sessions.Add(ctx, "e1", "alice", time.Now().Add(time.Hour))
	_, _ = s.sessions.AddCount(ctx, "e1", 1)

	if err := s.cleaner.SweepEvent(ctx, "e1"); err != nil {
		t.Fatalf("SweepEvent: %v", err)
	}
	count, _ := s.sessions.Count(ctx, "e1")
	if count != 1 {
		t.Fatalf("count: got %d, want unchanged 1", count)
	}
}

func TestCleanerBroadcastsRanks(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStack(10)
	s.cleaner.topK = 2

	ranks, err := s.bus.SubscribeRankUpdates(ctx)
	if err != nil {
		t.Fatalf("SubscribeRankUpdates: %v", err)
	}

	for _, user := range []string{"alice", "bob", "carol"} {
		_, _ = s.queue.Enqueue(ctx, "e1", user)
	}
	if err := s.cleaner.SweepEvent(ctx, "e1"); err != nil {
		t.Fatalf("SweepEvent: %v", err)
	}

	// Only the first topK waiters get an update, in order.
	want := []struct {
		user string
		rank int64
	}{{"alice", 1}, {"bob", 2}}
	for _, w := range want {
		select {
		case ev := <-ranks:
			if ev.EventID != "e1" || ev.UserID != w.user || ev.Rank != w.rank {
				t.Fatalf("rank event: got %+v, want %s at %d", ev, w.user, w.rank)
			}
		case <-time.After(time.Second):
			t.Fatalf("no rank event for %s", w.user)
		}
	}
	select {
	case ev := <-ranks:
		t.Fatalf("unexpected rank event beyond topK: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCleanerPrunesIdleEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStack(10)

	_, _ = s.queue.Enqueue(ctx, "e1", "alice")
	_, _ = s.queue.Enqueue(ctx, "e2", "bob")

	// Drain e1 completely: alice leaves the queue, nothing else remains.
	_, _ = s.queue.Remove(ctx, "e1", "alice")

	if err := s.cleaner.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	events, _ := s.queue.ActiveEvents(ctx)
	if len(events) != 1 || events[0] != "e2" {
		t.Fatalf("active events after prune: got %v, want [e2]", events)
	}
}

func TestCleanerRestoresRegistrationForWaiters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStack(10)

	// A prune racing an enqueue on another instance can take the
	// registration out right after the waiter joined.  Sweeping the event
	// must put it back rather than leave the waiter stranded.
	_, _ = s.queue.Enqueue(ctx, "e1", "alice")
	if err := s.queue.Deregister(ctx, "e1"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}

	if err := s.cleaner.SweepEvent(ctx, "e1"); err != nil {
		t.Fatalf("SweepEvent: %v", err)
	}
	events, _ := s.queue.ActiveEvents(ctx)
	if len(events) != 1 || events[0] != "e1" {
		t.Fatalf("registration not restored: got %v, want [e1]", events)
	}
	rank, ok, _ := s.queue.Rank(ctx, "e1", "alice")
	if !ok || rank != 1 {
		t.Fatalf("waiter lost during repair: got (%d, %v)", rank, ok)
	}
}

func TestCleanerKeepsEventWithActiveSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStack(10)

	_, _ = s.queue.Enqueue(ctx, "e1", "alice")
	if err := s.scheduler.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// Queue is empty now but alice holds an active session.
	if err := s.cleaner.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	events, _ := s.queue.ActiveEvents(ctx)
	if len(events) != 1 {
		t.Fatalf("event with live session was pruned: %v", events)
	}
}
