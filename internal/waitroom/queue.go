package waitroom

import (
	"context"
	"fmt"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

// WaitQueue is the per-event sorted set of waiting users.  Enqueue is
// idempotent: a user already in the queue keeps their original score, so
// their rank never regresses on repeat calls.
type WaitQueue struct {
	sets   store.OrderedSet
	scores *ScoreGenerator
	now    func() time.Time
}

func NewWaitQueue(sets store.OrderedSet, scores *ScoreGenerator) *WaitQueue {
	return &WaitQueue{sets: sets, scores: scores, now: time.Now}
}

// Enqueue adds the user to the event's queue and returns their 1-based
// rank.  A repeated enqueue returns the existing rank unchanged.
func (q *WaitQueue) Enqueue(ctx context.Context, eventID, userID string) (int64, error) {
	// A user already in line gets their rank back without consuming a
	// score; repeat polls must never trip the per-millisecond sequence
	// limit.
	if rank, ok, err := q.sets.Rank(ctx, store.QueueKey(eventID), userID); err != nil {
		return 0, err
	} else if ok {
		return rank + 1, nil
	}
	score, err := q.scores.Next(eventID)
	if err != nil {
		return 0, err
	}
	inserted, err := q.sets.AddIfAbsent(ctx, store.QueueKey(eventID), userID, score)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s/%s: %w", eventID, userID, err)
	}
	if inserted {
		// First waiter may also be the first sign of life for this event;
		// register it so the periodic jobs pick it up.
		if err := q.Register(ctx, eventID); err != nil {
			return 0, err
		}
	}
	rank, ok, err := q.sets.Rank(ctx, store.QueueKey(eventID), userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		// Popped by the scheduler between insert and rank lookup; report
		// head-of-queue, the status endpoint will show ADMITTED next poll.
		return 1, nil
	}
	return rank + 1, nil
}

// PopLowest atomically removes and returns up to n users in score order.
func (q *WaitQueue) PopLowest(ctx context.Context, eventID string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := q.sets.PopMin(ctx, store.QueueKey(eventID), n)
	if err != nil {
		return nil, fmt.Errorf("pop %s: %w", eventID, err)
	}
	users := make([]string, 0, len(members))
	for _, m := range members {
		users = append(users, m.Value)
	}
	return users, nil
}

// Rank returns the user's 1-based position; ok is false when not queued.
func (q *WaitQueue) Rank(ctx context.Context, eventID, userID string) (int64, bool, error) {
	rank, ok, err := q.sets.Rank(ctx, store.QueueKey(eventID), userID)
	if err != nil || !ok {
		return 0, ok, err
	}
	return rank + 1, true, nil
}

// Top returns up to n users from the head of the queue in order.
func (q *WaitQueue) Top(ctx context.Context, eventID string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := q.sets.Range(ctx, store.QueueKey(eventID), 0, n-1)
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(members))
	for _, m := range members {
		users = append(users, m.Value)
	}
	return users, nil
}

// Remove withdraws a user from the queue.
func (q *WaitQueue) Remove(ctx context.Context, eventID, userID string) (bool, error) {
	return q.sets.Remove(ctx, store.QueueKey(eventID), userID)
}

// Size returns the number of waiting users.
func (q *WaitQueue) Size(ctx context.Context, eventID string) (int64, error) {
	return q.sets.Size(ctx, store.QueueKey(eventID))
}

// ActiveEvents lists events that currently have waiting-room state, oldest
// first.
func (q *WaitQueue) ActiveEvents(ctx context.Context) ([]string, error) {
	members, err := q.sets.Range(ctx, store.ActiveEventsKey, 0, -1)
	if err != nil {
		return nil, err
	}
	events := make([]string, 0, len(members))
	for _, m := range members {
		events = append(events, m.Value)
	}
	return events, nil
}

// Register adds the event to the active registry so the periodic jobs
// visit it.  An already-registered event keeps its original timestamp.
func (q *WaitQueue) Register(ctx context.Context, eventID string) error {
	if _, err := q.sets.AddIfAbsent(ctx, store.ActiveEventsKey, eventID, q.now().UnixMilli()); err != nil {
		return fmt.Errorf("register active event %s: %w", eventID, err)
	}
	return nil
}

// Deregister drops an event from the active registry.  Callers should only
// do this once the queue, session set and counter are all empty.
func (q *WaitQueue) Deregister(ctx context.Context, eventID string) error {
	_, err := q.sets.Remove(ctx, store.ActiveEventsKey, eventID)
	return err
}
