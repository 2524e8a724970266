package waitroom

import (
	"context"
	"fmt"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

// ActiveSessions pairs the per-event sorted set of admitted users (scored
// by expiry timestamp in epoch milliseconds) with the atomic active
// counter.  Membership in the set is what "counted as active" means; the
// counter is a fast read for the scheduler and is reconciled back to the
// set size when they drift apart.
type ActiveSessions struct {
	sets     store.OrderedSet
	counters store.AtomicCounter
	now      func() time.Time
}

func NewActiveSessions(sets store.OrderedSet, counters store.AtomicCounter) *ActiveSessions {
	return &ActiveSessions{sets: sets, counters: counters, now: time.Now}
}

// Add records a newly admitted session expiring at the given time.  The
// caller is responsible for the matching counter increment.
func (s *ActiveSessions) Add(ctx context.Context, eventID, userID string, expiresAt time.Time) error {
	if err := s.sets.Add(ctx, store.ActiveKey(eventID), userID, expiresAt.UnixMilli()); err != nil {
		return fmt.Errorf("add session %s/%s: %w", eventID, userID, err)
	}
	return nil
}

// ExtendTo pushes the session's expiry out to the given time, never in.
// Absent sessions are left absent.
func (s *ActiveSessions) ExtendTo(ctx context.Context, eventID, userID string, expiresAt time.Time) error {
	return s.sets.UpdateScoreIfGreater(ctx, store.ActiveKey(eventID), userID, expiresAt.UnixMilli())
}

// MarkExpiring re-scores the session to now so the next cleaner sweep
// removes it and performs the counter decrement.  Keeping removal and
// decrement in that one code path is what makes explicit invalidation and
// natural expiry indistinguishable.
func (s *ActiveSessions) MarkExpiring(ctx context.Context, eventID, userID string) error {
	return s.sets.UpdateScoreIfPresent(ctx, store.ActiveKey(eventID), userID, s.now().UnixMilli())
}

// ExpiresAt returns the session's expiry; ok is false when no session exists.
func (s *ActiveSessions) ExpiresAt(ctx context.Context, eventID, userID string) (time.Time, bool, error) {
	score, ok, err := s.sets.Score(ctx, store.ActiveKey(eventID), userID)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	return time.UnixMilli(score), true, nil
}

// RemoveDue removes every session expiring at or before cutoff and returns
// how many were actually removed.  The count comes from the store-side
// removal itself, so concurrent sweeps never double-count.
func (s *ActiveSessions) RemoveDue(ctx context.Context, eventID string, cutoff time.Time) (int64, error) {
	return s.sets.RemoveUpTo(ctx, store.ActiveKey(eventID), cutoff.UnixMilli())
}

// Size returns the actual number of sessions in the set.
func (s *ActiveSessions) Size(ctx context.Context, eventID string) (int64, error) {
	return s.sets.Size(ctx, store.ActiveKey(eventID))
}

// Count reads the active counter.
func (s *ActiveSessions) Count(ctx context.Context, eventID string) (int64, error) {
	return s.counters.Get(ctx, store.ActiveCountKey(eventID))
}

// AddCount atomically adjusts the active counter.
func (s *ActiveSessions) AddCount(ctx context.Context, eventID string, delta int64) (int64, error) {
	return s.counters.Add(ctx, store.ActiveCountKey(eventID), delta)
}

// SetCount overwrites the counter; only the reconciler should use this.
func (s *ActiveSessions) SetCount(ctx context.Context, eventID string, value int64) error {
	return s.counters.Set(ctx, store.ActiveCountKey(eventID), value)
}
