package waitroom

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jehyuk/seatgate/internal/realtime"
	"github.com/jehyuk/seatgate/internal/store"
)

// Scheduler promotes waiting users into active slots on a fixed interval.
// Each pass reads the active counter, pops as many users as there are free
// slots, and admits them one by one: grant written, session recorded,
// admission published.  One user's failure never blocks the rest, and a
// failed publish never rolls a grant back, since the client can still poll
// the status endpoint and present the token.
type Scheduler struct {
	queue     *WaitQueue
	sessions  *ActiveSessions
	grants    *GrantStore
	bus       *realtime.Bus
	locker    store.Locker
	maxActive int64
	interval  time.Duration
	now       func() time.Time
}

func NewScheduler(queue *WaitQueue, sessions *ActiveSessions, grants *GrantStore, bus *realtime.Bus, locker store.Locker, maxActive int64, interval time.Duration) *Scheduler {
	return &Scheduler{
		queue:     queue,
		sessions:  sessions,
		grants:    grants,
		bus:       bus,
		locker:    locker,
		maxActive: maxActive,
		interval:  interval,
		now:       time.Now,
	}
}

// Run executes admission passes until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("[admission] scheduler started (interval=%s maxActive=%d)", s.interval, s.maxActive)
	for {
		select {
		case <-ctx.Done():
			log.Println("[admission] scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				log.Printf("[admission] pass failed: %v", err)
			}
		}
	}
}

// RunOnce performs one admission pass over all active events.  The pass is
// correct without the lock (pops are atomic and the counter moves by
// actual pop counts); the lock only stops concurrent instances from
// burning round trips on the same work, so a busy lock skips the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	release, err := s.locker.Acquire(ctx, store.LockAdmission, 0, 2*s.interval)
	if err != nil {
		if err == store.ErrLockBusy {
			return nil
		}
		return err
	}
	defer release()

	events, err := s.queue.ActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("list active events: %w", err)
	}
	for _, eventID := range events {
		if err := s.AdmitEvent(ctx, eventID); err != nil {
			log.Printf("[admission] event %s: %v", eventID, err)
		}
	}
	return nil
}

// AdmitEvent fills the event's free slots from the head of its queue and
// returns after incrementing the counter by the number actually admitted.
func (s *Scheduler) AdmitEvent(ctx context.Context, eventID string) error {
	active, err := s.sessions.Count(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read active count: %w", err)
	}
	free := s.maxActive - active
	if free <= 0 {
		return nil
	}
	users, err := s.queue.PopLowest(ctx, eventID, free)
	if err != nil {
		return err
	}
	var admitted int64
	for _, userID := range users {
		if err := s.admitOne(ctx, eventID, userID); err != nil {
			log.Printf("[admission] admit %s/%s failed: %v", eventID, userID, err)
			continue
		}
		admitted++
	}
	if admitted > 0 {
		if _, err := s.sessions.AddCount(ctx, eventID, admitted); err != nil {
			return fmt.Errorf("increment active count: %w", err)
		}
		log.Printf("[admission] event %s admitted %d (active was %d)", eventID, admitted, active)
	}
	return nil
}

// admitOne performs a single user's all-or-nothing admission: grant plus
// session, then a best-effort publish.
func (s *Scheduler) admitOne(ctx context.Context, eventID, userID string) error {
	grant, err := s.grants.Issue(ctx, eventID, userID)
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.grants.TTL())
	if err := s.sessions.Add(ctx, eventID, userID, expiresAt); err != nil {
		// A grant without a session would hold no capacity yet open the
		// booking endpoints; undo it.
		_ = s.grants.Invalidate(ctx, eventID, userID)
		return err
	}
	if err := s.bus.PublishAdmission(ctx, realtime.AdmissionEvent{
		EventID: eventID,
		UserID:  userID,
		Token:   grant.Token,
	}); err != nil {
		log.Printf("[admission] publish for %s/%s failed (client will poll): %v", eventID, userID, err)
	}
	return nil
}
