package waitroom

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

// Reconciler is the safety net against lost counter decrements: an
// instance that crashes between removing sessions and decrementing, or
// mid-admission, leaves the counter disagreeing with the session set.  On
// each pass the reconciler sets the counter to the actual set size.  The
// pass runs under a short distributed lock; a busy lock means another
// instance is already reconciling, so the cycle is skipped and logged
// quietly.
type Reconciler struct {
	queue    *WaitQueue
	sessions *ActiveSessions
	locker   store.Locker
	interval time.Duration

	lockWait  time.Duration
	lockLease time.Duration
}

func NewReconciler(queue *WaitQueue, sessions *ActiveSessions, locker store.Locker, interval time.Duration) *Reconciler {
	return &Reconciler{
		queue:     queue,
		sessions:  sessions,
		locker:    locker,
		interval:  interval,
		lockWait:  200 * time.Millisecond,
		lockLease: 10 * time.Second,
	}
}

// Run executes reconciliation passes until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Printf("[reconciler] started (interval=%s)", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[reconciler] stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				log.Printf("[reconciler] pass failed: %v", err)
			}
		}
	}
}

// RunOnce reconciles every active event under the consistency lock.  It
// returns the nil error on a skipped cycle.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	release, err := r.locker.Acquire(ctx, store.LockConsistency, r.lockWait, r.lockLease)
	if err != nil {
		if errors.Is(err, store.ErrLockBusy) {
			log.Println("[reconciler] lock busy, skipping cycle")
			return nil
		}
		return err
	}
	defer release()

	events, err := r.queue.ActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("list active events: %w", err)
	}
	for _, eventID := range events {
		if err := r.ReconcileEvent(ctx, eventID); err != nil {
			log.Printf("[reconciler] event %s: %v", eventID, err)
		}
	}
	return nil
}

// ReconcileEvent sets the counter to the session-set size when they
// disagree and reports the correction.
func (r *Reconciler) ReconcileEvent(ctx context.Context, eventID string) error {
	actual, err := r.sessions.Size(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read session set size: %w", err)
	}
	counted, err := r.sessions.Count(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read active count: %w", err)
	}
	if counted == actual {
		return nil
	}
	if err := r.sessions.SetCount(ctx, eventID, actual); err != nil {
		return fmt.Errorf("correct active count: %w", err)
	}
	log.Printf("[reconciler] event %s counter corrected %d -> %d", eventID, counted, actual)
	return nil
}
