package waitroom

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jehyuk/seatgate/internal/realtime"
)

// Cleaner sweeps expired sessions out of the active set and decrements the
// counter by exactly the number it removed.  It also pushes rank updates
// to the first topK waiters of each event, bounding the fan-out so a long
// queue does not flood the bus on every tick.
type Cleaner struct {
	queue    *WaitQueue
	sessions *ActiveSessions
	bus      *realtime.Bus
	topK     int64
	interval time.Duration
	now      func() time.Time
}

func NewCleaner(queue *WaitQueue, sessions *ActiveSessions, bus *realtime.Bus, topK int64, interval time.Duration) *Cleaner {
	return &Cleaner{
		queue:    queue,
		sessions: sessions,
		bus:      bus,
		topK:     topK,
		interval: interval,
		now:      time.Now,
	}
}

// Run executes sweeps until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	log.Printf("[cleaner] started (interval=%s topK=%d)", c.interval, c.topK)
	for {
		select {
		case <-ctx.Done():
			log.Println("[cleaner] stopped")
			return
		case <-ticker.C:
			if err := c.Sweep(ctx); err != nil {
				log.Printf("[cleaner] sweep failed: %v", err)
			}
		}
	}
}

// Sweep processes every active event once.
func (c *Cleaner) Sweep(ctx context.Context) error {
	events, err := c.queue.ActiveEvents(ctx)
	if err != nil {
		return fmt.Errorf("list active events: %w", err)
	}
	for _, eventID := range events {
		if err := c.SweepEvent(ctx, eventID); err != nil {
			log.Printf("[cleaner] event %s: %v", eventID, err)
		}
	}
	return nil
}

// SweepEvent removes due sessions for one event, adjusts the counter, and
// broadcasts fresh ranks.  Grants are not touched here: a grant's TTL
// always runs out no later than its session score, so it self-expires.
func (c *Cleaner) SweepEvent(ctx context.Context, eventID string) error {
	removed, err := c.sessions.RemoveDue(ctx, eventID, c.now())
	if err != nil {
		return fmt.Errorf("remove due sessions: %w", err)
	}
	if removed > 0 {
		if _, err := c.sessions.AddCount(ctx, eventID, -removed); err != nil {
			return fmt.Errorf("decrement active count: %w", err)
		}
		log.Printf("[cleaner] event %s expired %d sessions", eventID, removed)
	}

	if err := c.broadcastRanks(ctx, eventID); err != nil {
		log.Printf("[cleaner] event %s rank broadcast: %v", eventID, err)
	}

	return c.pruneIfIdle(ctx, eventID)
}

func (c *Cleaner) broadcastRanks(ctx context.Context, eventID string) error {
	if c.topK <= 0 {
		return nil
	}
	users, err := c.queue.Top(ctx, eventID, c.topK)
	if err != nil {
		return err
	}
	for i, userID := range users {
		ev := realtime.RankUpdateEvent{EventID: eventID, UserID: userID, Rank: int64(i) + 1}
		if err := c.bus.PublishRankUpdate(ctx, ev); err != nil {
			// Rank pushes are best-effort; the next tick repeats them.
			return err
		}
	}
	return nil
}

// pruneIfIdle drops the event from the active registry once queue, session
// set and counter are all empty, so the periodic jobs stop visiting it.
// An enqueue racing the emptiness checks could register the event just
// before the deregistration lands and strand its waiter, so the queue size
// is re-read afterwards and the registration restored when it refilled.
func (c *Cleaner) pruneIfIdle(ctx context.Context, eventID string) error {
	queued, err := c.queue.Size(ctx, eventID)
	if err != nil {
		return err
	}
	if queued > 0 {
		// Also repairs a registration a racing prune on another instance
		// may have taken out from under this waiter.
		return c.queue.Register(ctx, eventID)
	}
	active, err := c.sessions.Size(ctx, eventID)
	if err != nil || active > 0 {
		return err
	}
	count, err := c.sessions.Count(ctx, eventID)
	if err != nil || count != 0 {
		return err
	}
	if err := c.queue.Deregister(ctx, eventID); err != nil {
		return err
	}
	queued, err = c.queue.Size(ctx, eventID)
	if err != nil {
		return err
	}
	if queued > 0 {
		return c.queue.Register(ctx, eventID)
	}
	log.Printf("[cleaner] event %s idle, deregistered", eventID)
	return nil
}
