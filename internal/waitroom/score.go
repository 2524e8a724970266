package waitroom

import (
	"sync"
	"time"
)

const (
	sequenceBits = 21
	maxSequence  = 1<<sequenceBits - 1
)

// ScoreGenerator produces strictly increasing admission scores per event.
// A score packs the wall-clock millisecond into the high bits and a
// per-millisecond sequence into the low 21 bits, so enqueue order stays
// well-defined under burst load without a distributed lock.  When more
// than 2^21-1 requests land on one event within a single millisecond the
// generator fails with ErrTooManyRequests rather than corrupt ordering.
type ScoreGenerator struct {
	mu     sync.Mutex
	clocks map[string]*eventClock
	now    func() time.Time
}

type eventClock struct {
	lastMs int64
	seq    int64
}

func NewScoreGenerator() *ScoreGenerator {
	return &ScoreGenerator{clocks: map[string]*eventClock{}, now: time.Now}
}

// Next returns the next score for the event.
func (g *ScoreGenerator) Next(eventID string) (int64, error) {
	nowMs := g.now().UnixMilli()

	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.clocks[eventID]
	if c == nil {
		c = &eventClock{}
		g.clocks[eventID] = c
	}
	// A backwards clock step must not break monotonicity; keep counting
	// against the last observed millisecond until real time catches up.
	if nowMs < c.lastMs {
		nowMs = c.lastMs
	}
	if nowMs == c.lastMs {
		c.seq++
		if c.seq > maxSequence {
			c.seq = maxSequence
			return 0, ErrTooManyRequests
		}
	} else {
		c.lastMs = nowMs
		c.seq = 0
	}
	return nowMs<<sequenceBits | c.seq, nil
}
