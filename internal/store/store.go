package store

import (
	"context"
	"errors"
	"time"
)

// ErrLockBusy is returned by Locker.Acquire when another instance holds the
// lock and the bounded wait elapsed.  Jobs treat it as "skip this cycle",
// not as a failure.
var ErrLockBusy = errors.New("lock busy")

// Member pairs a sorted-set member with its score.
type Member struct {
	Value string
	Score int64
}

// OrderedSet is the subset of sorted-set behavior the waiting room needs.
// Scores are int64 throughout; the Redis implementation stores them as
// float64, which every Redis client does.
type OrderedSet interface {
	// AddIfAbsent inserts a member only when it is not already present and
	// reports whether an insert happened.  An existing member keeps its
	// original score, which is what makes enqueue idempotent.
	AddIfAbsent(ctx context.Context, key, member string, score int64) (bool, error)

	// Add inserts or unconditionally re-scores a member.
	Add(ctx context.Context, key, member string, score int64) error

	// UpdateScoreIfPresent re-scores an existing member and is a no-op for
	// absent members.
	UpdateScoreIfPresent(ctx context.Context, key, member string, score int64) error

	// UpdateScoreIfGreater re-scores an existing member only when the new
	// score is greater than the current one (monotonic extension).
	UpdateScoreIfGreater(ctx context.Context, key, member string, score int64) error

	// Rank returns the 0-based ascending rank of a member; ok is false when
	// the member is absent.
	Rank(ctx context.Context, key, member string) (rank int64, ok bool, err error)

	// Score returns the member's score; ok is false when absent.
	Score(ctx context.Context, key, member string) (score int64, ok bool, err error)

	// PopMin atomically removes and returns up to n lowest-score members.
	PopMin(ctx context.Context, key string, n int64) ([]Member, error)

	// Range returns members by ascending rank, inclusive; negative stop
	// counts from the end (-1 is the last member).
	Range(ctx context.Context, key string, start, stop int64) ([]Member, error)

	// RemoveUpTo removes every member with score <= max and returns how many
	// were actually removed.  Decrement-by-removed-count correctness depends
	// on this being a single store-side operation.
	RemoveUpTo(ctx context.Context, key string, max int64) (int64, error)

	// Remove deletes one member and reports whether it was present.
	Remove(ctx context.Context, key, member string) (bool, error)

	// Size returns the member count.
	Size(ctx context.Context, key string) (int64, error)
}

// AtomicCounter is a store-backed integer with atomic arithmetic.
type AtomicCounter interface {
	// Get returns the current value; a missing counter reads as zero.
	Get(ctx context.Context, key string) (int64, error)
	Add(ctx context.Context, key string, delta int64) (int64, error)
	Set(ctx context.Context, key string, value int64) error
}

// ExpiringValue is a string value with a TTL.
type ExpiringValue interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent writes only when the key does not exist and reports
	// whether the write happened.  Used for short-lived guard keys.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value; ok is false when the key is missing or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	// TTL returns the remaining lifetime; ok is false when the key is
	// missing or has no expiry.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)
	// Expire re-arms the key's TTL and reports whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Message is one pub/sub delivery.  Pattern subscriptions carry the
// concrete channel the message arrived on.
type Message struct {
	Channel string
	Payload string
}

// PubSub is fire-and-forget messaging between service instances.  Delivery
// is at-most-once per connected subscriber; the store keeps no backlog.
type PubSub interface {
	Publish(ctx context.Context, channel, payload string) error
	// Subscribe delivers messages for the named channels until ctx is
	// cancelled, after which the returned channel is closed.
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	// PSubscribe is Subscribe for glob patterns (keyspace notifications).
	PSubscribe(ctx context.Context, patterns ...string) (<-chan Message, error)
}

// Locker hands out short-lived distributed locks.  Acquire waits at most
// wait for the lock and returns ErrLockBusy when it stays unavailable; the
// lease bounds how long a crashed holder can block others.  The returned
// release func is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (release func(), err error)
}
