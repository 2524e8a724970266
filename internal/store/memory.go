package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory bundles in-process implementations of the store interfaces.  Unit
// tests run against it, and it lets the server come up without Redis for
// local experiments.  Semantics mirror the Redis implementations, including
// tie-breaking equal scores lexicographically by member.
type Memory struct {
	Sets     *MemorySets
	Counters *MemoryCounters
	Values   *MemoryValues
	PubSub   *MemoryPubSub
	Locker   *MemoryLocker
}

func NewMemory() *Memory {
	return &Memory{
		Sets:     &MemorySets{data: map[string]map[string]int64{}},
		Counters: &MemoryCounters{data: map[string]int64{}},
		Values:   &MemoryValues{data: map[string]memoryValue{}},
		PubSub:   &MemoryPubSub{},
		Locker:   &MemoryLocker{held: map[string]time.Time{}},
	}
}

type MemorySets struct {
	mu   sync.Mutex
	data map[string]map[string]int64
}

var _ OrderedSet = (*MemorySets)(nil)

func (s *MemorySets) AddIfAbsent(_ context.Context, key, member string, score int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(key)
	if _, ok := set[member]; ok {
		return false, nil
	}
	set[member] = score
	return true, nil
}

func (s *MemorySets) Add(_ context.Context, key, member string, score int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key)[member] = score
	return nil
}

func (s *MemorySets) UpdateScoreIfPresent(_ context.Context, key, member string, score int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(key)
	if _, ok := set[member]; ok {
		set[member] = score
	}
	return nil
}

func (s *MemorySets) UpdateScoreIfGreater(_ context.Context, key, member string, score int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(key)
	if cur, ok := set[member]; ok && score > cur {
		set[member] = score
	}
	return nil
}

func (s *MemorySets) Rank(_ context.Context, key, member string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set(key)[member]; !ok {
		return 0, false, nil
	}
	for i, m := range s.sorted(key) {
		if m.Value == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (s *MemorySets) Score(_ context.Context, key, member string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.set(key)[member]
	return score, ok, nil
}

func (s *MemorySets) PopMin(_ context.Context, key string, n int64) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered := s.sorted(key)
	if int64(len(ordered)) > n {
		ordered = ordered[:n]
	}
	set := s.set(key)
	for _, m := range ordered {
		delete(set, m.Value)
	}
	return ordered, nil
}

func (s *MemorySets) Range(_ context.Context, key string, start, stop int64) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordered := s.sorted(key)
	n := int64(len(ordered))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]Member, stop-start+1)
	copy(out, ordered[start:stop+1])
	return out, nil
}

func (s *MemorySets) RemoveUpTo(_ context.Context, key string, max int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(key)
	var removed int64
	for member, score := range set {
		if score <= max {
			delete(set, member)
			removed++
		}
	}
	return removed, nil
}

func (s *MemorySets) Remove(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.set(key)
	if _, ok := set[member]; !ok {
		return false, nil
	}
	delete(set, member)
	return true, nil
}

func (s *MemorySets) Size(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.set(key))), nil
}

// set and sorted assume the caller holds mu.
func (s *MemorySets) set(key string) map[string]int64 {
	if s.data[key] == nil {
		s.data[key] = map[string]int64{}
	}
	return s.data[key]
}

func (s *MemorySets) sorted(key string) []Member {
	set := s.set(key)
	out := make([]Member, 0, len(set))
	for member, score := range set {
		out = append(out, Member{Value: member, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Value < out[j].Value
	})
	return out
}

type MemoryCounters struct {
	mu   sync.Mutex
	data map[string]int64
}

var _ AtomicCounter = (*MemoryCounters)(nil)

func (c *MemoryCounters) Get(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *MemoryCounters) Add(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] += delta
	return c.data[key], nil
}

func (c *MemoryCounters) Set(_ context.Context, key string, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

type memoryValue struct {
	value    string
	deadline time.Time // zero means no expiry
}

func (v memoryValue) expired(now time.Time) bool {
	return !v.deadline.IsZero() && now.After(v.deadline)
}

type MemoryValues struct {
	mu   sync.Mutex
	data map[string]memoryValue
}

var _ ExpiringValue = (*MemoryValues)(nil)

func (m *MemoryValues) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryValue{value: value, deadline: deadlineFrom(ttl)}
	return nil
}

func (m *MemoryValues) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.data[key]; ok && !cur.expired(time.Now()) {
		return false, nil
	}
	m.data[key] = memoryValue{value: value, deadline: deadlineFrom(ttl)}
	return true, nil
}

func (m *MemoryValues) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	if !ok || cur.expired(time.Now()) {
		delete(m.data, key)
		return "", false, nil
	}
	return cur.value, true, nil
}

func (m *MemoryValues) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryValues) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	now := time.Now()
	if !ok || cur.expired(now) || cur.deadline.IsZero() {
		return 0, false, nil
	}
	return cur.deadline.Sub(now), true, nil
}

func (m *MemoryValues) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[key]
	if !ok || cur.expired(time.Now()) {
		return false, nil
	}
	cur.deadline = deadlineFrom(ttl)
	m.data[key] = cur
	return true, nil
}

func deadlineFrom(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

type memorySub struct {
	patterns []string
	ch       chan Message
	done     <-chan struct{}
}

type MemoryPubSub struct {
	mu   sync.Mutex
	subs []*memorySub
}

var _ PubSub = (*MemoryPubSub)(nil)

func (p *MemoryPubSub) Publish(_ context.Context, channel, payload string) error {
	p.mu.Lock()
	subs := make([]*memorySub, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()
	for _, sub := range subs {
		if !sub.matches(channel) {
			continue
		}
		select {
		case sub.ch <- Message{Channel: channel, Payload: payload}:
		case <-sub.done:
		default:
			// Slow subscriber: drop, same as Redis pub/sub under backpressure.
		}
	}
	return nil
}

func (p *MemoryPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	return p.subscribe(ctx, channels)
}

func (p *MemoryPubSub) PSubscribe(ctx context.Context, patterns ...string) (<-chan Message, error) {
	return p.subscribe(ctx, patterns)
}

func (p *MemoryPubSub) subscribe(ctx context.Context, patterns []string) (<-chan Message, error) {
	sub := &memorySub{patterns: patterns, ch: make(chan Message, 64), done: ctx.Done()}
	p.mu.Lock()
	p.subs = append(p.subs, sub)
	p.mu.Unlock()
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		for i, s := range p.subs {
			if s == sub {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		close(sub.ch)
	}()
	return sub.ch, nil
}

func (s *memorySub) matches(channel string) bool {
	for _, pat := range s.patterns {
		if globMatch(pat, channel) {
			return true
		}
	}
	return false
}

// globMatch supports the '*' wildcard, which is all the key patterns here use.
func globMatch(pattern, s string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(s, part)
		if idx < 0 {
			return false
		}
		s = s[idx+len(part):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time // lease deadline per key
}

var _ Locker = (*MemoryLocker)(nil)

func (l *MemoryLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	for {
		l.mu.Lock()
		until, busy := l.held[key]
		now := time.Now()
		if !busy || now.After(until) {
			l.held[key] = now.Add(lease)
			l.mu.Unlock()
			var once sync.Once
			release := func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
				})
			}
			return release, nil
		}
		l.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}
