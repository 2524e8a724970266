package store

import (
	"context"
	"testing"
	"time"
)

func TestMemorySetsOrderingAndRank(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sets := NewMemory().Sets

	for _, m := range []struct {
		member string
		score  int64
	}{
		{"c", 30}, {"a", 10}, {"b", 20},
	} {
		if err := sets.Add(ctx, "q", m.member, m.score); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	rank, ok, err := sets.Rank(ctx, "q", "b")
	if err != nil || !ok || rank != 1 {
		t.Fatalf("Rank(b): got (%d, %v, %v), want (1, true, nil)", rank, ok, err)
	}
	if _, ok, _ := sets.Rank(ctx, "q", "missing"); ok {
		t.Fatal("Rank(missing): got ok, want absent")
	}

	members, err := sets.Range(ctx, "q", 0, -1)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, m := range members {
		if m.Value != want[i] {
			t.Errorf("Range[%d]: got %q, want %q", i, m.Value, want[i])
		}
	}
}

func TestMemorySetsTieBreakLexicographic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sets := NewMemory().Sets

	_ = sets.Add(ctx, "q", "zeta", 5)
	_ = sets.Add(ctx, "q", "alpha", 5)

	members, _ := sets.Range(ctx, "q", 0, -1)
	if members[0].Value != "alpha" || members[1].Value != "zeta" {
		t.Fatalf("equal scores: got order %q, %q; want alpha, zeta", members[0].Value, members[1].Value)
	}
}

func TestMemorySetsAddIfAbsentKeepsScore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sets := NewMemory().Sets

	inserted, err := sets.AddIfAbsent(ctx, "q", "u", 7)
	if err != nil || !inserted {
		t.Fatalf("first AddIfAbsent: got (%v, %v)", inserted, err)
	}
	inserted, err = sets.AddIfAbsent(ctx, "q", "u", 99)
	if err != nil || inserted {
		t.Fatalf("second AddIfAbsent: got (%v, %v), want no-op", inserted, err)
	}
	score, ok, _ := sets.Score(ctx, "q", "u")
	if !ok || score != 7 {
		t.Fatalf("Score: got (%d, %v), want (7, true)", score, ok)
	}
}

func TestMemorySetsPopMin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sets := NewMemory().Sets

	_ = sets.Add(ctx, "q", "a", 1)
	_ = sets.Add(ctx, "q", "b", 2)
	_ = sets.Add(ctx, "q", "c", 3)

	popped, err := sets.PopMin(ctx, "q", 2)
	if err != nil || len(popped) != 2 {
		t.Fatalf("PopMin: got %d members, err %v", len(popped), err)
	}
	if popped[0].Value != "a" || popped[1].Value != "b" {
		t.Fatalf("PopMin order: got %q, %q", popped[0].Value, popped[1].Value)
	}
	size, _ := sets.Size(ctx, "q")
	if size != 1 {
		t.Fatalf("Size after pop: got %d, want 1", size)
	}

	popped, _ = sets.PopMin(ctx, "q", 10)
	if len(popped) != 1 || popped[0].Value != "c" {
		t.Fatalf("PopMin over-ask: got %v", popped)
	}
}

func TestMemorySetsRemoveUpTo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sets := NewMemory().Sets

	_ = sets.Add(ctx, "s", "a", 10)
	_ = sets.Add(ctx, "s", "b", 20)
	_ = sets.Add(ctx, "s", "c", 30)

	removed, err := sets.RemoveUpTo(ctx, "s", 20)
	if err != nil || removed != 2 {
		t.Fatalf("RemoveUpTo: got (%d, %v), want (2, nil)", removed, err)
	}
	if _, ok, _ := sets.Score(ctx, "s", "c"); !ok {
		t.Fatal("member above the cutoff was removed")
	}
}

func TestMemorySetsScoreUpdates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sets := NewMemory().Sets

	_ = sets.Add(ctx, "s", "u", 50)

	// UpdateScoreIfGreater never lowers a score.
	_ = sets.UpdateScoreIfGreater(ctx, "s", "u", 40)
	score, _, _ := sets.Score(ctx, "s", "u")
	if score != 50 {
		t.Fatalf("lowering via IfGreater: score %d, want 50", score)
	}
	_ = sets.UpdateScoreIfGreater(ctx, "s", "u", 60)
	score, _, _ = sets.Score(ctx, "s", "u")
	if score != 60 {
		t.Fatalf("raising via IfGreater: score %d, want 60", score)
	}

	// Neither update creates missing members.
	_ = sets.UpdateScoreIfGreater(ctx, "s", "ghost", 1)
	_ = sets.UpdateScoreIfPresent(ctx, "s", "ghost", 1)
	if _, ok, _ := sets.Score(ctx, "s", "ghost"); ok {
		t.Fatal("update created a missing member")
	}

	_ = sets.UpdateScoreIfPresent(ctx, "s", "u", 5)
	score, _, _ = sets.Score(ctx, "s", "u")
	if score != 5 {
		t.Fatalf("IfPresent: score %d, want 5", score)
	}
}

func TestMemoryValuesExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	values := NewMemory().Values

	if err := values.Set(ctx, "k", "v", 5*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := values.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("Get fresh: got (%q, %v)", v, ok)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok, _ := values.Get(ctx, "k"); ok {
		t.Fatal("Get after TTL: still present")
	}
}

func TestMemoryValuesSetIfAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	values := NewMemory().Values

	set, _ := values.SetIfAbsent(ctx, "g", "1", time.Minute)
	if !set {
		t.Fatal("first SetIfAbsent refused")
	}
	set, _ = values.SetIfAbsent(ctx, "g", "2", time.Minute)
	if set {
		t.Fatal("second SetIfAbsent overwrote")
	}
	v, _, _ := values.Get(ctx, "g")
	if v != "1" {
		t.Fatalf("value: got %q, want original", v)
	}
}

func TestMemoryValuesExpire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	values := NewMemory().Values

	_ = values.Set(ctx, "k", "v", time.Minute)
	ok, err := values.Expire(ctx, "k", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Expire existing: got (%v, %v)", ok, err)
	}
	ttl, ok, _ := values.TTL(ctx, "k")
	if !ok || ttl <= time.Minute {
		t.Fatalf("TTL after re-arm: got (%s, %v), want > 1m", ttl, ok)
	}
	ok, _ = values.Expire(ctx, "missing", time.Hour)
	if ok {
		t.Fatal("Expire on missing key reported success")
	}
}

func TestMemoryPubSubPatterns(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ps := NewMemory().PubSub

	exact, err := ps.Subscribe(ctx, "admission-channel")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	pattern, err := ps.PSubscribe(ctx, "__keyevent@*__:expired")
	if err != nil {
		t.Fatalf("PSubscribe: %v", err)
	}

	_ = ps.Publish(ctx, "admission-channel", "hello")
	_ = ps.Publish(ctx, "__keyevent@0__:expired", "seat:hold-ttl:e1:A-1")
	_ = ps.Publish(ctx, "other-channel", "noise")

	msg := <-exact
	if msg.Payload != "hello" {
		t.Fatalf("exact sub: got %q", msg.Payload)
	}
	msg = <-pattern
	if msg.Channel != "__keyevent@0__:expired" || msg.Payload != "seat:hold-ttl:e1:A-1" {
		t.Fatalf("pattern sub: got %+v", msg)
	}

	select {
	case extra := <-exact:
		t.Fatalf("exact sub received noise: %+v", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestMemoryLocker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	locker := NewMemory().Locker

	release, err := locker.Acquire(ctx, "lock:x", 0, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := locker.Acquire(ctx, "lock:x", 0, time.Minute); err != ErrLockBusy {
		t.Fatalf("second Acquire: got %v, want ErrLockBusy", err)
	}
	release()
	release() // idempotent
	release2, err := locker.Acquire(ctx, "lock:x", 0, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release2()
}

func TestMemoryLockerLeaseExpires(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	locker := NewMemory().Locker

	if _, err := locker.Acquire(ctx, "lock:y", 0, 5*time.Millisecond); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release, err := locker.Acquire(ctx, "lock:y", 100*time.Millisecond, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after lease expiry: %v", err)
	}
	release()
}

func TestGlobMatch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		pattern, s string
		want       bool
	}{
		{"exact", "exact", true},
		{"exact", "other", false},
		{"__keyevent@*__:expired", "__keyevent@0__:expired", true},
		{"__keyevent@*__:expired", "__keyevent@0__:set", false},
		{"seat:status:e1:*", "seat:status:e1:A-1", true},
		{"seat:status:e1:*", "seat:status:e2:A-1", false},
		{"*", "anything", true},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.s); got != c.want {
			t.Errorf("globMatch(%q, %q): got %v, want %v", c.pattern, c.s, got, c.want)
		}
	}
}
