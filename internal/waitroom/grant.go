package waitroom

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jehyuk/seatgate/internal/store"
)

// Grant is the stored access-grant document.  The token is the opaque
// proof a client presents to booking endpoints; the ceiling is the
// absolute time past which no amount of extension keeps the session
// alive, so a slot can never be renewed forever.
type Grant struct {
	Token      string `json:"token"`
	CeilingMs  int64  `json:"ceiling_ms"`
	IssuedAtMs int64  `json:"issued_at_ms"`
}

// Ceiling returns the absolute expiry ceiling as a time.
func (g Grant) Ceiling() time.Time { return time.UnixMilli(g.CeilingMs) }

// GrantStore issues, verifies, extends and invalidates access grants.  A
// grant may exist only while a matching active session exists; the grant
// is evidence, the session is the capacity unit.
type GrantStore struct {
	values    store.ExpiringValue
	sessions  *ActiveSessions
	ttl       time.Duration // initial grant lifetime
	extension time.Duration // configured extension increment
	ceiling   time.Duration // absolute session lifetime from admission
	now       func() time.Time
}

func NewGrantStore(values store.ExpiringValue, sessions *ActiveSessions, ttl, extension, ceiling time.Duration) *GrantStore {
	return &GrantStore{
		values:    values,
		sessions:  sessions,
		ttl:       ttl,
		extension: extension,
		ceiling:   ceiling,
		now:       time.Now,
	}
}

// TTL returns the configured initial grant lifetime.
func (s *GrantStore) TTL() time.Duration { return s.ttl }

// Issue creates a fresh grant for the user with the configured TTL and
// ceiling.  A prior grant for the same (event, user) is overwritten; there
// is a single active grant per pair.
func (s *GrantStore) Issue(ctx context.Context, eventID, userID string) (Grant, error) {
	token, err := randomToken(32)
	if err != nil {
		return Grant{}, fmt.Errorf("generate token: %w", err)
	}
	now := s.now()
	g := Grant{
		Token:      token,
		CeilingMs:  now.Add(s.ceiling).UnixMilli(),
		IssuedAtMs: now.UnixMilli(),
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return Grant{}, err
	}
	if err := s.values.Set(ctx, store.GrantKey(eventID, userID), string(raw), s.ttl); err != nil {
		return Grant{}, fmt.Errorf("store grant %s/%s: %w", eventID, userID, err)
	}
	return g, nil
}

// Peek returns the stored grant and its remaining TTL; ok is false when no
// grant exists.
func (s *GrantStore) Peek(ctx context.Context, eventID, userID string) (Grant, time.Duration, bool, error) {
	raw, ok, err := s.values.Get(ctx, store.GrantKey(eventID, userID))
	if err != nil || !ok {
		return Grant{}, 0, false, err
	}
	var g Grant
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Grant{}, 0, false, fmt.Errorf("decode grant %s/%s: %w", eventID, userID, err)
	}
	ttl, _, err := s.values.TTL(ctx, store.GrantKey(eventID, userID))
	if err != nil {
		return Grant{}, 0, false, err
	}
	return g, ttl, true, nil
}

// Verify checks the presented access key against the stored grant.
func (s *GrantStore) Verify(ctx context.Context, eventID, userID, token string) error {
	g, _, ok, err := s.Peek(ctx, eventID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionExpired
	}
	if g.Token != token {
		return ErrInvalidAccessKey
	}
	return nil
}

// Extend lengthens the grant's TTL toward the ceiling and returns the
// grant's remaining TTL afterwards.  The target is the configured
// extension capped at the time left before the ceiling; it is applied only
// when it is longer than what remains, so extension never shortens a
// session.  On a real extension the active-session score moves out to the
// new expiry as well, keeping the cleaner and reconciler consistent.
func (s *GrantStore) Extend(ctx context.Context, eventID, userID string) (time.Duration, error) {
	g, current, ok, err := s.Peek(ctx, eventID, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrSessionExpired
	}
	now := s.now()
	remaining := g.Ceiling().Sub(now)
	if remaining <= 0 {
		return 0, ErrSessionExpired
	}
	target := s.extension
	if target > remaining {
		target = remaining
	}
	if target <= current {
		return current, nil
	}
	existed, err := s.values.Expire(ctx, store.GrantKey(eventID, userID), target)
	if err != nil {
		return 0, fmt.Errorf("extend grant %s/%s: %w", eventID, userID, err)
	}
	if !existed {
		// Expired between the read and the re-arm.
		return 0, ErrSessionExpired
	}
	if err := s.sessions.ExtendTo(ctx, eventID, userID, now.Add(target)); err != nil {
		return 0, err
	}
	return target, nil
}

// Invalidate deletes the grant and marks the session for imminent expiry.
// The counter decrement happens in the next cleaner sweep, the same path
// that handles natural expiry.
func (s *GrantStore) Invalidate(ctx context.Context, eventID, userID string) error {
	if err := s.values.Delete(ctx, store.GrantKey(eventID, userID)); err != nil {
		return fmt.Errorf("delete grant %s/%s: %w", eventID, userID, err)
	}
	return s.sessions.MarkExpiring(ctx, eventID, userID)
}

// randomToken returns n random bytes hex-encoded.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
