package seat

import (
	"context"
	"log"
	"sync"
	"time"
)

// MemoryStateStore is the in-process StateStore used by unit tests and
// redis-less local runs.  Transition semantics mirror the Lua scripts in
// redis.go; hold expiry is not simulated (the expiration watcher and the
// reconciler own that in production).
type MemoryStateStore struct {
	mu    sync.Mutex
	seats map[string]map[string]Record // eventID -> seatID -> record
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{seats: map[string]map[string]Record{}}
}

var _ StateStore = (*MemoryStateStore)(nil)

func (s *MemoryStateStore) Hold(_ context.Context, eventID, seatID, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.event(eventID)[seatID]
	if !ok || rec.Status != StatusAvailable {
		return ErrSeatConflict
	}
	now := time.Now()
	expires := now.Add(ttl)
	rec.Status = StatusHeld
	rec.HolderID = userID
	rec.ReservedAt = &now
	rec.ExpiresAt = &expires
	s.event(eventID)[seatID] = rec
	return nil
}

func (s *MemoryStateStore) Release(_ context.Context, eventID, seatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.event(eventID)[seatID]
	if !ok || rec.Status != StatusHeld {
		return ErrSeatConflict
	}
	if rec.HolderID != userID {
		return ErrNotHolder
	}
	s.event(eventID)[seatID] = cleared(rec, StatusAvailable)
	return nil
}

func (s *MemoryStateStore) FinalizeBooking(_ context.Context, eventID, seatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.event(eventID)[seatID]
	switch {
	case rec.Status == StatusHeld && rec.HolderID == userID:
	case rec.Status == StatusBooked:
		log.Printf("[seat] finalize %s/%s for %s: already booked", eventID, seatID, userID)
	case rec.Status == StatusHeld:
		log.Printf("[seat] finalize %s/%s for %s: held by someone else, booked anyway", eventID, seatID, userID)
	default:
		log.Printf("[seat] finalize %s/%s for %s: no hold in cache, booked anyway", eventID, seatID, userID)
	}
	rec.EventID = eventID
	rec.SeatID = seatID
	rec = cleared(rec, StatusBooked)
	rec.HolderID = userID
	s.event(eventID)[seatID] = rec
	return nil
}

func (s *MemoryStateStore) ForceRelease(_ context.Context, eventID, seatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.event(eventID)[seatID]
	if !ok || rec.Status != StatusHeld {
		return nil
	}
	s.event(eventID)[seatID] = cleared(rec, StatusAvailable)
	return nil
}

func (s *MemoryStateStore) PutIfNotHeld(_ context.Context, eventID, seatID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.event(eventID)[seatID]
	if ok && rec.Status == StatusHeld && status != StatusBooked {
		return nil
	}
	rec.EventID = eventID
	rec.SeatID = seatID
	s.event(eventID)[seatID] = cleared(rec, status)
	return nil
}

func (s *MemoryStateStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.event(rec.EventID)[rec.SeatID] = rec
	return nil
}

func (s *MemoryStateStore) Get(_ context.Context, eventID, seatID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.event(eventID)[seatID]
	return rec, ok, nil
}

func (s *MemoryStateStore) List(_ context.Context, eventID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.event(eventID)))
	for _, rec := range s.event(eventID) {
		out = append(out, rec)
	}
	return out, nil
}

// event assumes the caller holds mu.
func (s *MemoryStateStore) event(eventID string) map[string]Record {
	if s.seats[eventID] == nil {
		s.seats[eventID] = map[string]Record{}
	}
	return s.seats[eventID]
}

func cleared(rec Record, status Status) Record {
	rec.Status = status
	rec.HolderID = ""
	rec.ReservedAt = nil
	rec.ExpiresAt = nil
	return rec
}
