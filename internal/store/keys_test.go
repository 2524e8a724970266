package store

import "testing"

func TestKeyBuilders(t *testing.T) {
	t.Parallel()
	cases := []struct {
		got, want string
	}{
		{QueueKey("e1"), "queue:e1"},
		{ActiveKey("e1"), "active:e1"},
		{ActiveCountKey("e1"), "activeCount:e1"},
		{GrantKey("e1", "u1"), "grant:e1:u1"},
		{SeatStatusKey("e1", "A-1"), "seat:status:e1:A-1"},
		{SeatHoldTTLKey("e1", "A-1"), "seat:hold-ttl:e1:A-1"},
		{WarmedGuardKey("e1"), "seat:warmed:e1"},
		{SeatStatusPattern("e1"), "seat:status:e1:*"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("key: got %q, want %q", c.got, c.want)
		}
	}
}

func TestParseSeatHoldTTLKey(t *testing.T) {
	t.Parallel()
	eventID, seatID, ok := ParseSeatHoldTTLKey("seat:hold-ttl:e1:A-1")
	if !ok || eventID != "e1" || seatID != "A-1" {
		t.Fatalf("parse: got (%q, %q, %v), want (e1, A-1, true)", eventID, seatID, ok)
	}

	// Seat IDs may themselves contain the separator.
	eventID, seatID, ok = ParseSeatHoldTTLKey("seat:hold-ttl:e1:row:7")
	if !ok || eventID != "e1" || seatID != "row:7" {
		t.Fatalf("parse nested: got (%q, %q, %v)", eventID, seatID, ok)
	}

	for _, key := range []string{
		"seat:status:e1:A-1",
		"grant:e1:u1",
		"seat:hold-ttl:e1",
		"seat:hold-ttl::A-1",
		"",
	} {
		if _, _, ok := ParseSeatHoldTTLKey(key); ok {
			t.Errorf("parse %q: got ok, want rejection", key)
		}
	}
}
