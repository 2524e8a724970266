// Package store abstracts the shared Redis instance behind narrow
// interfaces so that the waiting-room and seat components never touch a
// concrete client directly.  This file is the single place where key and
// channel names are built; every component that talks to the store goes
// through these helpers so the keyspace stays consistent across instances.
package store

import "strings"

// Key prefixes and channel names.  All instances of the service must agree
// on these, so they are constants rather than configuration.
const (
	queuePrefix       = "queue"
	activePrefix      = "active"
	activeCountPrefix = "activeCount"
	grantPrefix       = "grant"
	seatStatusPrefix  = "seat:status"
	seatHoldTTLPrefix = "seat:hold-ttl"
	warmedPrefix      = "seat:warmed"

	LockAdmission   = "lock:admission"
	LockConsistency = "lock:consistency"
	LockSeatWarmup  = "lock:seat-warmup"
	LockSeatSync    = "lock:seat-sync"

	ChannelAdmission  = "admission-channel"
	ChannelRankUpdate = "rank-update-channel"

	// ActiveEventsKey indexes events that currently have waiting-room state.
	// Scores are the first-enqueue timestamp so stale events sort first.
	ActiveEventsKey = "events:active"
)

func join(parts ...string) string { return strings.Join(parts, ":") }

// QueueKey is the sorted set of waiting users for an event.
func QueueKey(eventID string) string { return join(queuePrefix, eventID) }

// ActiveKey is the sorted set of active sessions for an event, scored by
// expiry timestamp in epoch milliseconds.
func ActiveKey(eventID string) string { return join(activePrefix, eventID) }

// ActiveCountKey is the atomic counter of active users for an event.
func ActiveCountKey(eventID string) string { return join(activeCountPrefix, eventID) }

// GrantKey holds the access grant for one (event, user) pair.
func GrantKey(eventID, userID string) string { return join(grantPrefix, eventID, userID) }

// SeatStatusKey is the hash holding one seat's cached status record.
func SeatStatusKey(eventID, seatID string) string { return join(seatStatusPrefix, eventID, seatID) }

// SeatHoldTTLKey is the shadow key armed alongside a hold; its expiry
// notification drives automatic release of abandoned holds.
func SeatHoldTTLKey(eventID, seatID string) string { return join(seatHoldTTLPrefix, eventID, seatID) }

// WarmedGuardKey marks an event's seat cache as freshly warmed so repeated
// warmup ticks do not redo the load.
func WarmedGuardKey(eventID string) string { return join(warmedPrefix, eventID) }

// SeatStatusPattern matches every cached seat status key for an event.
func SeatStatusPattern(eventID string) string { return join(seatStatusPrefix, eventID, "*") }

// ParseSeatHoldTTLKey extracts (eventID, seatID) from a hold-TTL key.  The
// second return value is false for keys outside the hold-TTL namespace.
func ParseSeatHoldTTLKey(key string) (eventID, seatID string, ok bool) {
	rest, found := strings.CutPrefix(key, seatHoldTTLPrefix+":")
	if !found {
		return "", "", false
	}
	eventID, seatID, ok = strings.Cut(rest, ":")
	if !ok || eventID == "" || seatID == "" {
		return "", "", false
	}
	return eventID, seatID, true
}
