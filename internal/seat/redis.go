package seat

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jehyuk/seatgate/internal/store"
)

// RedisStateStore keeps one hash per seat plus a shadow TTL key per hold.
// Transitions run as Lua scripts so the status check and the mutation are
// a single store-side step.
type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore { return &RedisStateStore{rdb: rdb} }

var _ StateStore = (*RedisStateStore)(nil)

var holdScript = redis.NewScript(`
	local st = redis.call('HGET', KEYS[1], 'status')
	if st ~= 'AVAILABLE' then
		return 0
	end
	redis.call('HSET', KEYS[1],
		'status', 'HELD',
		'holder', ARGV[1],
		'reserved_at', ARGV[2],
		'expires_at', ARGV[3])
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[4])
	return 1
`)

// releaseScript: 1 = released, 0 = seat not held, 2 = held by someone else.
var releaseScript = redis.NewScript(`
	local st = redis.call('HGET', KEYS[1], 'status')
	if st ~= 'HELD' then
		return 0
	end
	if redis.call('HGET', KEYS[1], 'holder') ~= ARGV[1] then
		return 2
	end
	redis.call('HSET', KEYS[1], 'status', 'AVAILABLE')
	redis.call('HDEL', KEYS[1], 'holder', 'reserved_at', 'expires_at')
	redis.call('DEL', KEYS[2])
	return 1
`)

// finalizeScript always lands on BOOKED and reports what it found:
// 1 = held by the booking user, 2 = no hold, 3 = held by someone else,
// 4 = already booked.
var finalizeScript = redis.NewScript(`
	local st = redis.call('HGET', KEYS[1], 'status')
	local holder = redis.call('HGET', KEYS[1], 'holder')
	redis.call('HSET', KEYS[1], 'status', 'BOOKED', 'holder', ARGV[1])
	redis.call('HDEL', KEYS[1], 'reserved_at', 'expires_at')
	redis.call('DEL', KEYS[2])
	if st == 'HELD' and holder == ARGV[1] then return 1 end
	if st == 'BOOKED' then return 4 end
	if st == 'HELD' then return 3 end
	return 2
`)

// warmPutScript skips seats currently HELD so warmup never reverts a live
// hold; a BOOKED write goes through regardless.
var warmPutScript = redis.NewScript(`
	local st = redis.call('HGET', KEYS[1], 'status')
	if st == 'HELD' and ARGV[1] ~= 'BOOKED' then
		return 0
	end
	redis.call('DEL', KEYS[1], KEYS[2])
	redis.call('HSET', KEYS[1], 'status', ARGV[1])
	return 1
`)

var forceReleaseScript = redis.NewScript(`
	redis.call('DEL', KEYS[2])
	local st = redis.call('HGET', KEYS[1], 'status')
	if st ~= 'HELD' then
		return 0
	end
	redis.call('HSET', KEYS[1], 'status', 'AVAILABLE')
	redis.call('HDEL', KEYS[1], 'holder', 'reserved_at', 'expires_at')
	return 1
`)

func (s *RedisStateStore) Hold(ctx context.Context, eventID, seatID, userID string, ttl time.Duration) error {
	now := time.Now()
	expires := now.Add(ttl)
	keys := []string{store.SeatStatusKey(eventID, seatID), store.SeatHoldTTLKey(eventID, seatID)}
	res, err := holdScript.Run(ctx, s.rdb, keys,
		userID, now.UnixMilli(), expires.UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("hold %s/%s: %w", eventID, seatID, err)
	}
	if res != 1 {
		return ErrSeatConflict
	}
	return nil
}

func (s *RedisStateStore) Release(ctx context.Context, eventID, seatID, userID string) error {
	keys := []string{store.SeatStatusKey(eventID, seatID), store.SeatHoldTTLKey(eventID, seatID)}
	res, err := releaseScript.Run(ctx, s.rdb, keys, userID).Int()
	if err != nil {
		return fmt.Errorf("release %s/%s: %w", eventID, seatID, err)
	}
	switch res {
	case 0:
		return ErrSeatConflict
	case 2:
		return ErrNotHolder
	}
	return nil
}

func (s *RedisStateStore) FinalizeBooking(ctx context.Context, eventID, seatID, userID string) error {
	keys := []string{store.SeatStatusKey(eventID, seatID), store.SeatHoldTTLKey(eventID, seatID)}
	res, err := finalizeScript.Run(ctx, s.rdb, keys, userID).Int()
	if err != nil {
		return fmt.Errorf("finalize %s/%s: %w", eventID, seatID, err)
	}
	switch res {
	case 2:
		log.Printf("[seat] finalize %s/%s for %s: no hold in cache, booked anyway", eventID, seatID, userID)
	case 3:
		log.Printf("[seat] finalize %s/%s for %s: held by someone else, booked anyway", eventID, seatID, userID)
	case 4:
		log.Printf("[seat] finalize %s/%s for %s: already booked", eventID, seatID, userID)
	}
	return nil
}

func (s *RedisStateStore) ForceRelease(ctx context.Context, eventID, seatID string) error {
	keys := []string{store.SeatStatusKey(eventID, seatID), store.SeatHoldTTLKey(eventID, seatID)}
	if err := forceReleaseScript.Run(ctx, s.rdb, keys).Err(); err != nil {
		return fmt.Errorf("force release %s/%s: %w", eventID, seatID, err)
	}
	return nil
}

func (s *RedisStateStore) PutIfNotHeld(ctx context.Context, eventID, seatID string, status Status) error {
	keys := []string{store.SeatStatusKey(eventID, seatID), store.SeatHoldTTLKey(eventID, seatID)}
	if err := warmPutScript.Run(ctx, s.rdb, keys, string(status)).Err(); err != nil {
		return fmt.Errorf("warm put %s/%s: %w", eventID, seatID, err)
	}
	return nil
}

func (s *RedisStateStore) Put(ctx context.Context, rec Record) error {
	fields := map[string]any{"status": string(rec.Status)}
	if rec.HolderID != "" {
		fields["holder"] = rec.HolderID
	}
	if rec.ReservedAt != nil {
		fields["reserved_at"] = rec.ReservedAt.UnixMilli()
	}
	if rec.ExpiresAt != nil {
		fields["expires_at"] = rec.ExpiresAt.UnixMilli()
	}
	key := store.SeatStatusKey(rec.EventID, rec.SeatID)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put %s/%s: %w", rec.EventID, rec.SeatID, err)
	}
	return nil
}

func (s *RedisStateStore) Get(ctx context.Context, eventID, seatID string) (Record, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, store.SeatStatusKey(eventID, seatID)).Result()
	if err != nil {
		return Record{}, false, err
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}
	return recordFromFields(eventID, seatID, fields), true, nil
}

func (s *RedisStateStore) List(ctx context.Context, eventID string) ([]Record, error) {
	var records []Record
	iter := s.rdb.Scan(ctx, 0, store.SeatStatusPattern(eventID), 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		// Key layout is seat:status:{event}:{seat}.
		seatID := key[len(store.SeatStatusKey(eventID, "")):]
		records = append(records, recordFromFields(eventID, seatID, fields))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan seats %s: %w", eventID, err)
	}
	return records, nil
}

func recordFromFields(eventID, seatID string, fields map[string]string) Record {
	rec := Record{
		EventID:  eventID,
		SeatID:   seatID,
		Status:   Status(fields["status"]),
		HolderID: fields["holder"],
	}
	if ms, err := strconv.ParseInt(fields["reserved_at"], 10, 64); err == nil {
		t := time.UnixMilli(ms)
		rec.ReservedAt = &t
	}
	if ms, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil {
		t := time.UnixMilli(ms)
		rec.ExpiresAt = &t
	}
	return rec
}
