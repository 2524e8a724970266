package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// The Redis-backed implementations below map each narrow interface to
// native atomic commands.  Nothing here does read-modify-write on the
// application side; conditional behavior is expressed with NX/XX/GT flags
// or a Lua script.

// RedisSets implements OrderedSet on Redis sorted sets.
type RedisSets struct{ rdb *redis.Client }

// RedisCounters implements AtomicCounter on plain integer keys.
type RedisCounters struct{ rdb *redis.Client }

// RedisValues implements ExpiringValue on string keys with TTLs.
type RedisValues struct{ rdb *redis.Client }

// RedisPubSub implements PubSub on Redis publish/subscribe.
type RedisPubSub struct{ rdb *redis.Client }

// RedisLocker implements Locker with SET NX PX plus a compare-and-delete
// unlock script, so a slow holder cannot release a lock that has already
// expired and been re-acquired by someone else.
type RedisLocker struct{ rdb *redis.Client }

func NewRedisSets(rdb *redis.Client) *RedisSets         { return &RedisSets{rdb: rdb} }
func NewRedisCounters(rdb *redis.Client) *RedisCounters { return &RedisCounters{rdb: rdb} }
func NewRedisValues(rdb *redis.Client) *RedisValues     { return &RedisValues{rdb: rdb} }
func NewRedisPubSub(rdb *redis.Client) *RedisPubSub     { return &RedisPubSub{rdb: rdb} }
func NewRedisLocker(rdb *redis.Client) *RedisLocker     { return &RedisLocker{rdb: rdb} }

var (
	_ OrderedSet    = (*RedisSets)(nil)
	_ AtomicCounter = (*RedisCounters)(nil)
	_ ExpiringValue = (*RedisValues)(nil)
	_ PubSub        = (*RedisPubSub)(nil)
	_ Locker        = (*RedisLocker)(nil)
)

func (s *RedisSets) AddIfAbsent(ctx context.Context, key, member string, score int64) (bool, error) {
	n, err := s.rdb.ZAddNX(ctx, key, redis.Z{Score: float64(score), Member: member}).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisSets) Add(ctx context.Context, key, member string, score int64) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err()
}

func (s *RedisSets) UpdateScoreIfPresent(ctx context.Context, key, member string, score int64) error {
	return s.rdb.ZAddArgs(ctx, key, redis.ZAddArgs{
		XX:      true,
		Members: []redis.Z{{Score: float64(score), Member: member}},
	}).Err()
}

func (s *RedisSets) UpdateScoreIfGreater(ctx context.Context, key, member string, score int64) error {
	return s.rdb.ZAddArgs(ctx, key, redis.ZAddArgs{
		XX:      true,
		GT:      true,
		Members: []redis.Z{{Score: float64(score), Member: member}},
	}).Err()
}

func (s *RedisSets) Rank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.rdb.ZRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

func (s *RedisSets) Score(ctx context.Context, key, member string) (int64, bool, error) {
	score, err := s.rdb.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return int64(score), true, nil
}

func (s *RedisSets) PopMin(ctx context.Context, key string, n int64) ([]Member, error) {
	zs, err := s.rdb.ZPopMin(ctx, key, n).Result()
	if err != nil {
		return nil, err
	}
	return toMembers(zs), nil
}

func (s *RedisSets) Range(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	return toMembers(zs), nil
}

func toMembers(zs []redis.Z) []Member {
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		out = append(out, Member{Value: m, Score: int64(z.Score)})
	}
	return out
}

func (s *RedisSets) RemoveUpTo(ctx context.Context, key string, max int64) (int64, error) {
	return s.rdb.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(max, 10)).Result()
}

func (s *RedisSets) Remove(ctx context.Context, key, member string) (bool, error) {
	n, err := s.rdb.ZRem(ctx, key, member).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisSets) Size(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

func (c *RedisCounters) Get(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisCounters) Add(ctx context.Context, key string, delta int64) (int64, error) {
	return c.rdb.IncrBy(ctx, key, delta).Result()
}

func (c *RedisCounters) Set(ctx context.Context, key string, value int64) error {
	return c.rdb.Set(ctx, key, value, 0).Err()
}

func (v *RedisValues) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return v.rdb.Set(ctx, key, value, ttl).Err()
}

func (v *RedisValues) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return v.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (v *RedisValues) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := v.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (v *RedisValues) Delete(ctx context.Context, key string) error {
	return v.rdb.Del(ctx, key).Err()
}

func (v *RedisValues) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := v.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	if d < 0 {
		// -2 key missing, -1 no expiry set
		return 0, false, nil
	}
	return d, true, nil
}

func (v *RedisValues) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return v.rdb.Expire(ctx, key, ttl).Result()
}

func (p *RedisPubSub) Publish(ctx context.Context, channel, payload string) error {
	return p.rdb.Publish(ctx, channel, payload).Err()
}

func (p *RedisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	sub := p.rdb.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return pump(ctx, sub), nil
}

func (p *RedisPubSub) PSubscribe(ctx context.Context, patterns ...string) (<-chan Message, error) {
	sub := p.rdb.PSubscribe(ctx, patterns...)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	return pump(ctx, sub), nil
}

func pump(ctx context.Context, sub *redis.PubSub) <-chan Message {
	out := make(chan Message, 64)
	in := sub.Channel()
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

var unlockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (func(), error) {
	token, err := randomHex(16)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = unlockScript.Run(relCtx, l.rdb, []string{key}, token).Err()
			}
			return release, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
