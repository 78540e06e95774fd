package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// callTimeout bounds every round trip to the shared store so an outage can
// never stall request handling; callers degrade per their own policy.
const callTimeout = 500 * time.Millisecond

// admitScript runs the stale purge, cardinality check and insert as a single
// server-side operation. KEYS[1] is the identity's sorted set; ARGV are
// cutoff-ms, now-ms, capacity, token, key-expiry-ms.
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
	redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
end
return 0
`)

// Redis backs the shared store with a Redis server.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to the given URL and verifies connectivity.
func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Redis) Del(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return s.rdb.Del(ctx, key).Err()
}

func (s *Redis) Admit(ctx context.Context, key, token string, capacity int, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	now := time.Now().UnixMilli()
	cutoff := now - ttl.Milliseconds()
	// Key expiry outlives the entry TTL so the purge always runs server-side.
	res, err := admitScript.Run(ctx, s.rdb,
		[]string{key}, cutoff, now, capacity, token, 2*ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *Redis) Release(ctx context.Context, key, token string) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return s.rdb.ZRem(ctx, key, token).Err()
}

func (s *Redis) Close() error {
	return s.rdb.Close()
}
