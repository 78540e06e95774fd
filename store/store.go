package store

import (
	"context"
	"time"
)

// KV is the value-cache surface of the shared store, used by the idempotency
// store and the query-result cache.
type KV interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key with a TTL (0 means no expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// InFlight tracks simultaneously in-flight requests per identity. Admit must
// perform its stale purge, count and insert as one atomic unit relative to
// concurrent callers: a plain read-then-write overshoots capacity under load.
type InFlight interface {
	// Admit purges entries older than ttl, then inserts token under key if
	// fewer than capacity live entries remain. Returns whether it inserted.
	Admit(ctx context.Context, key, token string, capacity int, ttl time.Duration) (bool, error)
	// Release removes exactly the given token from key's entry set.
	Release(ctx context.Context, key, token string) error
}

// Store is the full shared-store contract both backends satisfy.
type Store interface {
	KV
	InFlight
}
