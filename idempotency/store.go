package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"invoicehub-backend/apierr"
	"invoicehub-backend/store"
)

const (
	// TTL bounds how long a completed response is replayed for a key.
	TTL = 24 * time.Hour

	MinKeyLength = 6
	MaxKeyLength = 64
)

// Response is the cached (status, body) snapshot. Only JSON bodies are
// supported by this mechanism; that is a documented limitation, not a
// runtime check.
type Response struct {
	StatusCode int    `json:"status_code"`
	Body       []byte `json:"body"`
}

// Store caches full HTTP responses keyed by (credential, client key),
// short-circuiting retried POST/PATCH calls.
type Store struct {
	kv store.KV
}

func New(kv store.KV) *Store {
	return &Store{kv: kv}
}

// Validate rejects keys outside the supported shape before any lookup.
// Only POST and PATCH may carry an idempotency key.
func Validate(method, key string) error {
	if key == "" {
		return nil
	}
	if method != fiber.MethodPost && method != fiber.MethodPatch {
		return apierr.Validation("idempotency keys are only supported on POST and PATCH requests")
	}
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return apierr.Validation("idempotency key length must be between %d and %d characters", MinKeyLength, MaxKeyLength)
	}
	return nil
}

// Lookup returns the cached response for (credentialId, key), or nil on a
// miss. Store errors degrade to a miss: the request simply executes again.
func (s *Store) Lookup(ctx context.Context, credentialId, key string) (*Response, error) {
	raw, ok, err := s.kv.Get(ctx, cacheKey(credentialId, key))
	if err != nil || !ok {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Save records a completed response for replay. Only successful (2xx)
// responses are stored; failed attempts stay retryable.
func (s *Store) Save(ctx context.Context, credentialId, key string, statusCode int, body []byte) error {
	if statusCode < 200 || statusCode >= 300 {
		return nil
	}
	raw, err := json.Marshal(Response{StatusCode: statusCode, Body: body})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, cacheKey(credentialId, key), string(raw), TTL)
}

// cacheKey joins both parts with an explicit delimiter; credential ids are
// UUIDs, so differently-split (id, key) pairs can never collide.
func cacheKey(credentialId, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", credentialId, key)
}
