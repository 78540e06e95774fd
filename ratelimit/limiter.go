package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"invoicehub-backend/audit"
	"invoicehub-backend/store"
)

// EntryTTL is how long an admission entry counts against capacity before the
// purge reclaims it. Recovers capacity leaked by requests that crashed before
// release.
const EntryTTL = 60 * time.Second

// Limiter bounds simultaneously in-flight requests per identity against the
// shared store. Capacity <= 0 means unlimited.
type Limiter struct {
	store    store.InFlight
	capacity int
	ttl      time.Duration
}

func New(s store.InFlight, capacity int) *Limiter {
	return &Limiter{store: s, capacity: capacity, ttl: EntryTTL}
}

// Admit grants admission when fewer than capacity entries are in flight for
// the identity. On a store error it logs and fails open. The returned
// release must be called exactly once on every exit path; it is always
// non-nil and safe to defer.
func (l *Limiter) Admit(ctx context.Context, identity string) (release func(), admitted bool) {
	if l.capacity <= 0 {
		return func() {}, true
	}

	key := "inflight:" + identity
	token := uuid.NewString()

	ok, err := l.store.Admit(ctx, key, token, l.capacity, l.ttl)
	if err != nil {
		log.Printf("rate limiter store error, failing open: %v", err)
		audit.ObserveLimiterFailOpen()
		return func() {}, true
	}
	if !ok {
		audit.ObserveLimiterReject()
		return func() {}, false
	}

	return func() {
		// Release errors are swallowed; the admission check already logged
		// anything relevant and the entry ages out via the TTL purge.
		_ = l.store.Release(context.Background(), key, token)
	}, true
}
