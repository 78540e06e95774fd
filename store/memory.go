package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

type flight struct {
	token string
	at    time.Time
}

// Memory is an in-process shared-store implementation with TTL semantics.
// Used for single-node development and tests; the mutex gives Admit the same
// atomicity the Redis script provides server-side.
type Memory struct {
	mu      sync.Mutex
	items   map[string]entry
	flights map[string][]flight
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items:   map[string]entry{},
		flights: map[string][]flight{},
		now:     time.Now,
	}
}

// SetClock replaces the time source; tests use it to simulate TTL expiry.
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.items, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = e
	return nil
}

func (s *Memory) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *Memory) Admit(ctx context.Context, key, token string, capacity int, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-ttl)
	live := s.flights[key][:0]
	for _, f := range s.flights[key] {
		if f.at.After(cutoff) {
			live = append(live, f)
		}
	}
	if len(live) >= capacity {
		s.flights[key] = live
		return false, nil
	}
	s.flights[key] = append(live, flight{token: token, at: now})
	return true, nil
}

func (s *Memory) Release(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.flights[key]
	for i, f := range entries {
		if f.token == token {
			s.flights[key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	return nil
}

// InFlightCount reports live entries for a key; test helper.
func (s *Memory) InFlightCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flights[key])
}
