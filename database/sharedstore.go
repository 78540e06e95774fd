package database

import (
	"log"
	"os"

	"invoicehub-backend/store"
)

// ConnectStore builds the shared store backing the admission limiter, the
// idempotency store and the query cache. Redis when REDIS_URL is set,
// otherwise an in-process store (single-node development only: cross-process
// limiter and idempotency guarantees need Redis).
func ConnectStore() store.Store {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		log.Printf("REDIS_URL not set, using in-process shared store")
		return store.NewMemory()
	}
	s, err := store.NewRedis(url)
	if err != nil {
		log.Fatalf("could not connect to redis: %v", err)
	}
	return s
}
