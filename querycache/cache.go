package querycache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"invoicehub-backend/store"
)

// TTL applies to both cached counts and pagination cursors. Values are
// point-in-time snapshots; last-write-wins between concurrent recomputes is
// acceptable.
const TTL = 5 * time.Minute

// Referencer lets domain values contribute a stable reference id to a cache
// key instead of their full representation.
type Referencer interface {
	CacheRef() string
}

// Predicate is one where-clause of a query shape.
type Predicate struct {
	Column string
	Value  any
}

// Shape is the cache-relevant structure of a query: model, joins and
// predicates. Two shapes that differ only in predicate insertion order
// derive the same key.
type Shape struct {
	Model string
	Joins [][]string // one entry per join, listing its columns
	Where []Predicate
}

// Key derives the canonical, order-independent cache key: the component
// strings are sorted lexicographically before hashing so structurally
// identical queries built through different code paths collapse to one
// cache line.
func (s Shape) Key(offset *int) string {
	parts := []string{"model:" + s.Model}
	for _, join := range s.Joins {
		parts = append(parts, "join:"+strings.Join(join, ","))
	}
	for _, p := range s.Where {
		parts = append(parts, fmt.Sprintf("where:%s,%s", p.Column, stringify(p.Value)))
	}
	if offset != nil {
		parts = append(parts, "offset:"+strconv.Itoa(*offset))
	}
	sort.Strings(parts)

	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func stringify(v any) string {
	if ref, ok := v.(Referencer); ok {
		return ref.CacheRef()
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Ptr:
		raw, err := json.Marshal(v)
		if err == nil {
			return string(raw)
		}
	}
	return fmt.Sprint(v)
}

// Cache memoizes expensive aggregate computations (row counts, pagination
// cursors) in the shared store. Store failures degrade to computing every
// time; they are never surfaced.
type Cache struct {
	kv store.KV
}

func New(kv store.KV) *Cache {
	return &Cache{kv: kv}
}

// Count returns the cached count for shape, or computes and caches it.
// force bypasses the read but still writes the fresh value back.
func (c *Cache) Count(ctx context.Context, shape Shape, force bool, compute func() (int64, error)) (int64, error) {
	key := "count:" + shape.Key(nil)

	if !force {
		if raw, ok, err := c.kv.Get(ctx, key); err == nil && ok {
			if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return n, nil
			}
		} else if err != nil {
			log.Printf("query cache read failed, recomputing: %v", err)
		}
	}

	n, err := compute()
	if err != nil {
		return 0, err
	}
	if err := c.kv.Set(ctx, key, strconv.FormatInt(n, 10), TTL); err != nil {
		log.Printf("query cache write failed: %v", err)
	}
	return n, nil
}

// Cursor returns the cached pagination cursor for (shape, offset), or ""
// on a miss.
func (c *Cache) Cursor(ctx context.Context, shape Shape, offset int) string {
	raw, ok, err := c.kv.Get(ctx, "cursor:"+shape.Key(&offset))
	if err != nil || !ok {
		return ""
	}
	return raw
}

// SaveCursor caches a pagination cursor for (shape, offset).
func (c *Cache) SaveCursor(ctx context.Context, shape Shape, offset int, cursor string) {
	if err := c.kv.Set(ctx, "cursor:"+shape.Key(&offset), cursor, TTL); err != nil {
		log.Printf("query cache cursor write failed: %v", err)
	}
}
