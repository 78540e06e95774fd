package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicehub-backend/store"
)

func TestKeyIsOrderIndependent(t *testing.T) {
	a := Shape{
		Model: "invoices",
		Where: []Predicate{
			{Column: "tenant_id", Value: "t1"},
			{Column: "published", Value: true},
		},
	}
	b := Shape{
		Model: "invoices",
		Where: []Predicate{
			{Column: "published", Value: true},
			{Column: "tenant_id", Value: "t1"},
		},
	}
	assert.Equal(t, a.Key(nil), b.Key(nil))
}

func TestKeyDistinguishesShapes(t *testing.T) {
	base := Shape{Model: "invoices", Where: []Predicate{{Column: "tenant_id", Value: "t1"}}}
	other := Shape{Model: "invoices", Where: []Predicate{{Column: "tenant_id", Value: "t2"}}}
	joined := Shape{
		Model: "invoices",
		Joins: [][]string{{"customers.id", "invoices.c_id"}},
		Where: []Predicate{{Column: "tenant_id", Value: "t1"}},
	}

	assert.NotEqual(t, base.Key(nil), other.Key(nil))
	assert.NotEqual(t, base.Key(nil), joined.Key(nil))

	offset := 50
	assert.NotEqual(t, base.Key(nil), base.Key(&offset))
}

type ref struct{ id string }

func (r ref) CacheRef() string { return r.id }

func TestKeyStringification(t *testing.T) {
	withRef := Shape{Model: "invoices", Where: []Predicate{{Column: "customer", Value: ref{"customer:7"}}}}
	withId := Shape{Model: "invoices", Where: []Predicate{{Column: "customer", Value: "customer:7"}}}
	assert.Equal(t, withId.Key(nil), withRef.Key(nil), "model references hash by their id")

	withList := Shape{Model: "invoices", Where: []Predicate{{Column: "status", Value: []any{"draft", "open"}}}}
	withJSON := Shape{Model: "invoices", Where: []Predicate{{Column: "status", Value: `["draft","open"]`}}}
	assert.Equal(t, withJSON.Key(nil), withList.Key(nil), "arrays hash by their JSON form")
}

func TestCountCachesResult(t *testing.T) {
	c := New(store.NewMemory())
	shape := Shape{Model: "invoices", Where: []Predicate{{Column: "tenant_id", Value: "t1"}}}

	calls := 0
	compute := func() (int64, error) {
		calls++
		return 7, nil
	}

	n, err := c.Count(context.Background(), shape, false, compute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, 1, calls)

	// Structurally identical shape built in a different order hits the line.
	reordered := Shape{Model: "invoices", Where: []Predicate{{Column: "tenant_id", Value: "t1"}}}
	n, err = c.Count(context.Background(), reordered, false, compute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, 1, calls, "second call must be served from cache")
}

func TestCountForceRecompute(t *testing.T) {
	c := New(store.NewMemory())
	shape := Shape{Model: "invoices", Where: []Predicate{{Column: "tenant_id", Value: "t1"}}}
	ctx := context.Background()

	value := int64(0)
	calls := 0
	compute := func() (int64, error) {
		calls++
		return value, nil
	}

	n, err := c.Count(ctx, shape, false, compute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// A row was inserted; a forced call must see it and refresh the line.
	value = 1
	n, err = c.Count(ctx, shape, true, compute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, calls)

	// Subsequent non-forced calls read the refreshed value.
	n, err = c.Count(ctx, shape, false, compute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, calls)
}

func TestCountComputeError(t *testing.T) {
	c := New(store.NewMemory())
	shape := Shape{Model: "invoices"}

	_, err := c.Count(context.Background(), shape, false, func() (int64, error) {
		return 0, errors.New("query failed")
	})
	assert.Error(t, err)
}

type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unreachable")
}
func (brokenKV) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store unreachable")
}
func (brokenKV) Del(context.Context, string) error {
	return errors.New("store unreachable")
}

func TestCountDegradesToCompute(t *testing.T) {
	c := New(brokenKV{})
	shape := Shape{Model: "invoices"}

	calls := 0
	compute := func() (int64, error) {
		calls++
		return 3, nil
	}
	for i := 0; i < 3; i++ {
		n, err := c.Count(context.Background(), shape, false, compute)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	}
	assert.Equal(t, 3, calls, "an unreachable store means computing every time")
}

func TestCursorRoundTrip(t *testing.T) {
	c := New(store.NewMemory())
	shape := Shape{Model: "invoices", Where: []Predicate{{Column: "tenant_id", Value: "t1"}}}
	ctx := context.Background()

	assert.Empty(t, c.Cursor(ctx, shape, 50))

	c.SaveCursor(ctx, shape, 50, "cursor-xyz")
	assert.Equal(t, "cursor-xyz", c.Cursor(ctx, shape, 50))
	assert.Empty(t, c.Cursor(ctx, shape, 100), "cursors are per offset")
}
