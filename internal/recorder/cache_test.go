package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LevelSentinel/internal/model"
)

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	ttl    map[string]time.Duration
	getErr error
	setErr error
	gets   int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Close() error { return nil }

func newTestCache(inner Store, rdb RedisCmd) *CachedStore {
	c := NewCachedStore(inner, rdb)
	c.now = func() time.Time { return t0 }
	return c
}

func TestCachedStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	rdb := newFakeRedis()
	c := newTestCache(inner, rdb)

	in := result("a", model.BTC, model.TF15m, t0, time.Hour)
	require.NoError(t, c.Insert(ctx, in))
	assert.Equal(t, 1, inner.Len())
	assert.Equal(t, time.Hour, rdb.ttl["sr:latest:BTC:15m"])

	// Served from the cache even when the inner store loses the record.
	inner.records = nil
	got, err := c.FindLatestValid(ctx, model.BTC, model.TF15m, t0.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, in.Support1, got.Support1)
}

func TestCachedStore_ExpiredEntryFallsThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	c := newTestCache(inner, newFakeRedis())

	require.NoError(t, c.Insert(ctx, result("a", model.BTC, model.TF15m, t0, time.Hour)))
	got, err := c.FindLatestValid(ctx, model.BTC, model.TF15m, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCachedStore_MissPopulates(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	rdb := newFakeRedis()
	require.NoError(t, inner.Insert(ctx, result("a", model.ETH, model.TF4h, t0, 16*time.Hour)))

	c := newTestCache(inner, rdb)
	got, err := c.FindLatestValid(ctx, model.ETH, model.TF4h, t0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, rdb.data, "sr:latest:ETH:4h")
	assert.Equal(t, 16*time.Hour, rdb.ttl["sr:latest:ETH:4h"])
}

func TestCachedStore_RedisDown(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	rdb.setErr = errors.New("connection refused")
	c := newTestCache(inner, rdb)

	require.NoError(t, c.Insert(ctx, result("a", model.BTC, model.TF1h, t0, time.Hour)))
	got, err := c.FindLatestValid(ctx, model.BTC, model.TF1h, t0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a", got.ID)
}

func TestCachedStore_InnerFailureNotCached(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	inner.FailInsert = errors.New("read only")
	rdb := newFakeRedis()
	c := newTestCache(inner, rdb)

	err := c.Insert(ctx, result("a", model.BTC, model.TF1h, t0, time.Hour))
	var pe *model.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, rdb.data)
}
