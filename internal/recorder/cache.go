package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/metrics"
	"LevelSentinel/internal/model"
)

// Key prefix for the latest record per pair.
const prefixLatest = "sr:latest:%s:%s"

// RedisCmd is the subset of *redis.Client used by CachedStore.
type RedisCmd interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// CachedStore is a write-through Redis cache of the latest record per pair
// in front of another Store. Redis failures degrade to the inner store.
type CachedStore struct {
	inner Store
	rdb   RedisCmd
	log   *logger.Logger
	now   func() time.Time
}

// NewRedisClient creates a client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func NewCachedStore(inner Store, rdb RedisCmd) *CachedStore {
	return &CachedStore{
		inner: inner,
		rdb:   rdb,
		log:   logger.Get().With("component", "level_cache"),
		now:   time.Now,
	}
}

func latestKey(sym model.Symbol, tf model.Timeframe) string {
	return fmt.Sprintf(prefixLatest, sym, tf)
}

func (c *CachedStore) Insert(ctx context.Context, r *model.SRResult) error {
	if err := c.inner.Insert(ctx, r); err != nil {
		return err
	}
	c.put(ctx, r)
	return nil
}

func (c *CachedStore) put(ctx context.Context, r *model.SRResult) {
	ttl := r.ValidUntil.Sub(c.now())
	if ttl <= 0 {
		return
	}
	payload, err := json.Marshal(r)
	if err != nil {
		c.log.Warnw("encode cached level", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, latestKey(r.Symbol, r.Timeframe), payload, ttl).Err(); err != nil {
		c.log.Warnw("cache write failed", "symbol", r.Symbol, "timeframe", r.Timeframe, "error", err)
	}
}

func (c *CachedStore) FindLatestValid(ctx context.Context, sym model.Symbol, tf model.Timeframe, asOf time.Time) (*model.SRResult, error) {
	raw, err := c.rdb.Get(ctx, latestKey(sym, tf)).Bytes()
	switch {
	case err == nil:
		var cached model.SRResult
		if jerr := json.Unmarshal(raw, &cached); jerr != nil {
			metrics.RecordCache("error")
			c.log.Warnw("decode cached level", "symbol", sym, "timeframe", tf, "error", jerr)
			break
		}
		if cached.ValidAt(asOf) {
			metrics.RecordCache("hit")
			return &cached, nil
		}
		metrics.RecordCache("miss")
	case errors.Is(err, redis.Nil):
		metrics.RecordCache("miss")
	default:
		metrics.RecordCache("error")
		c.log.Warnw("cache read failed", "symbol", sym, "timeframe", tf, "error", err)
	}

	r, err := c.inner.FindLatestValid(ctx, sym, tf, asOf)
	if err != nil || r == nil {
		return r, err
	}
	c.put(ctx, r)
	return r, nil
}

func (c *CachedStore) Stats(ctx context.Context, asOf time.Time) (Stats, error) {
	return c.inner.Stats(ctx, asOf)
}

func (c *CachedStore) Close() error {
	cerr := c.rdb.Close()
	if err := c.inner.Close(); err != nil {
		return err
	}
	return cerr
}
