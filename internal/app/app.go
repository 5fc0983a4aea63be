// Package app builds the runtime components from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"LevelSentinel/internal/collector"
	"LevelSentinel/internal/config"
	"LevelSentinel/internal/events"
	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/recorder"
	"LevelSentinel/internal/service"
	"LevelSentinel/internal/tracker"
)

// mockPrices anchor the synthetic candles of the mock source.
var mockPrices = map[model.Symbol]float64{
	model.BTC:  65000,
	model.ETH:  3500,
	model.SOL:  150,
	model.BNB:  600,
	model.DOGE: 0.15,
}

// NewFetcher returns the configured candle source.
func NewFetcher(cfg *config.Config) (collector.Fetcher, error) {
	switch cfg.DataSource.Type {
	case "binance":
		return collector.NewBinanceFetcher(cfg.DataSource.APIKey, cfg.DataSource.APISecret, cfg.Proxy, cfg.DataSource.RateLimit), nil
	case "rest":
		return collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy), nil
	case "mock":
		return &collector.MockFetcher{Prices: mockPrices}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource.Type)
	}
}

// OpenStore opens the configured level store, wrapped in the Redis cache
// when an address is set. A failing SQLite store falls back to memory.
func OpenStore(ctx context.Context, cfg *config.Config) (recorder.Store, error) {
	log := logger.Get()

	var store recorder.Store
	switch cfg.Database.Type {
	case "postgres":
		pg, err := recorder.NewPostgresStore(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return nil, err
		}
		store = pg
	case "sqlite":
		sq, err := recorder.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Warnw("init sqlite store failed, using memory", "path", cfg.Database.SQLitePath, "error", err)
			store = recorder.NewMemoryStore()
		} else {
			store = sq
		}
	case "memory":
		store = recorder.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Database.Type)
	}

	if cfg.Redis.Addr == "" {
		return store, nil
	}
	rdb, err := recorder.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warnw("redis unavailable, serving without cache", "addr", cfg.Redis.Addr, "error", err)
		return store, nil
	}
	return recorder.NewCachedStore(store, rdb), nil
}

// NewPublisher returns the Kafka publisher, or a no-op without brokers.
func NewPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Noop{}
	}
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.LevelsTopic, cfg.Kafka.BatchTopic)
}

// Runtime is the level service with everything it owns.
type Runtime struct {
	Service *service.Service
	Fetcher collector.Fetcher
	Tracker tracker.Tracker

	closers []io.Closer
}

// Build wires the service from cfg. Close releases what it opened.
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	engine, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	counts, err := cfg.CandleCounts()
	if err != nil {
		return nil, err
	}
	fetcher, err := NewFetcher(cfg)
	if err != nil {
		return nil, err
	}
	trk, err := tracker.New(cfg.Sentry.DSN, cfg.Env, cfg.Sentry.Release)
	if err != nil {
		logger.Get().Warnw("init sentry failed, errors are only logged", "error", err)
		trk = tracker.Noop{}
	}
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pub := NewPublisher(cfg)

	svc := service.New(fetcher, store, engine,
		service.WithPublisher(pub),
		service.WithTracker(trk),
		service.WithCandleCounts(counts),
	)
	return &Runtime{
		Service: svc,
		Fetcher: fetcher,
		Tracker: trk,
		closers: []io.Closer{pub, store},
	}, nil
}

// Close flushes and closes the publisher and the store.
func (r *Runtime) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	r.Tracker.Flush(2 * time.Second)
	return first
}
