package app

import (
	"context"
	"path/filepath"
	"testing"

	"LevelSentinel/internal/collector"
	"LevelSentinel/internal/config"
	"LevelSentinel/internal/events"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/recorder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestNewFetcher(t *testing.T) {
	cfg := loadConfig(t)

	f, err := NewFetcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &collector.BinanceFetcher{}, f)

	cfg.DataSource.Type = "rest"
	cfg.DataSource.BaseURL = "http://candles.local"
	f, err = NewFetcher(cfg)
	require.NoError(t, err)
	assert.IsType(t, &collector.RESTFetcher{}, f)

	cfg.DataSource.Type = "ftp"
	_, err = NewFetcher(cfg)
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := loadConfig(t)

	cfg.Database.Type = "memory"
	s, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &recorder.MemoryStore{}, s)

	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "levels.db")
	s, err = OpenStore(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &recorder.SQLiteStore{}, s)
	require.NoError(t, s.Close())
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	assert.Equal(t, events.Noop{}, NewPublisher(loadConfig(t)))
}

func TestBuildMockRuntime(t *testing.T) {
	cfg := loadConfig(t)
	cfg.DataSource.Type = "mock"
	cfg.Database.Type = "memory"

	rt, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()

	res, err := rt.Service.CalculateOne(context.Background(), model.BTC, model.TF1h)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Less(t, res.Support1.Price, res.CurrentPrice)
	assert.Greater(t, res.Resistance1.Price, res.CurrentPrice)

	latest, err := rt.Service.LatestOne(context.Background(), model.BTC, model.TF1h)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, res.ID, latest.ID)
}
