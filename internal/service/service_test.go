package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LevelSentinel/internal/collector"
	"LevelSentinel/internal/fusion"
	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/recorder"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu      sync.Mutex
	levels  []*model.SRResult
	batches []*model.BatchSummary
	err     error
}

func (p *recordingPublisher) PublishLevels(_ context.Context, r *model.SRResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, r)
	return p.err
}

func (p *recordingPublisher) PublishBatch(_ context.Context, s *model.BatchSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingTracker struct {
	mu   sync.Mutex
	errs []error
}

func (t *recordingTracker) CaptureError(_ context.Context, err error, _ map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errs = append(t.errs, err)
}

func (t *recordingTracker) Flush(time.Duration) {}

// panicFetcher panics for one pair and delegates the rest.
type panicFetcher struct {
	collector.Fetcher
	job model.Job
}

func (f panicFetcher) FetchCandles(ctx context.Context, sym model.Symbol, tf model.Timeframe, count int) ([]model.OHLCV, error) {
	if (model.Job{Symbol: sym, Timeframe: tf}) == f.job {
		panic("index out of range")
	}
	return f.Fetcher.FetchCandles(ctx, sym, tf, count)
}

type fixture struct {
	fetcher   *collector.MockFetcher
	store     *recorder.MemoryStore
	publisher *recordingPublisher
	tracker   *recordingTracker
}

func newFixture() *fixture {
	return &fixture{
		fetcher:   &collector.MockFetcher{Prices: map[model.Symbol]float64{model.BTC: 64000, model.BNB: 580}, End: t0},
		store:     recorder.NewMemoryStore(),
		publisher: &recordingPublisher{},
		tracker:   &recordingTracker{},
	}
}

func (f *fixture) service(fetcher collector.Fetcher) *Service {
	if fetcher == nil {
		fetcher = f.fetcher
	}
	return New(fetcher, f.store, fusion.NewEngine(),
		WithPublisher(f.publisher),
		WithTracker(f.tracker),
		WithLogger(logger.Nop()),
		WithClock(func() time.Time { return t0 }),
	)
}

func TestCalculateOne(t *testing.T) {
	f := newFixture()
	svc := f.service(nil)
	ctx := context.Background()

	res, err := svc.CalculateOne(ctx, model.BTC, model.TF1h)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, t0, res.CalculatedAt)
	assert.Equal(t, t0.Add(240*time.Minute), res.ValidUntil)
	assert.Less(t, res.Support1.Price, res.CurrentPrice)
	assert.Greater(t, res.Resistance1.Price, res.CurrentPrice)
	assert.Equal(t, 1, f.fetcher.Calls(model.BTC, model.TF1h))
	assert.Equal(t, 1, f.store.Len())
	require.Len(t, f.publisher.levels, 1)

	latest, err := svc.LatestOne(ctx, model.BTC, model.TF1h)
	require.NoError(t, err)
	assert.Equal(t, res.ID, latest.ID)
}

func TestCalculateOne_EmptyCandles(t *testing.T) {
	f := newFixture()
	f.fetcher.Data = map[model.Job][]model.OHLCV{{Symbol: model.BTC, Timeframe: model.TF15m}: {}}

	_, err := f.service(nil).CalculateOne(context.Background(), model.BTC, model.TF15m)
	var nd *model.NoDataError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, model.BTC, nd.Symbol)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.publisher.levels)
}

func TestCalculateOne_FetchError(t *testing.T) {
	f := newFixture()
	f.fetcher.Errors = map[model.Job]error{{Symbol: model.DOGE, Timeframe: model.TF4h}: model.ErrUnsupportedPair}

	_, err := f.service(nil).CalculateOne(context.Background(), model.DOGE, model.TF4h)
	var nd *model.NoDataError
	require.ErrorAs(t, err, &nd)
	assert.ErrorIs(t, err, model.ErrUnsupportedPair)
	assert.Equal(t, 0, f.store.Len())
}

func TestCalculateOne_PersistenceFailure(t *testing.T) {
	f := newFixture()
	f.store.FailInsert = errors.New("database is locked")

	_, err := f.service(nil).CalculateOne(context.Background(), model.BNB, model.TF15m)
	var pe *model.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.KindPersistence, model.ErrorKind(err))
	assert.Empty(t, f.publisher.levels)
	assert.Empty(t, f.tracker.errs)
}

func TestCalculateOne_InvalidCandles(t *testing.T) {
	f := newFixture()
	bars := collector.SyntheticBars(100, model.TF15m, 50, t0)
	bars[7].High = bars[7].Low - 1
	f.fetcher.Data = map[model.Job][]model.OHLCV{{Symbol: model.SOL, Timeframe: model.TF15m}: bars}

	_, err := f.service(nil).CalculateOne(context.Background(), model.SOL, model.TF15m)
	var ce *model.ComputationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 7, ce.Index)
	assert.Len(t, f.tracker.errs, 1)
	assert.Equal(t, 0, f.store.Len())
}

func TestCalculateOne_PublishFailureKeepsResult(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("broker down")

	res, err := f.service(nil).CalculateOne(context.Background(), model.BTC, model.TF4h)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Equal(t, 1, f.store.Len())
}

func TestCalculateBatch_IsolatesFailures(t *testing.T) {
	f := newFixture()
	f.fetcher.Errors = map[model.Job]error{{Symbol: model.ETH, Timeframe: model.TF1h}: errors.New("timeout")}

	symbols := []model.Symbol{model.BTC, model.ETH, model.BNB}
	timeframes := []model.Timeframe{model.TF15m, model.TF1h}
	summary, err := f.service(nil).CalculateBatch(context.Background(), symbols, timeframes)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Total())
	assert.False(t, summary.OK())
	assert.Equal(t, []model.Job{
		{Symbol: model.BTC, Timeframe: model.TF15m},
		{Symbol: model.BTC, Timeframe: model.TF1h},
		{Symbol: model.ETH, Timeframe: model.TF15m},
		{Symbol: model.BNB, Timeframe: model.TF15m},
		{Symbol: model.BNB, Timeframe: model.TF1h},
	}, summary.Successes)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, model.ETH, summary.Failures[0].Symbol)
	assert.Equal(t, model.TF1h, summary.Failures[0].Timeframe)
	assert.Equal(t, model.KindNoData, summary.Failures[0].Kind)
	assert.Contains(t, summary.Failures[0].Message, "timeout")

	assert.Equal(t, 5, f.store.Len())
	assert.NotEmpty(t, summary.RunID)
	require.Len(t, f.publisher.batches, 1)
	assert.Equal(t, summary.RunID, f.publisher.batches[0].RunID)
}

func TestCalculateBatch_RecoversPanics(t *testing.T) {
	f := newFixture()
	bad := model.Job{Symbol: model.BNB, Timeframe: model.TF4h}
	svc := f.service(panicFetcher{Fetcher: f.fetcher, job: bad})

	var summary *model.BatchSummary
	require.NotPanics(t, func() {
		var err error
		summary, err = svc.CalculateBatch(context.Background(),
			[]model.Symbol{model.BTC, model.BNB}, []model.Timeframe{model.TF1h, model.TF4h})
		require.NoError(t, err)
	})

	assert.Len(t, summary.Successes, 3)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, bad.Symbol, summary.Failures[0].Symbol)
	assert.Equal(t, bad.Timeframe, summary.Failures[0].Timeframe)
	assert.Equal(t, model.KindComputation, summary.Failures[0].Kind)
	assert.Len(t, f.tracker.errs, 1)
}

func TestCalculateBatch_DedupsInput(t *testing.T) {
	f := newFixture()
	summary, err := f.service(nil).CalculateBatch(context.Background(),
		[]model.Symbol{model.BTC, model.BTC}, []model.Timeframe{model.TF15m, model.TF15m})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total())
	assert.Equal(t, 1, f.fetcher.Calls(model.BTC, model.TF15m))
}

func TestCalculateBatch_Empty(t *testing.T) {
	svc := newFixture().service(nil)
	_, err := svc.CalculateBatch(context.Background(), nil, model.SupportedTimeframes)
	assert.ErrorIs(t, err, model.ErrEmptyBatch)

	_, err = svc.CalculateBatch(context.Background(), []model.Symbol{model.BTC}, nil)
	assert.ErrorIs(t, err, model.ErrEmptyBatch)
}

func TestLatest(t *testing.T) {
	f := newFixture()
	svc := f.service(nil)
	ctx := context.Background()
	_, err := svc.CalculateBatch(ctx, []model.Symbol{model.BTC}, []model.Timeframe{model.TF15m, model.TF4h})
	require.NoError(t, err)

	got, err := svc.Latest(ctx, model.BTC, model.SupportedTimeframes)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.TF15m, got[0].Timeframe)
	assert.Equal(t, model.TF4h, got[1].Timeframe)
}

func TestWithCandleCounts(t *testing.T) {
	svc := New(&collector.MockFetcher{}, recorder.NewMemoryStore(), fusion.NewEngine(),
		WithLogger(logger.Nop()),
		WithCandleCounts(map[model.Timeframe]int{model.TF15m: 200, model.TF1h: 0}))
	assert.Equal(t, 200, svc.CandleCount(model.TF15m))
	assert.Equal(t, 75, svc.CandleCount(model.TF1h))
	assert.Equal(t, 100, svc.CandleCount(model.TF4h))
}
