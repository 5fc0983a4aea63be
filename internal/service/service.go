package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"LevelSentinel/internal/collector"
	"LevelSentinel/internal/events"
	"LevelSentinel/internal/fusion"
	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/metrics"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/recorder"
	"LevelSentinel/internal/tracker"
)

// DefaultCandleCounts is how many candles each timeframe is analyzed over.
func DefaultCandleCounts() map[model.Timeframe]int {
	return map[model.Timeframe]int{
		model.TF15m: 50,
		model.TF1h:  75,
		model.TF4h:  100,
	}
}

// Service calculates, persists and publishes S/R levels. It keeps no state
// between calls and is safe for concurrent use.
type Service struct {
	fetcher   collector.Fetcher
	store     recorder.Store
	engine    *fusion.Engine
	publisher events.Publisher
	tracker   tracker.Tracker
	counts    map[model.Timeframe]int
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithTracker(t tracker.Tracker) Option { return func(s *Service) { s.tracker = t } }

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithCandleCounts overrides the per-timeframe candle counts. Missing
// timeframes keep their default.
func WithCandleCounts(counts map[model.Timeframe]int) Option {
	return func(s *Service) {
		for tf, n := range counts {
			if n > 0 {
				s.counts[tf] = n
			}
		}
	}
}

func New(fetcher collector.Fetcher, store recorder.Store, engine *fusion.Engine, opts ...Option) *Service {
	s := &Service{
		fetcher:   fetcher,
		store:     store,
		engine:    engine,
		publisher: events.Noop{},
		tracker:   tracker.Noop{},
		counts:    DefaultCandleCounts(),
		log:       logger.Get(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CandleCount returns the number of candles fetched for tf.
func (s *Service) CandleCount(tf model.Timeframe) int {
	if n, ok := s.counts[tf]; ok {
		return n
	}
	return 50
}

// CalculateOne fetches candles for one pair, computes its levels and stores
// the result. Nothing is written unless the computation succeeds.
func (s *Service) CalculateOne(ctx context.Context, sym model.Symbol, tf model.Timeframe) (*model.SRResult, error) {
	start := time.Now()
	res, err := s.calculate(ctx, sym, tf)
	elapsed := time.Since(start)

	log := s.log.With("symbol", sym, "timeframe", tf, "duration", elapsed)
	kind := "success"
	if err != nil {
		kind = model.ErrorKind(err)
		log.Warnw("calculation failed", "kind", kind, "error", err)
		s.report(ctx, err, sym, tf)
	} else {
		log.Infow("levels stored",
			"support1", res.Support1.Price, "support1_strength", res.Support1.Strength,
			"resistance1", res.Resistance1.Price, "resistance1_strength", res.Resistance1.Strength)
	}
	metrics.RecordJob(string(sym), string(tf), kind, elapsed)
	return res, err
}

func (s *Service) calculate(ctx context.Context, sym model.Symbol, tf model.Timeframe) (*model.SRResult, error) {
	bars, err := s.fetcher.FetchCandles(ctx, sym, tf, s.CandleCount(tf))
	if err != nil {
		return nil, &model.NoDataError{Symbol: sym, Timeframe: tf, Err: err}
	}
	if len(bars) == 0 {
		return nil, &model.NoDataError{Symbol: sym, Timeframe: tf}
	}

	res, err := s.engine.Calculate(sym, tf, bars, s.now())
	if err != nil {
		return nil, err
	}
	res.ID = s.newID()

	if err := s.store.Insert(ctx, res); err != nil {
		var pe *model.PersistenceError
		if !errors.As(err, &pe) {
			err = model.NewPersistenceError("insert", err)
		}
		return nil, err
	}

	// The record is complete once stored; a lost event does not fail the job.
	if err := s.publisher.PublishLevels(ctx, res); err != nil {
		s.log.Warnw("publish levels", "symbol", sym, "timeframe", tf, "error", err)
	}
	return res, nil
}

// report forwards failures that indicate a defect rather than an outage.
func (s *Service) report(ctx context.Context, err error, sym model.Symbol, tf model.Timeframe) {
	var ce *model.ComputationError
	if errors.As(err, &ce) {
		s.tracker.CaptureError(ctx, err, map[string]string{
			"symbol":    string(sym),
			"timeframe": string(tf),
			"component": "service",
		})
	}
}

// CalculateBatch runs CalculateOne for every symbol x timeframe pair
// concurrently. Job failures are reported in the summary, never returned;
// the only error is ErrEmptyBatch.
func (s *Service) CalculateBatch(ctx context.Context, symbols []model.Symbol, timeframes []model.Timeframe) (*model.BatchSummary, error) {
	symbols, timeframes = unique(symbols), unique(timeframes)
	if len(symbols) == 0 || len(timeframes) == 0 {
		return nil, model.ErrEmptyBatch
	}

	jobs := make([]model.Job, 0, len(symbols)*len(timeframes))
	for _, sym := range symbols {
		for _, tf := range timeframes {
			jobs = append(jobs, model.Job{Symbol: sym, Timeframe: tf})
		}
	}

	summary := &model.BatchSummary{RunID: s.newID(), StartedAt: s.now()}
	log := s.log.With("run_id", summary.RunID)
	log.Infow("batch started", "jobs", len(jobs))
	start := time.Now()

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job model.Job) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := &model.ComputationError{
						Symbol:    job.Symbol,
						Timeframe: job.Timeframe,
						Index:     -1,
						Reason:    fmt.Sprintf("panic: %v", r),
					}
					log.Errorw("job panicked", "symbol", job.Symbol, "timeframe", job.Timeframe,
						"panic", r, "stack", string(debug.Stack()))
					s.report(ctx, err, job.Symbol, job.Timeframe)
					metrics.RecordJob(string(job.Symbol), string(job.Timeframe), model.KindComputation, 0)
					errs[i] = err
				}
			}()
			_, errs[i] = s.CalculateOne(ctx, job.Symbol, job.Timeframe)
		}(i, job)
	}
	wg.Wait()

	for i, job := range jobs {
		if errs[i] == nil {
			summary.Successes = append(summary.Successes, job)
			continue
		}
		summary.Failures = append(summary.Failures, model.JobFailure{
			Symbol:    job.Symbol,
			Timeframe: job.Timeframe,
			Kind:      model.ErrorKind(errs[i]),
			Message:   errs[i].Error(),
		})
	}
	summary.Duration = time.Since(start)

	metrics.RecordBatch(summary.Duration, len(summary.Failures))
	log.Infow("batch complete", "successful", len(summary.Successes), "failed", len(summary.Failures),
		"duration", summary.Duration)

	if err := s.publisher.PublishBatch(ctx, summary); err != nil {
		log.Warnw("publish batch summary", "error", err)
	}
	return summary, nil
}

// Latest returns the current valid record for each timeframe of sym that
// has one, in the order given.
func (s *Service) Latest(ctx context.Context, sym model.Symbol, timeframes []model.Timeframe) ([]*model.SRResult, error) {
	asOf := s.now()
	var out []*model.SRResult
	for _, tf := range unique(timeframes) {
		r, err := s.store.FindLatestValid(ctx, sym, tf, asOf)
		if err != nil {
			return nil, fmt.Errorf("latest %s %s: %w", sym, tf, err)
		}
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

// LatestOne returns the current valid record for one pair, or nil.
func (s *Service) LatestOne(ctx context.Context, sym model.Symbol, tf model.Timeframe) (*model.SRResult, error) {
	return s.store.FindLatestValid(ctx, sym, tf, s.now())
}

// Stats reports store health as of now.
func (s *Service) Stats(ctx context.Context) (recorder.Stats, error) {
	return s.store.Stats(ctx, s.now())
}

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

func unique[T comparable](in []T) []T {
	seen := make(map[T]bool, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
