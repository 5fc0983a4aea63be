package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/metrics"
	"LevelSentinel/internal/model"
	"LevelSentinel/internal/notifier"
	"LevelSentinel/internal/recorder"

	"github.com/robfig/cron/v3"
)

// DefaultSpec runs every symbol x timeframe every ten minutes.
const DefaultSpec = "0 */10 * * * *"

// ErrBatchInProgress is returned when a batch is requested while one runs.
var ErrBatchInProgress = errors.New("batch already in progress")

// Runner is the level service as seen by the scheduler.
type Runner interface {
	CalculateBatch(ctx context.Context, symbols []model.Symbol, timeframes []model.Timeframe) (*model.BatchSummary, error)
	Latest(ctx context.Context, sym model.Symbol, timeframes []model.Timeframe) ([]*model.SRResult, error)
	Stats(ctx context.Context) (recorder.Stats, error)
	Now() time.Time
}

// Sender delivers chat messages. *notifier.TelegramNotifier implements it.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Scheduler runs the batch on a cron schedule and on demand. At most one
// batch runs at a time.
type Scheduler struct {
	Cron       *cron.Cron
	Runner     Runner
	Notifier   Sender // nil disables chat notifications
	Symbols    []model.Symbol
	Timeframes []model.Timeframe
	Ctx        context.Context

	running atomic.Bool
	last    atomic.Pointer[model.BatchSummary]
	log     *logger.Logger
}

// NewScheduler creates a new Scheduler. sender may be nil.
func NewScheduler(ctx context.Context, runner Runner, sender Sender, symbols []model.Symbol, timeframes []model.Timeframe) *Scheduler {
	log := logger.Get().With("component", "scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Runner:     runner,
		Notifier:   sender,
		Symbols:    symbols,
		Timeframes: timeframes,
		Ctx:        ctx,
		log:        log,
	}
}

// Register schedules the batch with a seconds-enabled cron spec.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.batchTask); err != nil {
		return fmt.Errorf("register batch task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Infow("scheduler started", "symbols", s.Symbols, "timeframes", s.Timeframes)
}

// Stop stops the cron scheduler and waits for a running batch to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Infow("scheduler stopped")
}

// Running reports whether a batch is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

// LastSummary returns the summary of the last completed batch, or nil.
func (s *Scheduler) LastSummary() *model.BatchSummary { return s.last.Load() }

// RunNow executes the batch immediately. It returns ErrBatchInProgress
// without running when another batch holds the run token.
func (s *Scheduler) RunNow(ctx context.Context) (*model.BatchSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RecordSkippedBatch()
		s.log.Warnw("batch skipped, previous run still in progress")
		return nil, ErrBatchInProgress
	}
	defer s.running.Store(false)

	summary, err := s.Runner.CalculateBatch(ctx, s.Symbols, s.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("run batch: %w", err)
	}
	s.last.Store(summary)
	if !summary.OK() {
		s.trySend(ctx, notifier.FormatBatchSummary(summary))
	}
	return summary, nil
}

func (s *Scheduler) batchTask() {
	if _, err := s.RunNow(s.Ctx); err != nil && !errors.Is(err, ErrBatchInProgress) {
		s.log.Errorw("scheduled batch failed", "error", err)
	}
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch strings.ToLower(fields[0]) {
	case "/levels":
		if len(fields) < 2 {
			return "usage: /levels SYMBOL"
		}
		sym, err := model.ParseSymbol(fields[1])
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		results, err := s.Runner.Latest(ctx, sym, s.Timeframes)
		if err != nil {
			s.log.Errorw("load latest levels", "symbol", sym, "error", err)
			return "❌ failed to load levels"
		}
		return notifier.FormatSymbolLevels(sym, s.Timeframes, results, s.Runner.Now())
	case "/run":
		summary, err := s.RunNow(ctx)
		if errors.Is(err, ErrBatchInProgress) {
			return "⏳ a batch is already running"
		}
		if err != nil {
			return fmt.Sprintf("❌ %v", err)
		}
		if summary.OK() {
			return notifier.FormatBatchSummary(summary)
		}
		// RunNow already sent the failure summary.
		return ""
	case "/status":
		st, err := s.Runner.Stats(ctx)
		if err != nil {
			s.log.Errorw("load store stats", "error", err)
			return "❌ failed to load store status"
		}
		reply := notifier.FormatStats(st, s.Runner.Now())
		if s.Running() {
			reply += "\n⏳ batch in progress"
		}
		return reply
	default:
		return helpText
	}
}

const helpText = "Commands:\n• /levels SYMBOL\n• /run\n• /status"

func (s *Scheduler) trySend(ctx context.Context, msg string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, msg, 3); err != nil {
		s.log.Errorw("send notification failed", "error", err)
	}
}

// cronLogger adapts cron's logger onto zap.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
