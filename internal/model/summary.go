package model

import "time"

// Job identifies one calculation in a batch.
type Job struct {
	Symbol    Symbol    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// JobFailure records why a job in a batch failed.
type JobFailure struct {
	Symbol    Symbol    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// BatchSummary reports every requested job exactly once, as success or failure.
type BatchSummary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Successes []Job         `json:"successes"`
	Failures  []JobFailure  `json:"failures"`
}

// Total returns the number of jobs in the batch.
func (s *BatchSummary) Total() int { return len(s.Successes) + len(s.Failures) }

// OK reports whether every job succeeded.
func (s *BatchSummary) OK() bool { return len(s.Failures) == 0 }
