package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSymbol indicates a symbol outside SupportedSymbols.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidTimeframe indicates a timeframe outside SupportedTimeframes.
	ErrInvalidTimeframe = errors.New("invalid timeframe")

	// ErrUnsupportedPair indicates the candle source cannot serve the pair/timeframe.
	ErrUnsupportedPair = errors.New("unsupported trading pair")

	// ErrEmptyBatch indicates a batch with no symbols or no timeframes.
	ErrEmptyBatch = errors.New("empty batch")
)

// Error kinds reported in batch summaries and metrics.
const (
	KindNoData      = "no_data"
	KindPersistence = "persistence"
	KindComputation = "computation"
	KindUnknown     = "unknown"
)

// NoDataError indicates the candle source returned nothing usable for a job.
type NoDataError struct {
	Symbol    Symbol
	Timeframe Timeframe
	Err       error
}

func (e *NoDataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("no candles for %s %s: %v", e.Symbol, e.Timeframe, e.Err)
	}
	return fmt.Sprintf("no candles returned for %s %s", e.Symbol, e.Timeframe)
}

func (e *NoDataError) Unwrap() error { return e.Err }

// PersistenceError indicates the level store rejected a write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ComputationError indicates an invariant violation in the input or the pipeline.
type ComputationError struct {
	Symbol    Symbol
	Timeframe Timeframe
	Index     int // offending candle index, -1 when not applicable
	Reason    string
}

func (e *ComputationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("computation %s %s: candle %d: %s", e.Symbol, e.Timeframe, e.Index, e.Reason)
	}
	return fmt.Sprintf("computation %s %s: %s", e.Symbol, e.Timeframe, e.Reason)
}

// NewPersistenceError wraps err, returning nil for a nil err.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// ErrorKind classifies err for summaries and metrics.
func ErrorKind(err error) string {
	var (
		noData *NoDataError
		pe     *PersistenceError
		ce     *ComputationError
	)
	switch {
	case errors.As(err, &noData):
		return KindNoData
	case errors.As(err, &pe):
		return KindPersistence
	case errors.As(err, &ce):
		return KindComputation
	default:
		return KindUnknown
	}
}
