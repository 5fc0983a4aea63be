package calculator

import (
	"fmt"
	"math"

	"LevelSentinel/internal/model"
)

// ValidateSeries checks the invariants every analyzer relies on: ascending
// timestamps, finite prices, low <= open,close <= high and non-negative volume.
func ValidateSeries(sym model.Symbol, tf model.Timeframe, bars []model.OHLCV) error {
	fail := func(i int, format string, args ...any) error {
		return &model.ComputationError{Symbol: sym, Timeframe: tf, Index: i, Reason: fmt.Sprintf(format, args...)}
	}
	for i, b := range bars {
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fail(i, "non-finite value")
			}
		}
		if b.Low > b.High {
			return fail(i, "low %.8g above high %.8g", b.Low, b.High)
		}
		if b.Open < b.Low || b.Open > b.High || b.Close < b.Low || b.Close > b.High {
			return fail(i, "open/close outside [low, high]")
		}
		if b.Low < 0 || b.Volume < 0 {
			return fail(i, "negative price or volume")
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return fail(i, "timestamp %s not after %s", b.Time.Format("2006-01-02T15:04:05Z07:00"),
				bars[i-1].Time.Format("2006-01-02T15:04:05Z07:00"))
		}
	}
	return nil
}
