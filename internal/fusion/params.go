package fusion

import (
	"time"

	"LevelSentinel/internal/calculator"
	"LevelSentinel/internal/model"
)

// Weights scale each method's raw 1~10 strength before combination.
type Weights struct {
	VolumeProfile float64
	PivotPoints   float64
	PriceAction   float64
}

// Params configures fusion and result filtering.
type Params struct {
	Weights             Weights
	MergeTolerance      float64
	MinStrength         int
	MaxSupportLevels    int
	MaxResistanceLevels int
}

// DefaultParams returns the production defaults: weights 0.5/0.3/0.2 so the
// methods can contribute at most 5, 3 and 2 points.
func DefaultParams() Params {
	return Params{
		Weights: Weights{
			VolumeProfile: 0.5,
			PivotPoints:   0.3,
			PriceAction:   0.2,
		},
		MergeTolerance:      0.004,
		MinStrength:         1,
		MaxSupportLevels:    2,
		MaxResistanceLevels: 2,
	}
}

// DefaultValidity is how long a result stays current, about four candles.
func DefaultValidity() map[model.Timeframe]time.Duration {
	return map[model.Timeframe]time.Duration{
		model.TF15m: 60 * time.Minute,
		model.TF1h:  240 * time.Minute,
		model.TF4h:  960 * time.Minute,
	}
}

// Candidates are the raw per-method levels for one series.
type Candidates struct {
	Volume      []calculator.VolumeNode
	Pivots      []calculator.PivotLevel
	PriceAction []calculator.RejectionLevel
}
