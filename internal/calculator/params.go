package calculator

import "LevelSentinel/internal/model"

// VolumeProfileParams configures the volume-by-price histogram.
type VolumeProfileParams struct {
	Bins           map[model.Timeframe]int
	MinVolumeRatio float64 // HVN threshold as a multiple of the mean bin volume
	TopNodes       int
	RatioScale     float64 // strength points per unit of volume/average ratio
}

// DefaultVolumeProfileParams returns the production defaults.
func DefaultVolumeProfileParams() VolumeProfileParams {
	return VolumeProfileParams{
		Bins: map[model.Timeframe]int{
			model.TF15m: 15,
			model.TF1h:  20,
			model.TF4h:  25,
		},
		MinVolumeRatio: 1.5,
		TopNodes:       5,
		RatioScale:     10.0 / 3.0,
	}
}

// BinsFor returns the bin count for tf, 20 when tf is not configured.
func (p VolumeProfileParams) BinsFor(tf model.Timeframe) int {
	if n, ok := p.Bins[tf]; ok && n > 0 {
		return n
	}
	return 20
}

// PivotParams configures swing detection and clustering.
type PivotParams struct {
	Left             int
	Right            int
	ClusterTolerance float64
	TouchTolerance   float64
	MinTouches       int
}

// DefaultPivotParams returns the production defaults.
func DefaultPivotParams() PivotParams {
	return PivotParams{
		Left:             5,
		Right:            5,
		ClusterTolerance: 0.005,
		TouchTolerance:   0.002,
		MinTouches:       2,
	}
}

// PriceActionParams configures rejection wick and candle pattern detection.
type PriceActionParams struct {
	WickRatio      float64 // wick share of the candle range that counts as rejection
	DojiBodyRatio  float64 // bodies below this share of the range are skipped
	WickTolerance  float64
	MinOccurrences int

	PatternWickRatio     float64 // hammer/shooting star: long wick vs body
	PatternOppositeRatio float64 // hammer/shooting star: short wick vs body
	EngulfingBodyRatio   float64

	HammerStrength       int
	ShootingStarStrength int
	EngulfingStrength    int
}

// DefaultPriceActionParams returns the production defaults.
func DefaultPriceActionParams() PriceActionParams {
	return PriceActionParams{
		WickRatio:      0.6,
		DojiBodyRatio:  0.1,
		WickTolerance:  0.003,
		MinOccurrences: 2,

		PatternWickRatio:     2,
		PatternOppositeRatio: 0.3,
		EngulfingBodyRatio:   1.5,

		HammerStrength:       5,
		ShootingStarStrength: 5,
		EngulfingStrength:    6,
	}
}
