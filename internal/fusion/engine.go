package fusion

import (
	"time"

	"LevelSentinel/internal/calculator"
	"LevelSentinel/internal/model"
)

// Engine runs the three analyzers and fuses their output. It holds only
// configuration and is safe for concurrent use.
type Engine struct {
	VolumeProfile calculator.VolumeProfileParams
	Pivots        calculator.PivotParams
	PriceAction   calculator.PriceActionParams
	Fusion        Params
	Validity      map[model.Timeframe]time.Duration
}

// NewEngine returns an engine with the production defaults.
func NewEngine() *Engine {
	return &Engine{
		VolumeProfile: calculator.DefaultVolumeProfileParams(),
		Pivots:        calculator.DefaultPivotParams(),
		PriceAction:   calculator.DefaultPriceActionParams(),
		Fusion:        DefaultParams(),
		Validity:      DefaultValidity(),
	}
}

// ValidityFor returns the validity window for tf, four candles when unset.
func (e *Engine) ValidityFor(tf model.Timeframe) time.Duration {
	if d, ok := e.Validity[tf]; ok && d > 0 {
		return d
	}
	return 4 * tf.Duration()
}

// Analyze runs every detection method over bars.
func (e *Engine) Analyze(bars []model.OHLCV, tf model.Timeframe) Candidates {
	return Candidates{
		Volume:      calculator.VolumeProfile(bars, tf, e.VolumeProfile),
		Pivots:      calculator.PivotLevels(bars, e.Pivots),
		PriceAction: calculator.PriceActionLevels(bars, e.PriceAction),
	}
}

// Calculate builds the complete result for one series. The output depends
// only on the input and configuration, apart from the timestamps derived
// from now. The caller assigns the record ID.
func (e *Engine) Calculate(sym model.Symbol, tf model.Timeframe, bars []model.OHLCV, now time.Time) (*model.SRResult, error) {
	if len(bars) == 0 {
		return nil, &model.NoDataError{Symbol: sym, Timeframe: tf}
	}
	if err := calculator.ValidateSeries(sym, tf, bars); err != nil {
		return nil, err
	}
	highest, lowest, err := calculator.PriceRange(bars)
	if err != nil {
		return nil, &model.ComputationError{Symbol: sym, Timeframe: tf, Index: -1, Reason: err.Error()}
	}

	currentPrice := bars[len(bars)-1].Close
	levels := Fuse(e.Analyze(bars, tf), currentPrice, lowest, highest, e.Fusion)

	res := &model.SRResult{
		Symbol:       sym,
		Timeframe:    tf,
		CurrentPrice: currentPrice,
		Support1:     levels.Supports[0],
		Resistance1:  levels.Resistances[0],
		Method:       model.MethodHybrid,
		CalculatedAt: now,
		ValidUntil:   now.Add(e.ValidityFor(tf)),
	}
	if len(levels.Supports) > 1 {
		s2 := levels.Supports[1]
		res.Support2 = &s2
	}
	if len(levels.Resistances) > 1 {
		r2 := levels.Resistances[1]
		res.Resistance2 = &r2
	}
	return res, nil
}
