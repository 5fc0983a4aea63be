package calculator

import (
	"sort"

	"LevelSentinel/internal/model"
)

// PivotType tells whether a pivot level came from swing highs or swing lows.
type PivotType string

const (
	PivotHigh PivotType = "high"
	PivotLow  PivotType = "low"
)

// PivotLevel is a clustered swing level confirmed by repeated touches.
type PivotLevel struct {
	Price    float64
	Type     PivotType
	Touches  int
	Strength int
}

// PivotHighs returns the highs that strictly exceed every high within
// left bars before and right bars after.
func PivotHighs(bars []model.OHLCV, left, right int) []float64 {
	return pivots(bars, left, right, func(b model.OHLCV) float64 { return b.High }, func(cur, other float64) bool { return other >= cur })
}

// PivotLows returns the lows strictly below every low within the window.
func PivotLows(bars []model.OHLCV, left, right int) []float64 {
	return pivots(bars, left, right, func(b model.OHLCV) float64 { return b.Low }, func(cur, other float64) bool { return other <= cur })
}

func pivots(bars []model.OHLCV, left, right int, price func(model.OHLCV) float64, beaten func(cur, other float64) bool) []float64 {
	var out []float64
	for i := left; i < len(bars)-right; i++ {
		cur := price(bars[i])
		isPivot := true
		for j := i - left; j <= i+right && isPivot; j++ {
			if j != i && beaten(cur, price(bars[j])) {
				isPivot = false
			}
		}
		if isPivot {
			out = append(out, cur)
		}
	}
	return out
}

// CountTouches counts bars whose high or low lies within tol of level.
func CountTouches(bars []model.OHLCV, level, tol float64) int {
	touches := 0
	for _, b := range bars {
		if within(b.High, level, level, tol) || within(b.Low, level, level, tol) {
			touches++
		}
	}
	return touches
}

// PivotLevels clusters swing highs and lows and keeps clusters touched at
// least MinTouches times, strongest first.
func PivotLevels(bars []model.OHLCV, p PivotParams) []PivotLevel {
	var levels []PivotLevel
	collect := func(prices []float64, typ PivotType) {
		for _, c := range ClusterPrices(prices, p.ClusterTolerance) {
			touches := CountTouches(bars, c.Price, p.TouchTolerance)
			if touches < p.MinTouches {
				continue
			}
			levels = append(levels, PivotLevel{
				Price:    c.Price,
				Type:     typ,
				Touches:  touches,
				Strength: pivotStrength(touches),
			})
		}
	}
	collect(PivotHighs(bars, p.Left, p.Right), PivotHigh)
	collect(PivotLows(bars, p.Left, p.Right), PivotLow)

	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Strength > levels[j].Strength })
	return levels
}

// pivotStrength: 2 touches = 3, 5 touches = 5, 11+ touches = 10.
func pivotStrength(touches int) int {
	return roundStrength(float64(touches)*0.8 + 1)
}
