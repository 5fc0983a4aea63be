package calculator

import (
	"math"
	"sort"

	"LevelSentinel/internal/model"
)

// RejectionType tells which side of the market a price action level sits on.
type RejectionType string

const (
	RejectionUpper RejectionType = "upper" // resistance evidence
	RejectionLower RejectionType = "lower" // support evidence
)

// Candle pattern names.
const (
	PatternWickCluster      = "rejection_wick"
	PatternHammer           = "hammer"
	PatternShootingStar     = "shooting_star"
	PatternBullishEngulfing = "bullish_engulfing"
	PatternBearishEngulfing = "bearish_engulfing"
)

// RejectionLevel is a price where the market was pushed back.
type RejectionLevel struct {
	Price       float64
	Type        RejectionType
	Pattern     string
	Occurrences int
	Strength    int
}

type candleShape struct {
	body, upperWick, lowerWick, rng float64
	bullish, bearish              bool
}

func shape(b model.OHLCV) candleShape {
	return candleShape{
		body:      math.Abs(b.Close - b.Open),
		upperWick: b.High - math.Max(b.Open, b.Close),
		lowerWick: math.Min(b.Open, b.Close) - b.Low,
		rng:       b.High - b.Low,
		bullish:   b.Close > b.Open,
		bearish:   b.Close < b.Open,
	}
}

// RejectionWicks clusters the extremes of long-wick candles and keeps the
// clusters seen at least MinOccurrences times, strongest first.
func RejectionWicks(bars []model.OHLCV, p PriceActionParams) []RejectionLevel {
	var upper, lower []float64
	for _, b := range bars {
		s := shape(b)
		if s.rng <= 0 || s.body < s.rng*p.DojiBodyRatio {
			continue
		}
		if s.upperWick/s.rng >= p.WickRatio {
			upper = append(upper, b.High)
		}
		if s.lowerWick/s.rng >= p.WickRatio {
			lower = append(lower, b.Low)
		}
	}

	var levels []RejectionLevel
	collect := func(prices []float64, typ RejectionType) {
		for _, c := range ClusterPrices(prices, p.WickTolerance) {
			if c.Count < p.MinOccurrences {
				continue
			}
			levels = append(levels, RejectionLevel{
				Price:       c.Price,
				Type:        typ,
				Pattern:     PatternWickCluster,
				Occurrences: c.Count,
				Strength:    rejectionStrength(c.Count),
			})
		}
	}
	collect(upper, RejectionUpper)
	collect(lower, RejectionLower)

	sort.SliceStable(levels, func(i, j int) bool { return levels[i].Strength > levels[j].Strength })
	return levels
}

// rejectionStrength: 2 rejections = 4, 4 = 7, 6+ = 10.
func rejectionStrength(occurrences int) int {
	return roundStrength(float64(occurrences)*1.5 + 1)
}

// CandlePatterns scans consecutive pairs for hammer, shooting star and
// engulfing patterns. Each hit is a single unclustered signal.
func CandlePatterns(bars []model.OHLCV, p PriceActionParams) []RejectionLevel {
	var levels []RejectionLevel
	emit := func(price float64, typ RejectionType, pattern string, strength int) {
		levels = append(levels, RejectionLevel{
			Price:       price,
			Type:        typ,
			Pattern:     pattern,
			Occurrences: 1,
			Strength:    ClampStrength(strength),
		})
	}

	for i := 1; i < len(bars); i++ {
		cur, prev := bars[i], bars[i-1]
		c, pr := shape(cur), shape(prev)

		if c.lowerWick > c.body*p.PatternWickRatio && c.upperWick < c.body*p.PatternOppositeRatio && c.bullish {
			emit(cur.Low, RejectionLower, PatternHammer, p.HammerStrength)
		}
		if c.upperWick > c.body*p.PatternWickRatio && c.lowerWick < c.body*p.PatternOppositeRatio && c.bearish {
			emit(cur.High, RejectionUpper, PatternShootingStar, p.ShootingStarStrength)
		}

		if pr.body > 0 && c.body > pr.body*p.EngulfingBodyRatio {
			switch {
			case pr.bearish && c.bullish:
				emit(prev.Low, RejectionLower, PatternBullishEngulfing, p.EngulfingStrength)
			case pr.bullish && c.bearish:
				emit(prev.High, RejectionUpper, PatternBearishEngulfing, p.EngulfingStrength)
			}
		}
	}
	return levels
}

// PriceActionLevels returns rejection wick clusters followed by pattern hits.
func PriceActionLevels(bars []model.OHLCV, p PriceActionParams) []RejectionLevel {
	return append(RejectionWicks(bars, p), CandlePatterns(bars, p)...)
}
