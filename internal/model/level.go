package model

import (
	"sort"
	"time"
)

// Source tags the detection method behind a level.
type Source string

const (
	SourceVolumeProfile   Source = "volume_profile"
	SourcePivotPoints     Source = "pivot_points"
	SourcePriceAction     Source = "price_action"
	SourceFallbackLowest  Source = "fallback:lowest"
	SourceFallbackHighest Source = "fallback:highest"
)

// sourceRank fixes the order sources are listed in.
var sourceRank = map[Source]int{
	SourceVolumeProfile:   0,
	SourcePivotPoints:     1,
	SourcePriceAction:     2,
	SourceFallbackLowest:  3,
	SourceFallbackHighest: 4,
}

// MethodHybrid is the calculation method recorded with every result.
const MethodHybrid = "hybrid"

// Level is a price with a 1~10 strength score and the methods that produced it.
type Level struct {
	Price    float64  `json:"price"`
	Strength int      `json:"strength"`
	Sources  []Source `json:"sources"`
}

// HasSource reports whether src contributed to the level.
func (l Level) HasSource(src Source) bool {
	for _, s := range l.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// UnionSources merges source sets, returning them in canonical order.
func UnionSources(a, b []Source) []Source {
	set := make(map[Source]bool, len(a)+len(b))
	out := make([]Source, 0, len(a)+len(b))
	for _, list := range [][]Source{a, b} {
		for _, s := range list {
			if !set[s] {
				set[s] = true
				out = append(out, s)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, okI := sourceRank[out[i]]
		rj, okJ := sourceRank[out[j]]
		if !okI || !okJ {
			return okI && !okJ
		}
		return ri < rj
	})
	return out
}

// SRResult is the support/resistance record for one symbol and timeframe.
// It is never mutated after creation; a newer calculation supersedes it.
type SRResult struct {
	ID           string    `json:"id"`
	Symbol       Symbol    `json:"symbol"`
	Timeframe    Timeframe `json:"timeframe"`
	CurrentPrice float64   `json:"current_price"`
	Support1     Level     `json:"support1"`
	Support2     *Level    `json:"support2,omitempty"`
	Resistance1  Level     `json:"resistance1"`
	Resistance2  *Level    `json:"resistance2,omitempty"`
	Method       string    `json:"method"`
	CalculatedAt time.Time `json:"calculated_at"`
	ValidUntil   time.Time `json:"valid_until"`
}

// ValidAt reports whether the result is still current at t.
func (r *SRResult) ValidAt(t time.Time) bool {
	return t.Before(r.ValidUntil)
}

// Supports returns the support levels, closest to price first.
func (r *SRResult) Supports() []Level {
	out := []Level{r.Support1}
	if r.Support2 != nil {
		out = append(out, *r.Support2)
	}
	return out
}

// Resistances returns the resistance levels, closest to price first.
func (r *SRResult) Resistances() []Level {
	out := []Level{r.Resistance1}
	if r.Resistance2 != nil {
		out = append(out, *r.Resistance2)
	}
	return out
}
