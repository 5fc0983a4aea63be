package fusion

import (
	"math"
	"sort"

	"LevelSentinel/internal/calculator"
	"LevelSentinel/internal/model"
)

// Levels is the fused outcome split around the current price, closest first.
type Levels struct {
	Supports    []model.Level
	Resistances []model.Level
}

// Combine weights every candidate and folds it into the first existing level
// within the merge tolerance, or appends it as a new level.
func Combine(c Candidates, p Params) []model.Level {
	var fused []model.Level
	add := func(price float64, raw int, weight float64, src model.Source) {
		weighted := int(math.Round(float64(raw) * weight))
		for i := range fused {
			if near(fused[i].Price, price, p.MergeTolerance) {
				fused[i].Strength = min(calculator.MaxStrength, fused[i].Strength+weighted)
				fused[i].Sources = model.UnionSources(fused[i].Sources, []model.Source{src})
				return
			}
		}
		fused = append(fused, model.Level{Price: price, Strength: weighted, Sources: []model.Source{src}})
	}

	for _, n := range c.Volume {
		add(n.Price, n.Strength, p.Weights.VolumeProfile, model.SourceVolumeProfile)
	}
	for _, pv := range c.Pivots {
		add(pv.Price, pv.Strength, p.Weights.PivotPoints, model.SourcePivotPoints)
	}
	for _, r := range c.PriceAction {
		add(r.Price, r.Strength, p.Weights.PriceAction, model.SourcePriceAction)
	}
	return fused
}

// Fuse combines, merges and filters candidates, then partitions them around
// currentPrice. An empty side falls back to the window's lowest low or
// highest high with strength 1.
func Fuse(c Candidates, currentPrice, lowest, highest float64, p Params) Levels {
	merged := Merge(Combine(c, p), p.MergeTolerance)

	var out Levels
	for _, l := range merged {
		if l.Strength < p.MinStrength {
			continue
		}
		l.Strength = calculator.ClampStrength(l.Strength)
		switch {
		case l.Price < currentPrice:
			out.Supports = append(out.Supports, l)
		case l.Price > currentPrice:
			out.Resistances = append(out.Resistances, l)
		}
	}

	sort.SliceStable(out.Supports, func(i, j int) bool { return out.Supports[i].Price > out.Supports[j].Price })
	sort.SliceStable(out.Resistances, func(i, j int) bool { return out.Resistances[i].Price < out.Resistances[j].Price })
	out.Supports = head(out.Supports, p.MaxSupportLevels)
	out.Resistances = head(out.Resistances, p.MaxResistanceLevels)

	if len(out.Supports) == 0 {
		out.Supports = []model.Level{{Price: lowest, Strength: calculator.MinStrength, Sources: []model.Source{model.SourceFallbackLowest}}}
	}
	if len(out.Resistances) == 0 {
		out.Resistances = []model.Level{{Price: highest, Strength: calculator.MinStrength, Sources: []model.Source{model.SourceFallbackHighest}}}
	}
	return out
}

func head(levels []model.Level, n int) []model.Level {
	if n >= 0 && len(levels) > n {
		return levels[:n]
	}
	return levels
}
