package fusion

import (
	"math"
	"sort"

	"LevelSentinel/internal/calculator"
	"LevelSentinel/internal/model"
)

// near reports whether a is within tol of ref, relative to ref.
func near(a, ref, tol float64) bool {
	if ref == 0 {
		return a == ref
	}
	return math.Abs(a-ref)/math.Abs(ref) < tol
}

// Merge walks levels in price order and collapses adjacent levels closer
// than tol into their strength-weighted average. Running Merge on its own
// output returns the same levels. Output is strongest first, then by price.
func Merge(levels []model.Level, tol float64) []model.Level {
	if len(levels) == 0 {
		return nil
	}
	sorted := make([]model.Level, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	merged := make([]model.Level, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if !near(next.Price, cur.Price, tol) {
			merged = append(merged, cur)
			cur = next
			continue
		}
		total := cur.Strength + next.Strength
		if total > 0 {
			cur.Price = (cur.Price*float64(cur.Strength) + next.Price*float64(next.Strength)) / float64(total)
		} else {
			cur.Price = (cur.Price + next.Price) / 2
		}
		cur.Strength = min(calculator.MaxStrength, int(math.Round(float64(total)/2)))
		cur.Sources = model.UnionSources(cur.Sources, next.Sources)
	}
	merged = append(merged, cur)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Strength != merged[j].Strength {
			return merged[i].Strength > merged[j].Strength
		}
		return merged[i].Price < merged[j].Price
	})
	return merged
}
