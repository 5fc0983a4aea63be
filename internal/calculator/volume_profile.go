package calculator

import (
	"math"
	"sort"

	"LevelSentinel/internal/model"
)

// VolumeNode is a high-volume price bin.
type VolumeNode struct {
	Price    float64 // bin center
	Volume   float64
	Ratio    float64 // volume / mean bin volume
	Strength int
}

// VolumeProfile bins bar volume by midpoint price and returns the
// high-volume nodes, largest volume first.
func VolumeProfile(bars []model.OHLCV, tf model.Timeframe, p VolumeProfileParams) []VolumeNode {
	if len(bars) == 0 {
		return nil
	}
	bins := p.BinsFor(tf)
	high, low, err := PriceRange(bars)
	if err != nil {
		return nil
	}
	priceRange := high - low
	if priceRange <= 0 {
		return nil
	}

	volumes := make([]float64, bins)
	for _, b := range bars {
		idx := int(math.Floor((b.Mid() - low) * float64(bins) / priceRange))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		volumes[idx] += b.Volume
	}

	var total float64
	for _, v := range volumes {
		total += v
	}
	avg := total / float64(bins)
	if avg <= 0 {
		return nil
	}

	threshold := avg * p.MinVolumeRatio
	var nodes []VolumeNode
	for i, v := range volumes {
		if v <= threshold {
			continue
		}
		ratio := v / avg
		nodes = append(nodes, VolumeNode{
			Price:    low + (float64(i)+0.5)*priceRange/float64(bins),
			Volume:   v,
			Ratio:    ratio,
			Strength: roundStrength(ratio * p.RatioScale),
		})
	}

	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Volume > nodes[j].Volume })
	if p.TopNodes > 0 && len(nodes) > p.TopNodes {
		nodes = nodes[:p.TopNodes]
	}
	return nodes
}
