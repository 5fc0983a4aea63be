package calculator

import "sort"

// Cluster is a group of nearby prices collapsed to their mean.
type Cluster struct {
	Price float64
	Count int
}

// ClusterPrices sorts prices ascending and grows a cluster while each next
// price stays within tol of the running cluster average.
func ClusterPrices(prices []float64, tol float64) []Cluster {
	if len(prices) == 0 {
		return nil
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	var out []Cluster
	sum, count := sorted[0], 1
	for _, p := range sorted[1:] {
		avg := sum / float64(count)
		if within(p, avg, avg, tol) {
			sum += p
			count++
			continue
		}
		out = append(out, Cluster{Price: avg, Count: count})
		sum, count = p, 1
	}
	return append(out, Cluster{Price: sum / float64(count), Count: count})
}
