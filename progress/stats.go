package progress

import (
	"math"
	"slices"

	"github.com/arloliu/framepipe/types"
)

// Percentile returns the p-th percentile (0..100) of an ascending sample,
// interpolating linearly between the two closest ranks. An empty sample
// yields 0.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))

	k := float64(n-1) * p / 100
	f := int(math.Floor(k))
	c := min(f+1, n-1)

	return sorted[f] + (k-float64(f))*(sorted[c]-sorted[f])
}

// Summarize computes latency statistics over an unordered sample.
func Summarize(samples []float64) types.LatencyStats {
	if len(samples) == 0 {
		return types.LatencyStats{}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	return types.LatencyStats{
		Count: len(sorted),
		Avg:   sum / float64(len(sorted)),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   Percentile(sorted, 50),
		P95:   Percentile(sorted, 95),
		P99:   Percentile(sorted, 99),
	}
}
