package matching

import (
	"math"
	"sort"
)

// Stats is the engine's cumulative counters plus rolling per-call latency
// percentiles (spec.md §4.4).
type Stats struct {
	OrdersSubmitted uint64
	OrdersCanceled  uint64
	TradesExecuted  uint64
	RejectedOrders  uint64
	ExpiredOrders   uint64
	AvgLatencyMs    float64
	P95LatencyMs    float64
	LatencySamples  int
}

// latencyPercentiles computes the mean and 95th percentile of samples. An
// empty window reports zero for both rather than dividing by zero.
func latencyPercentiles(samples []float64) (avg, p95 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	avg = sum / float64(len(samples))

	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return avg, sorted[idx]
}
