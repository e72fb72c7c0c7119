// internal/metrics/types.go
package metrics

import (
	"math"
	"time"
)

// ModelMetrics is the aggregated record for a single model.
type ModelMetrics struct {
	ModelName      string                 `json:"model_name"`
	LastUpdatedUTC time.Time              `json:"last_updated_utc"`
	Chat           RunningAggregatedStats `json:"chat"`
	EmbedMillis    RunningStat            `json:"embed_ms"`
	Errors         int64                  `json:"errors"`
	// PerformanceBuckets split chat stats by prompt size.
	PerformanceBuckets []PerformanceBucket `json:"performance_buckets,omitempty"`
}

// PerformanceBucket holds aggregated stats for one prompt-size range.
type PerformanceBucket struct {
	Dimension string                 `json:"dimension"`
	Bucket    string                 `json:"bucket"`
	Stats     RunningAggregatedStats `json:"stats"`
}

// RunningAggregatedStats stores the running values for chat completions.
type RunningAggregatedStats struct {
	TotalRequests int64 `json:"total_requests"`

	TTFTMillis          RunningStat `json:"ttft_ms"`
	InputTokens         RunningStat `json:"input_tokens"`
	OutputTokens        RunningStat `json:"output_tokens"`
	TotalDurationMillis RunningStat `json:"total_duration_ms"`
}

// RunningStat is an online mean/variance accumulator (Welford).
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Add folds value into the statistic.
func (rs *RunningStat) Add(value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min, rs.Max = value, value
	} else {
		rs.Min = math.Min(rs.Min, value)
		rs.Max = math.Max(rs.Max, value)
	}
	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	rs.M2 += delta * (value - rs.Mean)
}

// StdDev returns the sample standard deviation, or 0 below two samples.
func (rs RunningStat) StdDev() float64 {
	if rs.Count < 2 {
		return 0
	}
	return math.Sqrt(rs.M2 / float64(rs.Count-1))
}
