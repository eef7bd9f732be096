// Package aggregate computes summary statistics over a metric history.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/elaiviaien/smaug/internal/metric"
)

// Result is the summary of a run of numeric entries.
type Result struct {
	Name       string
	Count      int64
	Sum        float64
	Avg        float64
	Min        float64
	Max        float64
	FirstEpoch int64
	LastEpoch  int64

	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64
}

// SetPercentiles sets all percentile fields.
func (r *Result) SetPercentiles(p50, p90, p95, p99 float64) {
	r.P50 = &p50
	r.P90 = &p90
	r.P95 = &p95
	r.P99 = &p99
}

// HasPercentiles reports whether percentile fields are set.
func (r Result) HasPercentiles() bool {
	return r.P50 != nil
}

// StreamingAggregate maintains running statistics for one metric.
// It supports optional percentile calculation using DDSketch.
type StreamingAggregate struct {
	mu sync.Mutex

	name string

	// Running statistics
	count      int64
	sum        float64
	min        float64
	max        float64
	firstEpoch int64
	lastEpoch  int64

	// DDSketch for percentiles (nil if disabled)
	sketch *ddsketch.DDSketch
}

// DefaultAccuracy is the relative accuracy of percentile estimates.
const DefaultAccuracy = 0.01

// New creates a new StreamingAggregate for the named metric.
func New(name string, enablePercentile bool) *StreamingAggregate {
	agg := &StreamingAggregate{
		name: name,
		min:  math.MaxFloat64,
		max:  -math.MaxFloat64,
	}
	if enablePercentile {
		if sketch, err := ddsketch.NewDefaultDDSketch(DefaultAccuracy); err == nil {
			agg.sketch = sketch
		}
	}
	return agg
}

// Add adds a value to the aggregate.
func (a *StreamingAggregate) Add(value float64, epoch int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.count == 1 || epoch < a.firstEpoch {
		a.firstEpoch = epoch
	}
	if epoch > a.lastEpoch {
		a.lastEpoch = epoch
	}

	if a.sketch != nil {
		a.sketch.Add(value)
	}
}

// AddMetric adds a metric's value. Text values are ignored.
func (a *StreamingAggregate) AddMetric(m metric.Metric) bool {
	v, ok := m.Value.Float()
	if !ok {
		return false
	}
	a.Add(v, m.Epoch)
	return true
}

// Result returns the aggregation result.
func (a *StreamingAggregate) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := Result{
		Name:       a.name,
		Count:      a.count,
		Sum:        a.sum,
		FirstEpoch: a.firstEpoch,
		LastEpoch:  a.lastEpoch,
	}

	if a.count > 0 {
		result.Avg = a.sum / float64(a.count)
		result.Min = a.min
		result.Max = a.max
	}

	if a.sketch != nil && a.count > 0 {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p90, _ := a.sketch.GetValueAtQuantile(0.90)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		p99, _ := a.sketch.GetValueAtQuantile(0.99)
		result.SetPercentiles(p50, p90, p95, p99)
	}

	return result
}

// =============================================================================
// One-shot helpers
// =============================================================================

// Summarize aggregates entries with percentiles enabled.
func Summarize(name string, entries []metric.Metric) Result {
	agg := New(name, true)
	for _, m := range entries {
		agg.AddMetric(m)
	}
	return agg.Result()
}

// Average returns the mean of the numeric entries rounded to three
// decimals, or 0 when there are none.
func Average(entries []metric.Metric) float64 {
	var (
		sum   float64
		count int
	)
	for _, m := range entries {
		if v, ok := m.Value.Float(); ok {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return metric.Round(sum/float64(count), 3)
}
