package sbmark

import (
	"math"
	"math/rand"
	"time"

	"github.com/montanaflynn/stats"
)

// DefaultReservoirSize is the number of samples a trend keeps for percentiles.
const DefaultReservoirSize = 10000

// percentiles reported by every trend, next to avg, min and max
var trendPercentiles = []struct {
	name    string
	percent float64
}{
	{"p25", 25},
	{"p50", 50},
	{"p75", 75},
	{"p90", 90},
	{"p95", 95},
	{"p99", 99},
	{"p99.9", 99.9},
}

// Trend tracks a latency distribution in milliseconds. Count, sum, min and max
// are exact, percentiles come from a uniform reservoir sample (algorithm R)
// so memory stays constant at any request rate. Not safe for concurrent use.
type Trend struct {
	limit   int
	samples stats.Float64Data
	count   int64
	sum     float64
	min     float64
	max     float64
	rnd     *rand.Rand
}

func NewTrend(limit int) *Trend {
	if limit <= 0 {
		limit = DefaultReservoirSize
	}
	return &Trend{
		limit: limit,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *Trend) AddDuration(d time.Duration) {
	t.Add(float64(d.Nanoseconds()) / 1000000)
}

func (t *Trend) Add(v float64) {
	t.count++
	t.sum += v
	if t.count == 1 || v < t.min {
		t.min = v
	}
	if t.count == 1 || v > t.max {
		t.max = v
	}

	if len(t.samples) < t.limit {
		t.samples = append(t.samples, v)
		return
	}
	if i := t.rnd.Int63n(t.count); i < int64(t.limit) {
		t.samples[i] = v
	}
}

func (t *Trend) Count() int64 {
	return t.count
}

func (t *Trend) Avg() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}

// Percentile returns the p-th percentile (0 < p <= 100) of the sampled values.
func (t *Trend) Percentile(p float64) float64 {
	if len(t.samples) == 0 {
		return 0
	}
	v, err := stats.Percentile(t.samples, p)
	if err != nil || math.IsNaN(v) {
		// too few samples for this percentile, the smallest one is the best estimate
		v, _ = stats.Min(t.samples)
	}
	return v
}

// Stats returns count, avg, min, max and the percentiles keyed by name.
func (t *Trend) Stats() map[string]float64 {
	m := make(map[string]float64, len(trendPercentiles)+4)
	m["count"] = float64(t.count)
	m["avg"] = t.Avg()
	m["min"] = t.min
	m["max"] = t.max
	for _, p := range trendPercentiles {
		m[p.name] = t.Percentile(p.percent)
	}
	return m
}
