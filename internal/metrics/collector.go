package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/co2sim-core/pkg/models"
	"github.com/GoSim-25-26J-441/co2sim-core/pkg/utils"
)

// Collector collects time-series metrics of a search run
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	// metric name -> label key -> points
	timeSeries map[string]map[string][]*models.MetricPoint
}

// Summary is a snapshot of every metric of a run
type Summary struct {
	StartTime    time.Time                      `json:"start_time"`
	EndTime      time.Time                      `json:"end_time,omitempty"`
	Duration     time.Duration                  `json:"duration_ns"`
	Aggregations map[string]*models.Aggregation `json:"aggregations"`
	Last         map[string]float64             `json:"last"`
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime:  time.Now(),
		timeSeries: make(map[string]map[string][]*models.MetricPoint),
	}
}

// Start marks the start of metric collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of metric collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a metric value at a specific timestamp
func (c *Collector) Record(name string, value float64, timestamp time.Time, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	if c.timeSeries[name] == nil {
		c.timeSeries[name] = make(map[string][]*models.MetricPoint)
	}
	c.timeSeries[name][key] = append(c.timeSeries[name][key], &models.MetricPoint{
		Timestamp: timestamp,
		Name:      name,
		Value:     value,
		Labels:    copyLabels(labels),
	})
}

// RecordNow records a metric value at the current time
func (c *Collector) RecordNow(name string, value float64, labels map[string]string) {
	c.Record(name, value, time.Now(), labels)
}

// GetTimeSeries returns a copy of the points of a metric with exactly these labels
func (c *Collector) GetTimeSeries(name string, labels map[string]string) []*models.MetricPoint {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.timeSeries[name][labelKey(labels)]
	if points == nil {
		return nil
	}
	result := make([]*models.MetricPoint, len(points))
	for i, p := range points {
		cp := *p
		cp.Labels = copyLabels(p.Labels)
		result[i] = &cp
	}
	return result
}

// GetAggregation aggregates a metric with exactly these labels
func (c *Collector) GetAggregation(name string, labels map[string]string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return calculateAggregation(values(c.timeSeries[name][labelKey(labels)]))
}

// GetTotalAggregation aggregates a metric across all label combinations
func (c *Collector) GetTotalAggregation(name string) *models.Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return calculateAggregation(c.allValuesUnsafe(name))
}

// GetSummary returns aggregations and latest values of every metric
func (c *Collector) GetSummary() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	end := c.endTime
	if end.IsZero() {
		end = time.Now()
	}
	summary := &Summary{
		StartTime:    c.startTime,
		EndTime:      c.endTime,
		Duration:     end.Sub(c.startTime),
		Aggregations: make(map[string]*models.Aggregation, len(c.timeSeries)),
		Last:         make(map[string]float64, len(c.timeSeries)),
	}
	for name := range c.timeSeries {
		if agg := calculateAggregation(c.allValuesUnsafe(name)); agg != nil {
			summary.Aggregations[name] = agg
		}
		if v, ok := c.lastUnsafe(name); ok {
			summary.Last[name] = v
		}
	}
	return summary
}

// GetMetricNames returns all metric names that have been collected, sorted
func (c *Collector) GetMetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.timeSeries))
	for name := range c.timeSeries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Collector) allValuesUnsafe(name string) []float64 {
	var out []float64
	for _, points := range c.timeSeries[name] {
		out = append(out, values(points)...)
	}
	return out
}

func (c *Collector) lastUnsafe(name string) (float64, bool) {
	var last *models.MetricPoint
	for _, points := range c.timeSeries[name] {
		if n := len(points); n > 0 && (last == nil || !points[n-1].Timestamp.Before(last.Timestamp)) {
			last = points[n-1]
		}
	}
	if last == nil {
		return 0, false
	}
	return last.Value, true
}

func values(points []*models.MetricPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

// labelKey creates a key from labels for map lookup
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// calculateAggregation returns nil for no values
func calculateAggregation(vals []float64) *models.Aggregation {
	if len(vals) == 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	sum := utils.Sum(sorted)
	return &models.Aggregation{
		Count: int64(len(sorted)),
		Sum:   sum,
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / float64(len(sorted)),
		P50:   utils.P50(sorted),
		P95:   utils.P95(sorted),
	}
}
