package observability

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ChannelCollector exposes propagation channel metrics. It satisfies
// propagation.MetricsRecorder.
type ChannelCollector struct {
	gatherer prometheus.Gatherer

	CellSolves        *prometheus.CounterVec
	CellSolveDuration *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	CacheHitRatio     prometheus.Gauge
	PropagateDuration *prometheus.HistogramVec

	hits, lookups atomic.Int64
}

// NewChannelCollector registers channel metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewChannelCollector(reg prometheus.Registerer) (*ChannelCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	solves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_cell_solves_total",
		Help: "Grid cells resolved while building channels, labeled by model and outcome.",
	}, []string{"model", "outcome"}), "channel_cell_solves_total")
	if err != nil {
		return nil, err
	}

	solveDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channel_cell_solve_duration_seconds",
		Help:    "Time spent resolving one grid cell, including cache lookups.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
	}, []string{"model"}), "channel_cell_solve_duration_seconds")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_cache_lookups_total",
		Help: "Impulse response cache lookups, labeled by result.",
	}, []string{"result"}), "channel_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	ratio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "channel_cache_hit_ratio",
		Help: "Hit ratio of the impulse response cache since process start.",
	}), "channel_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	propagate, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channel_propagate_duration_seconds",
		Help:    "Duration of Propagate calls.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"model"}), "channel_propagate_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &ChannelCollector{
		gatherer:          gatherer,
		CellSolves:        solves,
		CellSolveDuration: solveDuration,
		CacheLookups:      lookups,
		CacheHitRatio:     ratio,
		PropagateDuration: propagate,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ChannelCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveSolve records one resolved grid cell.
func (c *ChannelCollector) ObserveSolve(model, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.CellSolves != nil {
		c.CellSolves.WithLabelValues(model, outcome).Inc()
	}
	if c.CellSolveDuration != nil {
		c.CellSolveDuration.WithLabelValues(model).Observe(d.Seconds())
	}
}

// ObserveCacheLookup counts a cache hit or miss and refreshes the ratio.
func (c *ChannelCollector) ObserveCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
		c.hits.Add(1)
	}
	total := c.lookups.Add(1)
	if c.CacheLookups != nil {
		c.CacheLookups.WithLabelValues(result).Inc()
	}
	if c.CacheHitRatio != nil {
		c.CacheHitRatio.Set(float64(c.hits.Load()) / float64(total))
	}
}

// ObservePropagate records the duration of one Propagate call.
func (c *ChannelCollector) ObservePropagate(model string, d time.Duration) {
	if c == nil || c.PropagateDuration == nil {
		return
	}
	c.PropagateDuration.WithLabelValues(model).Observe(d.Seconds())
}
