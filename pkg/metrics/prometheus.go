// Package metrics provides Prometheus-compatible metrics collection.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Prometheus Collector
// =============================================================================

// PrometheusCollector implements the Collector interface using Prometheus.
type PrometheusCollector struct {
	mu sync.RWMutex

	registry *prometheus.Registry

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec

	namespace string
	subsystem string
}

// PrometheusConfig configures the Prometheus collector.
type PrometheusConfig struct {
	// Namespace prefixes all metric names
	Namespace string

	// Subsystem prefixes metric names after namespace
	Subsystem string

	// Registry is the Prometheus registry to use (nil = new registry)
	Registry *prometheus.Registry

	// RegisterDefaultMetrics registers the standard vulngraph metrics
	RegisterDefaultMetrics bool
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(cfg *PrometheusConfig) *PrometheusCollector {
	if cfg == nil {
		cfg = &PrometheusConfig{}
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	c := &PrometheusCollector{
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		namespace:  cfg.Namespace,
		subsystem:  cfg.Subsystem,
	}

	if cfg.RegisterDefaultMetrics {
		c.registerDefaultMetrics()
	}

	return c
}

// registerDefaultMetrics registers the standard vulngraph metrics.
func (c *PrometheusCollector) registerDefaultMetrics() {
	_ = c.RegisterCounter(ResolverPackagesTotal)
	_ = c.RegisterCounter(CacheLookupsTotal)
	_ = c.RegisterCounter(RelationshipsTotal)
	_ = c.RegisterCounter(DependencyEdgesTotal)
	_ = c.RegisterHistogram(ClosureDuration)
}

// =============================================================================
// Registration Methods
// =============================================================================

// RegisterCounter registers a counter metric.
func (c *PrometheusCollector) RegisterCounter(def MetricDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.counters[def.Name]; exists {
		return nil // Already registered
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: c.subsystem,
			Name:      def.Name,
			Help:      def.Help,
		},
		def.Labels,
	)

	if err := c.registry.Register(counter); err != nil {
		return err
	}

	c.counters[def.Name] = counter
	return nil
}

// RegisterHistogram registers a histogram metric.
func (c *PrometheusCollector) RegisterHistogram(def MetricDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.histograms[def.Name]; exists {
		return nil // Already registered
	}

	buckets := def.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: c.namespace,
			Subsystem: c.subsystem,
			Name:      def.Name,
			Help:      def.Help,
			Buckets:   buckets,
		},
		def.Labels,
	)

	if err := c.registry.Register(histogram); err != nil {
		return err
	}

	c.histograms[def.Name] = histogram
	return nil
}

// =============================================================================
// Collector Interface Implementation
// =============================================================================

func (c *PrometheusCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *PrometheusCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()

	if !ok {
		return // Metric not registered
	}

	counter.WithLabelValues(labelsToValues(labels)...).Add(value)
}

func (c *PrometheusCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.RLock()
	histogram, ok := c.histograms[name]
	c.mu.RUnlock()

	if !ok {
		return // Metric not registered
	}

	histogram.WithLabelValues(labelsToValues(labels)...).Observe(value)
}

// Handler returns an HTTP handler serving the registry.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Reset clears all registered metric values.
func (c *PrometheusCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, counter := range c.counters {
		counter.Reset()
	}
	for _, histogram := range c.histograms {
		histogram.Reset()
	}
}

// labelsToValues extracts values from key-value label pairs.
// Labels come as [key1, value1, key2, value2, ...].
func labelsToValues(labels []string) []string {
	values := make([]string, 0, len(labels)/2)
	for i := 1; i < len(labels); i += 2 {
		values = append(values, labels[i])
	}
	return values
}
