// Package metrics provides metrics collection for the vulngraph engine.
// It includes an interface for metric collection and a Prometheus-compatible
// implementation.
package metrics

import (
	"net/http"
	"sync"
)

// =============================================================================
// Metrics Interface
// =============================================================================

// Collector is the interface for collecting and reporting metrics.
// Implement this interface to use custom metrics backends.
type Collector interface {
	// Counter operations
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	// Histogram operations
	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for the metrics endpoint
	Handler() http.Handler

	// Reset clears all metrics (for testing)
	Reset()
}

// =============================================================================
// Metric Types
// =============================================================================

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"` // For histograms
}

// =============================================================================
// Default Metrics - Standard metrics for the vulngraph engine
// =============================================================================

var (
	// Resolver metrics
	ResolverPackagesTotal = MetricDefinition{
		Name:   "vulngraph_resolver_packages_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of package identity resolutions",
		Labels: []string{"status"}, // created | matched
	}

	// Resolution cache metrics
	CacheLookupsTotal = MetricDefinition{
		Name:   "vulngraph_cache_lookups_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of resolution cache lookups",
		Labels: []string{"result"}, // hit | miss
	}

	// Relationship metrics
	RelationshipsTotal = MetricDefinition{
		Name:   "vulngraph_relationships_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of SBOM relationship ingest attempts",
		Labels: []string{"status"}, // ingested | skipped
	}
	DependencyEdgesTotal = MetricDefinition{
		Name:   "vulngraph_dependency_edges_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of dependency edges ingested",
		Labels: []string{},
	}

	// Closure metrics
	ClosureDuration = MetricDefinition{
		Name:    "vulngraph_closure_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of transitive closure computations in seconds",
		Labels:  []string{"graph"}, // dependency | sbom
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
)

// =============================================================================
// NopCollector - No-operation implementation
// =============================================================================

// NopCollector is a no-op metrics collector that discards all metrics.
// Use this when metrics are not needed.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }
func (c *NopCollector) Reset()                                                        {}

// =============================================================================
// InMemoryCollector - Simple in-memory implementation for testing
// =============================================================================

// InMemoryCollector stores metrics in memory for testing purposes.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	key := name
	for i := 0; i < len(labels); i += 2 {
		if i+1 < len(labels) {
			key += "," + labels[i] + "=" + labels[i+1]
		}
	}
	return key
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// CounterValue returns the current value of a counter (for tests).
func (c *InMemoryCollector) CounterValue(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// HistogramCount returns the number of observations recorded (for tests).
func (c *InMemoryCollector) HistogramCount(name string, labels ...string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.histograms[c.key(name, labels)])
}
