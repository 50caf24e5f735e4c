package metrics

import (
	"testing"
)

func TestInMemoryCollector_Counter(t *testing.T) {
	c := NewInMemoryCollector()

	c.CounterInc(ResolverPackagesTotal.Name, "status", "created")
	c.CounterInc(ResolverPackagesTotal.Name, "status", "created")
	c.CounterInc(ResolverPackagesTotal.Name, "status", "matched")

	if got := c.CounterValue(ResolverPackagesTotal.Name, "status", "created"); got != 2 {
		t.Errorf("created counter = %v, want 2", got)
	}
	if got := c.CounterValue(ResolverPackagesTotal.Name, "status", "matched"); got != 1 {
		t.Errorf("matched counter = %v, want 1", got)
	}

	c.Reset()
	if got := c.CounterValue(ResolverPackagesTotal.Name, "status", "created"); got != 0 {
		t.Errorf("counter after Reset = %v, want 0", got)
	}
}

func TestInMemoryCollector_Histogram(t *testing.T) {
	c := NewInMemoryCollector()

	c.HistogramObserve(ClosureDuration.Name, 0.05, "graph", "dependency")
	c.HistogramObserve(ClosureDuration.Name, 0.10, "graph", "dependency")

	if got := c.HistogramCount(ClosureDuration.Name, "graph", "dependency"); got != 2 {
		t.Errorf("histogram count = %v, want 2", got)
	}
}

func TestPrometheusCollector_UnregisteredMetricIgnored(t *testing.T) {
	c := NewPrometheusCollector(&PrometheusConfig{})

	// Must not panic for metrics that were never registered.
	c.CounterInc("vulngraph_never_registered_total", "status", "x")
	c.HistogramObserve("vulngraph_never_registered_seconds", 1.0)
}

func TestPrometheusCollector_DefaultMetrics(t *testing.T) {
	c := NewPrometheusCollector(&PrometheusConfig{RegisterDefaultMetrics: true})

	c.CounterInc(CacheLookupsTotal.Name, "result", "hit")
	c.CounterAdd(RelationshipsTotal.Name, 3, "status", "ingested")
	c.HistogramObserve(ClosureDuration.Name, 0.01, "graph", "sbom")
	c.Reset()

	if c.Handler() == nil {
		t.Errorf("Handler() returned nil")
	}
}

func TestLabelsToValues(t *testing.T) {
	values := labelsToValues([]string{"status", "created", "graph", "sbom"})
	if len(values) != 2 || values[0] != "created" || values[1] != "sbom" {
		t.Errorf("labelsToValues = %v", values)
	}
}
