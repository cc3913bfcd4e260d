package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metrics:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerCountsOutcomes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	require.NoError(t, metrics.Track("audit:record").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("audit:record").End(boom), boom)

	require.Equal(t, 1.0, counterValue(t, registry, "backoffice_jobs_total", map[string]string{"job": "audit:record", "status": "success"}))
	require.Equal(t, 1.0, counterValue(t, registry, "backoffice_jobs_total", map[string]string{"job": "audit:record", "status": "failure"}))
	require.Equal(t, 1.0, counterValue(t, registry, "backoffice_jobs_failures_total", map[string]string{"job": "audit:record"}))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	require.ErrorIs(t, metrics.Track("audit:cleanup").End(boom), boom)
}
