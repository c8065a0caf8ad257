package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/smartwatt/core/metrics"
	"github.com/kilianp07/smartwatt/core/model"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordOptimization(coremetrics.OptimizationEvent{
		Device: "switch.washer", Kind: model.KindDevice, Status: model.StatusOptimal, Cost: 0.4, Nodes: 3, Latency: time.Millisecond,
	}))
	require.NoError(t, s.RecordOptimization(coremetrics.OptimizationEvent{
		Device: "switch.washer", Kind: model.KindDevice, Status: model.StatusInvalid, Cost: 9,
	}))
	require.NoError(t, s.RecordFallback(coremetrics.FallbackEvent{Source: "solar"}))
	require.NoError(t, s.RecordScheduleChange(coremetrics.ScheduleChangeEvent{Origin: "manual"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(s.optimizations.WithLabelValues("device", "optimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.optimizations.WithLabelValues("device", "invalid")))
	assert.Equal(t, 0.4, testutil.ToFloat64(s.cost.WithLabelValues("switch.washer")), "rejected results leave the cost gauge alone")
	assert.Equal(t, 1.0, testutil.ToFloat64(s.fallbacks.WithLabelValues("solar")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.changes.WithLabelValues("manual")))
}

func TestPromSinkReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	assert.Same(t, a.optimizations, b.optimizations)
}

func TestFactoryBuiltins(t *testing.T) {
	s, err := coremetrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)
}
