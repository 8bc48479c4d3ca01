package refinement

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// sumByAttr totals an int64 counter's data points grouped by one attribute.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key string) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key(key))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func histogramCount(rm metricdata.ResourceMetrics, name string) uint64 {
	var n uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok && m.Name == name {
				for _, dp := range h.DataPoints {
					n += dp.Count
				}
			}
		}
	}
	return n
}

func (s *OrchestratorSuite) TestRunMetrics() {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { s.NoError(mp.Shutdown(s.ctx)) }()

	s.optIn("u1", "u2", "u3", "u4")
	s.seed("u1", "Morning Run", 4)
	s.seed("u2", "Broken", 3)
	s.seed("u3", "Team Standup", 3)

	_, err := s.orchestrator(WithMeterProvider(mp)).Trigger(s.ctx, testSecret)
	s.Require().NoError(err)

	var rm metricdata.ResourceMetrics
	s.Require().NoError(reader.Collect(s.ctx, &rm))

	t := s.T()
	s.Equal(map[string]int64{"processed": 2, "failed": 1, "skipped": 1},
		sumByAttr(t, rm, "cadence.refinement.users", "outcome"))
	s.Equal(map[string]int64{"completed": 1},
		sumByAttr(t, rm, "cadence.refinement.runs", "status"))
	s.Equal(map[string]int64{"create": 2},
		sumByAttr(t, rm, "cadence.refinement.clusters.written", "op"))
	s.Equal(uint64(1), histogramCount(rm, "cadence.refinement.run.duration"))
}

func (s *OrchestratorSuite) TestRunMetricsRecordFailedRun() {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { s.NoError(mp.Shutdown(s.ctx)) }()

	o := s.orchestrator(WithMeterProvider(mp))
	o.deps.Users = failingUsers{UserDirectory: s.users, err: errors.New("directory unavailable")}
	_, err := o.Run(s.ctx)
	s.Require().Error(err)

	var rm metricdata.ResourceMetrics
	s.Require().NoError(reader.Collect(s.ctx, &rm))
	s.Equal(map[string]int64{"failed": 1}, sumByAttr(s.T(), rm, "cadence.refinement.runs", "status"))
	s.Empty(sumByAttr(s.T(), rm, "cadence.refinement.users", "outcome"))
}
