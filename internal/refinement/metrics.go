package refinement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/thebtf/cadence/pkg/models"
)

const meterName = "github.com/thebtf/cadence/internal/refinement"

// runMetrics holds the refinement instruments.
type runMetrics struct {
	runs            metric.Int64Counter
	runDuration     metric.Float64Histogram
	users           metric.Int64Counter
	clustersWritten metric.Int64Counter
}

func newRunMetrics(mp metric.MeterProvider) *runMetrics {
	meter := mp.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	m := &runMetrics{}
	var err error

	if m.runs, err = meter.Int64Counter("cadence.refinement.runs",
		metric.WithDescription("Refinement runs by final status")); err != nil {
		log.Warn().Err(err).Msg("Failed to create runs counter")
		m.runs, _ = fallback.Int64Counter("cadence.refinement.runs")
	}
	if m.runDuration, err = meter.Float64Histogram("cadence.refinement.run.duration",
		metric.WithDescription("Wall time of a refinement run"),
		metric.WithUnit("s")); err != nil {
		log.Warn().Err(err).Msg("Failed to create run duration histogram")
		m.runDuration, _ = fallback.Float64Histogram("cadence.refinement.run.duration")
	}
	if m.users, err = meter.Int64Counter("cadence.refinement.users",
		metric.WithDescription("Users handled by refinement runs by outcome")); err != nil {
		log.Warn().Err(err).Msg("Failed to create users counter")
		m.users, _ = fallback.Int64Counter("cadence.refinement.users")
	}
	if m.clustersWritten, err = meter.Int64Counter("cadence.refinement.clusters.written",
		metric.WithDescription("Habit cluster rows created or updated")); err != nil {
		log.Warn().Err(err).Msg("Failed to create clusters counter")
		m.clustersWritten, _ = fallback.Int64Counter("cadence.refinement.clusters.written")
	}
	return m
}

func (m *runMetrics) recordUser(ctx context.Context, outcome UserOutcome, err error) {
	status := "processed"
	switch {
	case err != nil:
		status = "failed"
	case outcome.Skipped:
		status = "skipped"
	}
	m.users.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", status)))

	if outcome.Created > 0 {
		m.clustersWritten.Add(ctx, int64(outcome.Created), metric.WithAttributes(attribute.String("op", "create")))
	}
	if outcome.Updated > 0 {
		m.clustersWritten.Add(ctx, int64(outcome.Updated), metric.WithAttributes(attribute.String("op", "update")))
	}
}

func (m *runMetrics) recordRun(ctx context.Context, status models.JobStatus, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
}
