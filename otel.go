package adchecklist

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zero-day-ai/adchecklist/auditerr"
	"github.com/zero-day-ai/adchecklist/merge"
)

// instrumentationName names the tracer and meter of the generator.
const instrumentationName = "github.com/zero-day-ai/adchecklist"

// otelMetrics holds the metric instruments of a Generator. They are created
// once in New and reused for every run.
type otelMetrics struct {
	// queryDuration records query duration in milliseconds
	queryDuration metric.Float64Histogram

	// rows counts result rows per query
	rows metric.Int64Counter

	// tasks counts merged tasks by merge outcome
	tasks metric.Int64Counter

	// errors counts non-fatal errors by kind
	errors metric.Int64Counter
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"adchecklist.query.duration",
		metric.WithDescription("Query execution and synthesis duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create query duration histogram: %w", err)
	}

	m.rows, err = meter.Int64Counter(
		"adchecklist.query.rows",
		metric.WithDescription("Result rows returned by catalog queries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rows counter: %w", err)
	}

	m.tasks, err = meter.Int64Counter(
		"adchecklist.tasks",
		metric.WithDescription("Merged tasks by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create tasks counter: %w", err)
	}

	m.errors, err = meter.Int64Counter(
		"adchecklist.errors",
		metric.WithDescription("Non-fatal errors by kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors counter: %w", err)
	}

	return m, nil
}

func (m *otelMetrics) recordQuery(ctx context.Context, query string, rows int, d time.Duration, failed bool) {
	status := "ok"
	if failed {
		status = "failed"
	}
	opts := metric.WithAttributes(
		attribute.String("query", query),
		attribute.String("status", status),
	)
	m.queryDuration.Record(ctx, float64(d.Milliseconds()), opts)
	m.rows.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("query", query)))
}

func (m *otelMetrics) recordMerge(ctx context.Context, s merge.Stats) {
	for outcome, n := range map[string]int{
		"fresh":    s.Fresh,
		"kept":     s.Kept,
		"resolved": s.Resolved,
		"stale":    s.Stale,
		"carried":  s.Carried,
	} {
		m.tasks.Add(ctx, int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m *otelMetrics) recordErrors(ctx context.Context, errs []error) {
	for _, err := range errs {
		kind := auditerr.KindOf(err)
		if kind == "" {
			kind = "unknown"
		}
		m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
