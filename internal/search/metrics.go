package search

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/pslog"
)

// Metrics records routing outcomes on the global meter provider. All
// instruments are optional: init failures are logged once and recording
// becomes a no-op for the failed instrument.
type Metrics struct {
	routed            metric.Int64Counter
	delegated         metric.Int64Counter
	translationErrors metric.Int64Counter
	hydrateMisses     metric.Int64Counter
	queryDuration     metric.Int64Histogram
}

// NewMetrics builds the instrument set.
func NewMetrics(logger pslog.Logger) *Metrics {
	meter := otel.Meter("pkt.systems/sift")
	m := &Metrics{}
	var err error

	m.routed, err = meter.Int64Counter(
		"sift.query.routed",
		metric.WithDescription("Queries served by the search index"),
	)
	logMetricInitError(logger, "sift.query.routed", err)

	m.delegated, err = meter.Int64Counter(
		"sift.query.delegated",
		metric.WithDescription("Queries delegated to the primary store"),
	)
	logMetricInitError(logger, "sift.query.delegated", err)

	m.translationErrors, err = meter.Int64Counter(
		"sift.query.translation_errors",
		metric.WithDescription("Eligible queries that failed filter or sort translation"),
	)
	logMetricInitError(logger, "sift.query.translation_errors", err)

	m.hydrateMisses, err = meter.Int64Counter(
		"sift.query.hydrate_misses",
		metric.WithDescription("Index hits no longer present in the primary store"),
	)
	logMetricInitError(logger, "sift.query.hydrate_misses", err)

	m.queryDuration, err = meter.Int64Histogram(
		"sift.query.duration_ms",
		metric.WithDescription("LoadObjects duration by route"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(logger, "sift.query.duration_ms", err)

	return m
}

// RecordDecision counts one routed or delegated query under its reason.
func (m *Metrics) RecordDecision(ctx context.Context, entity string, decision Decision) {
	if m == nil {
		return
	}
	ctx = metricContext(ctx)
	attrs := metric.WithAttributes(
		attribute.String("sift.entity", entity),
		attribute.String("sift.reason", decision.Reason),
	)
	if decision.Route {
		if m.routed != nil {
			m.routed.Add(ctx, 1, attrs)
		}
		return
	}
	if m.delegated != nil {
		m.delegated.Add(ctx, 1, attrs)
	}
}

// RecordDuration records one LoadObjects duration under its route label.
func (m *Metrics) RecordDuration(ctx context.Context, entity, route string, d time.Duration) {
	if m == nil || m.queryDuration == nil {
		return
	}
	m.queryDuration.Record(metricContext(ctx), d.Milliseconds(), metric.WithAttributes(
		attribute.String("sift.entity", entity),
		attribute.String("sift.route", route),
	))
}

// RecordTranslationError counts one surfaced translation fault.
func (m *Metrics) RecordTranslationError(ctx context.Context, entity string) {
	if m == nil || m.translationErrors == nil {
		return
	}
	m.translationErrors.Add(metricContext(ctx), 1, metric.WithAttributes(
		attribute.String("sift.entity", entity),
	))
}

// RecordHydrateMisses counts index hits that were gone from the primary
// store during projection.
func (m *Metrics) RecordHydrateMisses(ctx context.Context, entity string, n int64) {
	if m == nil || m.hydrateMisses == nil || n <= 0 {
		return
	}
	m.hydrateMisses.Add(metricContext(ctx), n, metric.WithAttributes(
		attribute.String("sift.entity", entity),
	))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
