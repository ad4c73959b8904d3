package poller

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type cycleMetrics struct {
	cycles     metric.Int64Counter
	duration   metric.Float64Histogram
	candidates metric.Int64Counter
}

func newCycleMetrics(meter metric.Meter, logger *slog.Logger) cycleMetrics {
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	cycles, err := meter.Int64Counter("inboxsync.poll.cycles",
		metric.WithDescription("Completed poll cycles"))
	if err != nil {
		logger.Warn("poll cycle counter unavailable", slog.Any("error", err))
		cycles, _ = fallback.Int64Counter("inboxsync.poll.cycles")
	}
	duration, err := meter.Float64Histogram("inboxsync.poll.cycle.duration",
		metric.WithDescription("Time from cycle start to settle"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("poll cycle histogram unavailable", slog.Any("error", err))
		duration, _ = fallback.Float64Histogram("inboxsync.poll.cycle.duration")
	}
	candidates, err := meter.Int64Counter("inboxsync.preload.candidates",
		metric.WithDescription("Message uids handed to the preloader"))
	if err != nil {
		logger.Warn("preload candidate counter unavailable", slog.Any("error", err))
		candidates, _ = fallback.Int64Counter("inboxsync.preload.candidates")
	}

	return cycleMetrics{
		cycles:     cycles,
		duration:   duration,
		candidates: candidates,
	}
}

func (m cycleMetrics) observe(ctx context.Context, report CycleReport) {
	result := "ok"
	if report.Failed() {
		result = "failed"
	}
	attrs := metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("folder", report.FolderID),
	)
	m.cycles.Add(ctx, 1, attrs)
	m.duration.Record(ctx, report.SettledAt.Sub(report.StartedAt).Seconds(), attrs)
	if report.Candidates > 0 {
		m.candidates.Add(ctx, int64(report.Candidates),
			metric.WithAttributes(attribute.String("folder", report.FolderID)))
	}
}
