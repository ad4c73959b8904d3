// Package telemetry wires the OpenTelemetry SDK and the process logger.
package telemetry

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/encoding/gzip"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"

	ServiceName       = "inboxsync"
	DefaultEndpoint   = "otlp.uptrace.dev"
	defaultGRPCSuffix = ":4317"
)

var ErrMissingDSN = errors.New("OTLP exporter needs a DSN")

type Config struct {
	Exporter string
	Endpoint string
	DSN      string
	Version  string
	// Writer receives stdout exporter output; os.Stdout when nil.
	Writer io.Writer
}

// Enabled reports whether an OTel logger provider will be installed.
func (c Config) Enabled() bool {
	switch c.Exporter {
	case ExporterStdout, ExporterOTLP:
		return true
	}
	return false
}

// Setup bootstraps the OpenTelemetry pipeline for cfg.Exporter.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// The errors from the calls are joined. Each cleanup runs once.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	switch strings.TrimSpace(cfg.Exporter) {
	case "", ExporterNone:
		return shutdown, nil
	case ExporterStdout:
		loggerProvider, lerr := newStdoutLoggerProvider(cfg)
		if lerr != nil {
			handleErr(lerr)
			return
		}
		shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
		global.SetLoggerProvider(loggerProvider)
		return shutdown, nil
	case ExporterOTLP:
	default:
		return shutdown, errors.New("unknown telemetry exporter " + cfg.Exporter)
	}

	if strings.TrimSpace(cfg.DSN) == "" {
		return shutdown, ErrMissingDSN
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	otel.SetTextMapPropagator(newPropagator())

	res, err := newResource(ctx, cfg)
	if err != nil {
		handleErr(err)
		return
	}

	tracerProvider, err := newTraceProvider(ctx, cfg, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	loggerProvider, err := newLoggerProvider(ctx, cfg, res)
	if err != nil {
		handleErr(err)
		return
	}
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)
	global.SetLoggerProvider(loggerProvider)

	return shutdown, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", version),
		))
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func dsnHeaders(cfg Config) map[string]string {
	return map[string]string{"uptrace-dsn": cfg.DSN}
}

func newTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithHeaders(dsnHeaders(cfg)),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	)
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithIDGenerator(xray.NewIDGenerator()),
		trace.WithBatcher(exporter,
			trace.WithMaxQueueSize(10_000),
			trace.WithMaxExportBatchSize(10_000),
			trace.WithBatchTimeout(5*time.Second)),
	), nil
}

// preferDelta exports counters and histograms as deltas.
func preferDelta(kind metric.InstrumentKind) metricdata.Temporality {
	switch kind {
	case metric.InstrumentKindCounter,
		metric.InstrumentKindObservableCounter,
		metric.InstrumentKindHistogram:
		return metricdata.DeltaTemporality
	default:
		return metricdata.CumulativeTemporality
	}
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, ":") {
		endpoint += defaultGRPCSuffix
	}
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithHeaders(dsnHeaders(cfg)),
		otlpmetricgrpc.WithCompressor(gzip.Name),
		otlpmetricgrpc.WithTemporalitySelector(preferDelta),
	)
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(15*time.Second))),
	), nil
}

func newLoggerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*log.LoggerProvider, error) {
	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.Endpoint),
		otlploghttp.WithHeaders(dsnHeaders(cfg)),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	)
	if err != nil {
		return nil, err
	}

	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(exporter)),
	), nil
}

func newStdoutLoggerProvider(cfg Config) (*log.LoggerProvider, error) {
	var opts []stdoutlog.Option
	if cfg.Writer != nil {
		opts = append(opts, stdoutlog.WithWriter(cfg.Writer))
	}
	exporter, err := stdoutlog.New(opts...)
	if err != nil {
		return nil, err
	}
	return log.NewLoggerProvider(
		log.WithProcessor(log.NewSimpleProcessor(exporter)),
	), nil
}
