// Package telemetry installs the OpenTelemetry providers used by the
// ema-discuss binaries.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

var ErrUnknownExporter = errors.New("unknown telemetry exporter")

// Config selects where logs, traces and metrics go.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Exporter is "stdout" to write traces and metrics to Output, or "none".
	Exporter string
	Output   io.Writer

	// LogOutput receives the log records of every package logging through
	// otelslog. Nil drops them.
	LogOutput io.Writer

	MetricInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "ema-discuss",
		ServiceVersion: "dev",
		Exporter:       ExporterNone,
		MetricInterval: 30 * time.Second,
	}
}

// Init installs the global providers. The returned shutdown flushes and
// stops them and must be called before exit.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.LogOutput != nil {
		lp, err := initLogger(cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		global.SetLoggerProvider(lp)
		shutdownFuncs = append(shutdownFuncs, lp.Shutdown)
	}

	switch cfg.Exporter {
	case ExporterNone, "":
		return shutdown, nil
	case ExporterStdout:
	default:
		_ = shutdown(ctx)
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}

	tp, err := initTracer(cfg, res)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	mp, err := initMeter(cfg, res)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("init meter: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	return shutdown, nil
}

func initLogger(cfg Config, res *resource.Resource) (*sdklog.LoggerProvider, error) {
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogOutput))
	if err != nil {
		return nil, fmt.Errorf("create log exporter: %w", err)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)),
	), nil
}

func initTracer(cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(output(cfg)), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(output(cfg)), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = DefaultConfig().MetricInterval
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(interval))),
	), nil
}

func output(cfg Config) io.Writer {
	if cfg.Output == nil {
		return io.Discard
	}
	return cfg.Output
}
