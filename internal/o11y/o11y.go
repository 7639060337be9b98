package o11y

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

type Options struct {
	ServiceName string
	// LogFormat is "json" or "text".
	LogFormat    string
	LogLevel     string
	OTLPEndpoint string
	// SampleRatio of root traces that are recorded.
	SampleRatio float64
	SentryDSN   string
	Environment string
}

type Observability struct {
	Logger   *slog.Logger
	Tracer   *trace.TracerProvider
	Registry *prometheus.Registry
	// Sentry is true when errors are reported to sentry.
	Sentry bool
}

func Setup(ctx context.Context, opts Options) (*Observability, func(), error) {
	logger, err := NewLogger(opts.LogFormat, opts.LogLevel)
	if err != nil {
		return nil, func() {}, err
	}

	var tpOpts []trace.TracerProviderOption
	if opts.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(opts.OTLPEndpoint),
		)
		if err != nil {
			return nil, func() {}, fmt.Errorf("create otlp exporter: %w", err)
		}
		tpOpts = append(tpOpts, trace.WithBatcher(exporter))
	}
	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))
	tpOpts = append(tpOpts,
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(opts.SampleRatio))),
	)
	tp := trace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obs := &Observability{
		Logger:   logger,
		Tracer:   tp,
		Registry: registry,
	}

	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              opts.SentryDSN,
			Environment:      opts.Environment,
			TracesSampleRate: opts.SampleRatio,
		})
		if err != nil {
			logger.Error("sentry init failed, errors will only be logged", "error", err)
		} else {
			obs.Sentry = true
		}
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
		if obs.Sentry {
			sentry.Flush(2 * time.Second)
		}
	}

	return obs, cleanup, nil
}

// NewLogger builds the process logger. The text format is meant for a
// developer's terminal.
func NewLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch format {
	case "", "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: lvl,
		})), nil
	case "text":
		h := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			Level:           charmlog.Level(lvl),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		})
		return slog.New(h), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
