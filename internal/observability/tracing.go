package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/fso-downlink/internal/logging"
)

// Exporter names accepted in TracingConfig.Exporter.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

const (
	defaultServiceName  = "fso-downlink"
	defaultOTLPEndpoint = "localhost:4317"
)

// RunIdentity labels every span of a simulation run so traces from different
// seeds or scenarios can be told apart in a collector.
type RunIdentity struct {
	Scenario string
	Seed     uint64
	Run      uint64
}

func (r RunIdentity) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int64("fso.seed", int64(r.Seed)),
		attribute.Int64("fso.run", int64(r.Run)),
	}
	if r.Scenario != "" {
		attrs = append(attrs, attribute.String("fso.scenario", r.Scenario))
	}
	return attrs
}

// TracingConfig governs how run tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // ExporterStdout or ExporterOTLP
	Endpoint    string // OTLP collector, host:port
	SampleRatio float64

	Identity RunIdentity

	// Output receives stdout-exporter spans; nil means os.Stderr so span
	// dumps never interleave with CSV samples on stdout.
	Output io.Writer
}

// TracingConfigFromEnv reads FSO_TRACING_ENABLED, FSO_TRACING_EXPORTER,
// FSO_TRACING_SERVICE_NAME, FSO_TRACING_SAMPLE_RATIO and FSO_OTLP_ENDPOINT.
// Out-of-range ratios fall back to sampling every run.
func TracingConfigFromEnv() TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv("FSO_TRACING_ENABLED"), "true"),
		ServiceName: envOr("FSO_TRACING_SERVICE_NAME", defaultServiceName),
		Exporter:    strings.ToLower(envOr("FSO_TRACING_EXPORTER", ExporterStdout)),
		Endpoint:    os.Getenv("FSO_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if raw := os.Getenv("FSO_TRACING_SAMPLE_RATIO"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 1 {
			cfg.SampleRatio = v
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runSampler picks the sampler for a run. A run produces a single root span,
// so the ratio decides whether a whole run is kept.
func runSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// InitTracing installs the global tracer provider used by the simulation
// engine and returns a shutdown function that flushes pending spans. With
// tracing disabled a noop provider is installed.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	log = logging.OrNoop(log)

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	processor, err := spanProcessor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(append([]attribute.KeyValue{
			attribute.String("service.name", service),
			attribute.String("service.namespace", "fso"),
		}, cfg.Identity.attributes()...)...),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(runSampler(cfg.SampleRatio)),
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", service),
		logging.String("scenario", cfg.Identity.Scenario),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// spanProcessor exports stdout spans synchronously, since a run ends in one
// span dump, and batches spans sent to a collector.
func spanProcessor(ctx context.Context, cfg TracingConfig) (sdktrace.SpanProcessor, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout, "":
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		exp, err := stdouttrace.New(
			stdouttrace.WithWriter(out),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
		if err != nil {
			return nil, err
		}
		return sdktrace.NewSimpleSpanProcessor(exp), nil
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
		if err != nil {
			return nil, err
		}
		return sdktrace.NewBatchSpanProcessor(exp), nil
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans within five seconds. Failures are logged,
// not returned, so they never mask the run's own result.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logging.OrNoop(log).Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
