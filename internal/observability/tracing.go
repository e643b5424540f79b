package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/radio-emulator/internal/logging"
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
)

// Exporter names accepted in TracingConfig.
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterNone   = "none"
)

const defaultOTLPEndpoint = "localhost:4317"

// TracingConfig governs tracing for one binary.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	// Component names the binary, e.g. "config-server" or "emulator".
	Component   string
	Exporter    string
	Endpoint    string
	SampleRatio float64
	// Writer receives stdout spans; nil selects os.Stderr so command output
	// on stdout stays clean.
	Writer io.Writer
}

// TracingConfigFromEnv reads RADIO_TRACING_ENABLED, RADIO_TRACING_EXPORTER,
// RADIO_TRACING_SERVICE_NAME, RADIO_TRACING_SAMPLE_RATIO and
// RADIO_OTLP_ENDPOINT. Malformed values fall back to defaults.
func TracingConfigFromEnv(component string) TracingConfig {
	cfg := TracingConfig{
		ServiceName: "radio-config",
		Component:   component,
		Exporter:    ExporterStdout,
		Endpoint:    os.Getenv("RADIO_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if enabled, err := strconv.ParseBool(os.Getenv("RADIO_TRACING_ENABLED")); err == nil {
		cfg.Enabled = enabled
	}
	if exp := strings.ToLower(strings.TrimSpace(os.Getenv("RADIO_TRACING_EXPORTER"))); exp != "" {
		cfg.Exporter = exp
	}
	if name := os.Getenv("RADIO_TRACING_SERVICE_NAME"); name != "" {
		cfg.ServiceName = name
	}
	if raw := os.Getenv("RADIO_TRACING_SAMPLE_RATIO"); raw != "" {
		if ratio, err := strconv.ParseFloat(raw, 64); err == nil && ratio >= 0 && ratio <= 1 {
			cfg.SampleRatio = ratio
		}
	}
	return cfg
}

// NewTracerProvider builds a provider for cfg without installing it. The
// caller owns Shutdown.
func NewTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("tracing sample ratio %v outside [0, 1]", cfg.SampleRatio)
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "radioemu"),
	}
	if cfg.Component != "" {
		attrs = append(attrs, attribute.String("radioemu.component", cfg.Component))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	}
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// InitTracing installs the global tracer provider and propagators described
// by cfg and returns a shutdown function that flushes pending spans. With
// tracing disabled a noop provider is installed.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := NewTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.String("component", cfg.Component),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// newExporter returns nil for ExporterNone: spans are sampled and dropped.
func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout, "":
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	case ExporterNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout flushes spans within five seconds and logs, rather than
// returns, a failure.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
