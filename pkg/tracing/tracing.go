package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// InstrumentationName scopes every tracer this module creates.
const InstrumentationName = "github.com/angelmondragon/storefront-backend"

type Options struct {
	ServiceName    string
	ServiceVersion string
	InstanceID     string
	Config         config.TracingConfig

	// Exporter overrides the OTLP exporter; tests pass an in-memory one.
	Exporter sdktrace.SpanExporter
}

// Provider owns the process tracer provider and its shutdown.
type Provider struct {
	tp        *sdktrace.TracerProvider
	shutdowns []func(context.Context) error
}

// Setup installs a global tracer provider and the W3C trace-context
// propagator. Without an endpoint or exporter spans are sampled and
// correlated in logs but never exported.
func Setup(ctx context.Context, opts Options) (*Provider, error) {
	if strings.TrimSpace(opts.ServiceName) == "" {
		return nil, fmt.Errorf("tracing service name required")
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", opts.ServiceName),
	}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", opts.ServiceVersion))
	}
	if opts.InstanceID != "" {
		attrs = append(attrs, attribute.String("service.instance.id", opts.InstanceID))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build tracing resource: %w", err)
	}

	exporter := opts.Exporter
	if exporter == nil && opts.Config.Enabled() {
		exporter, err = newOTLPExporter(ctx, opts.Config)
		if err != nil {
			return nil, err
		}
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(opts.Config.SampleRatio)))),
	}
	if exporter != nil {
		batchOpts := []sdktrace.BatchSpanProcessorOption{}
		if opts.Config.ExportTimeout > 0 {
			batchOpts = append(batchOpts, sdktrace.WithExportTimeout(opts.Config.ExportTimeout))
		}
		if opts.Config.MaxQueueSize > 0 {
			batchOpts = append(batchOpts, sdktrace.WithMaxQueueSize(opts.Config.MaxQueueSize))
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter, batchOpts...))
	}

	tp := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:        tp,
		shutdowns: []func(context.Context) error{tp.Shutdown},
	}, nil
}

func newOTLPExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	clientOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(strings.TrimSpace(cfg.Endpoint)),
	}
	if cfg.URLPath != "" {
		clientOpts = append(clientOpts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if cfg.AuthHeader != "" {
		clientOpts = append(clientOpts, otlptracehttp.WithHeaders(map[string]string{"Authorization": cfg.AuthHeader}))
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
	}
	if cfg.ExportTimeout > 0 {
		clientOpts = append(clientOpts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
	}

	exporter, err := otlptracehttp.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}
	return exporter, nil
}

func sampleRatio(v float64) float64 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}

// TracerProvider exposes the SDK provider for components that take one explicitly.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tp
}

// ForceFlush exports any buffered spans.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes and stops the provider. Calling it twice is a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var err error
	for _, fn := range p.shutdowns {
		err = multierr.Append(err, fn(ctx))
	}
	p.shutdowns = nil
	return err
}
