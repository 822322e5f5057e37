package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/newsdesk/search/internal/config"
)

// ServiceName identifies this service in exported telemetry.
const ServiceName = "newsdesk-search"

// Histogram boundaries in seconds. Searches are expected well under a second; embedding jobs include a
// provider round trip and can take tens of seconds under rate limiting.
var (
	searchDurationBounds    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	embeddingDurationBounds = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}
)

// cardinalityLimit caps the series per instrument.
const cardinalityLimit = 2000

// Providers holds the SDK providers. Meter or Tracer is nil when that signal is disabled.
// MetricsHandler serves the Prometheus exposition and is nil unless that exporter is selected.
type Providers struct {
	Meter          *sdkmetric.MeterProvider
	Tracer         *sdktrace.TracerProvider
	MetricsHandler http.Handler
}

// NewProviders builds the providers enabled by cfg:
//   - metrics when OTEL_METRICS_EXPORTER is otlp (push; endpoint and interval from the standard OTEL_ env)
//     or prometheus (pull, served by MetricsHandler)
//   - traces when OTEL_TRACES_EXPORTER is otlp or stdout, sampled per OTEL_TRACES_SAMPLER
//
// Unknown exporter names disable the signal. Nothing is installed globally; call Install.
func NewProviders(cfg *config.Config) (*Providers, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	p := &Providers{}

	if p.Meter, p.MetricsHandler, err = newMeterProvider(cfg.OtelMetricsExporter, res); err != nil {
		return nil, err
	}

	if p.Tracer, err = newTracerProvider(cfg, res); err != nil {
		if shutdownErr := p.Shutdown(context.Background()); shutdownErr != nil {
			err = errors.Join(err, shutdownErr)
		}

		return nil, err
	}

	return p, nil
}

// Install registers the providers and the W3C trace context propagator as OpenTelemetry globals.
func (p *Providers) Install() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	if p.Tracer != nil {
		otel.SetTracerProvider(p.Tracer)
	}

	if p.Meter != nil {
		otel.SetMeterProvider(p.Meter)
	}
}

// MeterForMetrics returns the meter for NewMetrics, or nil when metrics are disabled.
func (p *Providers) MeterForMetrics() metric.Meter {
	if p == nil || p.Meter == nil {
		return nil
	}

	return p.Meter.Meter(InstrumentationScope)
}

// Shutdown flushes and stops both providers, returning every failure. Safe on nil.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error

	if p.Tracer != nil {
		if err := p.Tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	if p.Meter != nil {
		if err := p.Meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// newResource describes this process. The embedding provider and model are included so dashboards can
// split search latency and fallback rates by backend.
func newResource(cfg *config.Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(ServiceName)}

	if cfg.EmbeddingProvider != "" {
		attrs = append(attrs, attribute.String("newsdesk.embedding.provider", cfg.EmbeddingProvider))
	}

	if cfg.EmbeddingModel != "" {
		attrs = append(attrs, attribute.String("newsdesk.embedding.model", cfg.EmbeddingModel))
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, fmt.Errorf("merge resource: %w", err)
	}

	return res, nil
}

func newMeterProvider(exporter string, res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, error) {
	var (
		reader  sdkmetric.Reader
		handler http.Handler
	)

	switch exporter {
	case "otlp":
		exp, err := otlpmetrichttp.New(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		reader = sdkmetric.NewPeriodicReader(exp)
	case "prometheus":
		reg := prometheus.NewRegistry()

		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		reader = exp
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	default:
		return nil, nil, nil // metrics disabled
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
		sdkmetric.WithView(durationViews()...),
	)

	return mp, handler, nil
}

// durationViews replaces the millisecond-oriented default buckets on the seconds histograms.
func durationViews() []sdkmetric.View {
	view := func(name string, bounds []float64) sdkmetric.View {
		return sdkmetric.NewView(
			sdkmetric.Instrument{Name: name},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
		)
	}

	return []sdkmetric.View{
		view(MetricNameSearchDuration, searchDurationBounds),
		view(MetricNameEmbeddingDuration, embeddingDurationBounds),
	}
}

func newTracerProvider(cfg *config.Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exp, err := newSpanExporter(context.Background(), cfg.OtelTracesExporter)
	if err != nil || exp == nil {
		return nil, err
	}

	sampler, err := newSampler(cfg.OtelTracesSampler, cfg.OtelTracesSamplerArg)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exp),
	), nil
}
