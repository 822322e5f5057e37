package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationScope names the tracer and meter used by this module.
const InstrumentationScope = "github.com/newsdesk/search"

// Tracer returns the module tracer. Spans are dropped until Providers.Install runs.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationScope)
}

// FailSpan records err on span and marks it failed with msg. A nil err is ignored.
func FailSpan(span trace.Span, err error, msg string) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// newSpanExporter returns the exporter named by OTEL_TRACES_EXPORTER, or nil when tracing is off.
// The OTLP exporter takes its endpoint from the standard OTEL_EXPORTER_OTLP_* variables.
func newSpanExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	var (
		exp sdktrace.SpanExporter
		err error
	)

	switch name {
	case "otlp":
		exp, err = otlptracehttp.New(ctx)
	case "stdout":
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		//nolint:nilnil // tracing disabled
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("create %s span exporter: %w", name, err)
	}

	return exp, nil
}
