package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/newsdesk/search/internal/config"
)

func TestNormalizeReason(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"no_embedding_provider", "no_embedding_provider"},
		{"embedder_failed", "embedder_failed"},
		{"", "other"},
		{"timeout", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeReason(tt.input, AllowedFallbackReasons))
		})
	}
}

func TestNormalizeSearchTypeAndCacheName(t *testing.T) {
	assert.Equal(t, "text", NormalizeSearchType("text"))
	assert.Equal(t, "semantic", NormalizeSearchType("semantic"))
	assert.Equal(t, "other", NormalizeSearchType("hybrid"))

	assert.Equal(t, CacheQueryEmbedding, NormalizeCacheName(CacheQueryEmbedding))
	assert.Equal(t, "other", NormalizeCacheName("webhooks"))
}

func TestNewMetrics_NilMeter(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}

	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter(InstrumentationScope))
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	m.Search.RecordSearch(ctx, "semantic", "ok", 5, 20*time.Millisecond)
	m.Search.RecordFallback(ctx, "embedder_failed")
	m.Embeddings.RecordEnqueued(ctx, EnqueueSourceBackfill, 2)
	m.Embeddings.RecordEnqueued(ctx, EnqueueSourceBackfill, 0)
	m.Embeddings.RecordJobFinished(ctx, "completed", 300*time.Millisecond)
	m.Embeddings.RecordAbandoned(ctx, 3)
	m.Cache.RecordLookup(ctx, CacheQueryEmbedding, true)
	m.Cache.RecordLookup(ctx, CacheAvailability, false)
	m.Queue.SetEmbeddingQueueDepth(7)
	m.API.RecordRequestBodyTooLarge(ctx)
	m.API.RecordAuthFailure(ctx, AuthMissingKey)

	got := collect(t, reader)

	for _, name := range []string{
		MetricNameSearchRequests, MetricNameSearchDuration, MetricNameSearchFallbacks,
		MetricNameEmbeddingJobsEnqueued, MetricNameEmbeddingOutcomes, MetricNameCacheLookups,
		MetricNameEmbeddingQueue, MetricNameRequestBodyLimit, MetricNameAuthFailures,
	} {
		assert.Contains(t, got, name)
	}

	lookups, ok := got[MetricNameCacheLookups].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, lookups.DataPoints, 2, "one series per cache/result pair")

	gauge, ok := got[MetricNameEmbeddingQueue].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(7), gauge.DataPoints[0].Value)

	enqueued, ok := got[MetricNameEmbeddingJobsEnqueued].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, enqueued.DataPoints, 1)
	assert.Equal(t, int64(2), enqueued.DataPoints[0].Value)

	outcomes, ok := got[MetricNameEmbeddingOutcomes].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Len(t, outcomes.DataPoints, 2, "completed and abandoned are separate series")
	assert.Contains(t, got, MetricNameEmbeddingDuration)
}

func TestEmbeddingMetrics_EnqueueSources(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewMetrics(provider.Meter(InstrumentationScope))
	require.NoError(t, err)

	ctx := context.Background()
	m.Embeddings.RecordEnqueued(ctx, EnqueueSourceRequest, 1)
	m.Embeddings.RecordEnqueued(ctx, EnqueueSourceTrigger, 2)
	m.Embeddings.RecordEnqueued(ctx, "cron", 1)

	enqueued, ok := collect(t, reader)[MetricNameEmbeddingJobsEnqueued].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	got := make(map[string]int64)

	for _, dp := range enqueued.DataPoints {
		source, _ := dp.Attributes.Value(AttrSource)
		got[source.AsString()] = dp.Value
	}

	assert.Equal(t, map[string]int64{"request": 1, "trigger": 2, "other": 1}, got)
}

func TestTraceContextHandler_AddsRequestAndTraceIDs(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewTraceContextHandler(slog.NewTextHandler(&buf, nil)))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = context.WithValue(ctx, RequestIDKey, "req-123")
	logger.InfoContext(ctx, "hello")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-123")
	assert.Contains(t, out, "trace_id="+span.SpanContext().TraceID().String())
	assert.Contains(t, out, "span_id=")
}

func TestTraceContextHandler_AddsLogAttrs(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(NewTraceContextHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithLogAttrs(context.Background(), slog.Int64("river_job_id", 42))
	ctx = WithLogAttrs(ctx, slog.String("trigger", "periodic"))
	ctx = WithLogAttrs(ctx)

	logger.InfoContext(ctx, "drain")

	out := buf.String()
	assert.Contains(t, out, "river_job_id=42")
	assert.Contains(t, out, "trigger=periodic")
	assert.NotContains(t, out, "trace_id=", "no span in context")
	assert.Len(t, LogAttrs(ctx), 2)
}

func TestProviders_DisabledByDefault(t *testing.T) {
	p, err := NewProviders(&config.Config{OtelTracesExporter: "zipkin"})
	require.NoError(t, err)
	assert.Nil(t, p.Meter)
	assert.Nil(t, p.Tracer)
	assert.Nil(t, p.MeterForMetrics())

	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, (*Providers)(nil).Shutdown(context.Background()))
}

func TestProviders_PrometheusExporter(t *testing.T) {
	p, err := NewProviders(&config.Config{OtelMetricsExporter: "prometheus"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	require.NotNil(t, p.Meter)
	require.NotNil(t, p.MetricsHandler)

	m, err := NewMetrics(p.MeterForMetrics())
	require.NoError(t, err)
	m.Search.RecordFallback(context.Background(), "embeddings_empty")

	rec := httptest.NewRecorder()
	p.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newsdesk_search_fallbacks")
	assert.Contains(t, rec.Body.String(), `reason="embeddings_empty"`)
}

func TestProviders_StdoutTracer(t *testing.T) {
	p, err := NewProviders(&config.Config{OtelTracesExporter: "stdout", OtelTracesSampler: "always_off"})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_InvalidSampler(t *testing.T) {
	_, err := NewProviders(&config.Config{OtelTracesExporter: "stdout", OtelTracesSampler: "sometimes"})
	require.ErrorIs(t, err, errUnknownSampler)
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name, arg string
		want      string
		wantErr   bool
	}{
		{name: "", want: "ParentBased{root:AlwaysOnSampler"},
		{name: "always_off", want: "AlwaysOffSampler"},
		{name: "traceidratio", arg: "0.5", want: "TraceIDRatioBased{0.5}"},
		{name: "parentbased_traceidratio", arg: "0.25", want: "TraceIDRatioBased{0.25}"},
		{name: "traceidratio", arg: "1.5", wantErr: true},
		{name: "traceidratio", arg: "half", wantErr: true},
		{name: "jaeger_remote", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.arg, func(t *testing.T) {
			s, err := newSampler(tt.name, tt.arg)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Contains(t, s.Description(), tt.want)
		})
	}
}

func TestFailSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	FailSpan(ok, nil, "unused")
	ok.End()

	_, failed := tp.Tracer("test").Start(context.Background(), "failed")
	FailSpan(failed, errors.New("boom"), "rank failed")
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "rank failed", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}
