package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordingProvider struct {
	noop.TracerProvider
	tracer *recordingTracer
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return p.tracer
}

type recordingTracer struct {
	noop.Tracer

	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()}
	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingSpan struct {
	noop.Span

	name  string
	kind  trace.SpanKind
	attrs []attribute.KeyValue
	code  codes.Code
	ended bool
}

func (s *recordingSpan) SetName(name string) {
	s.name = name
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.attrs = append(s.attrs, kv...)
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) {
	s.code = code
}

func (s *recordingSpan) End(...trace.SpanEndOption) {
	s.ended = true
}

func (s *recordingSpan) attr(key string) (attribute.Value, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingNamesSpanByRoute(t *testing.T) {
	tracer := &recordingTracer{}
	r := chi.NewRouter()
	r.Use(Tracing(WithTracerProvider(&recordingProvider{tracer: tracer})))

	var inHandler trace.Span
	r.Patch("/api/series/{key}", func(w http.ResponseWriter, r *http.Request) {
		inHandler = trace.SpanFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/api/series/cpu", nil))

	require.Len(t, tracer.spans, 1)
	span := tracer.spans[0]
	assert.Same(t, span, inHandler)
	assert.Equal(t, "PATCH /api/series/{key}", span.name)
	assert.Equal(t, trace.SpanKindServer, span.kind)
	assert.True(t, span.ended)
	assert.Equal(t, codes.Ok, span.code)

	target, ok := span.attr("http.target")
	require.True(t, ok)
	assert.Equal(t, "/api/series/cpu", target.AsString())
	status, ok := span.attr("http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusNoContent), status.AsInt64())
}

func TestTracingMarksServerErrors(t *testing.T) {
	tracer := &recordingTracer{}
	r := chi.NewRouter()
	r.Use(Tracing(WithTracerProvider(&recordingProvider{tracer: tracer})))
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Len(t, tracer.spans, 1)
	assert.Equal(t, codes.Error, tracer.spans[0].code)
}

func TestTracingFilterAndAttributes(t *testing.T) {
	tracer := &recordingTracer{}
	r := chi.NewRouter()
	r.Use(Tracing(
		WithTracerProvider(&recordingProvider{tracer: tracer}),
		WithRequestFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
		WithAttributeExtractor(func(r *http.Request) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("chart.id", r.URL.Query().Get("chart"))}
		}),
	))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/api/hover", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/hover?chart=cpu", nil))

	require.Len(t, tracer.spans, 1)
	chart, ok := tracer.spans[0].attr("chart.id")
	require.True(t, ok)
	assert.Equal(t, "cpu", chart.AsString())
}

func TestTracingDefaultsToGlobalProvider(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Tracing(WithTracerName("test")))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
