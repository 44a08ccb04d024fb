// Package middleware provides the net/http observability middleware used by
// the chartsync server.
//
// # OpenTelemetry Tracing
//
// Tracing starts a server span for every request. The span is renamed to the
// matched chi route once routing is done, so "/api/series/cpu" and
// "/api/series/mem" share the span name "PATCH /api/series/{key}".
//
//	r := chi.NewRouter()
//	r.Use(middleware.Tracing(
//	    middleware.WithTracerName("chartsync"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// The tracer comes from the global OpenTelemetry provider unless
// WithTracerProvider is given.
//
// # Prometheus Metrics
//
// Metrics collects request and synchronization metrics:
//   - chartsync_http_requests_total: requests by route, method and status
//   - chartsync_http_request_duration_seconds: request duration by route
//   - chartsync_broadcasts_total: deliveries by topic kind
//   - chartsync_broadcasts_suppressed_total: deduplicated broadcasts by topic kind
//   - chartsync_persist_failures_total: failed preference writes by key
//   - chartsync_websocket_connections: open WebSocket streams by kind
//
//	m := middleware.NewMetrics(middleware.WithNamespace("chartsync"))
//	r.Use(m.Handler)
//	r.Handle("/metrics", m.Exposition())
//
// A *Metrics is also a pubsub.Observer, so it can be handed directly to the
// stores to count broadcasts.
package middleware
