package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))
}

func TestMetricsHandlerLabelsByRoute(t *testing.T) {
	m := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/api/series/{key}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Delete("/api/series/{key}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/series/cpu", "/api/series/mem"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/series/cpu", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/series/{key}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/api/series/{key}", "DELETE", "404")))
}

func TestMetricsHandlerDefaultsToOK(t *testing.T) {
	m := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/healthz", "GET", "200")))
}

func TestMetricsObserver(t *testing.T) {
	m := newTestMetrics(t)

	m.Published("series/cpu", 2)
	m.Published("series/mem", 0)
	m.Published("hover", 1)
	m.Suppressed("hover/chart-a")
	m.PersistFailed("chart-sync-hover-enabled", errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("series")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("hover")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.suppressed.WithLabelValues("hover")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistFailures.WithLabelValues("chart-sync-hover-enabled")))
}

func TestMetricsStreams(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamOpened("hover")
	m.StreamOpened("hover")
	m.StreamClosed("hover")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections.WithLabelValues("hover")))
}

func TestMetricsExposition(t *testing.T) {
	m := newTestMetrics(t)
	m.Published("highlight", 1)

	rec := httptest.NewRecorder()
	m.Exposition().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(string(body), `test_broadcasts_total{kind="highlight"} 1`), string(body))
}

func TestTopicKind(t *testing.T) {
	assert.Equal(t, "series", topicKind("series/a/b"))
	assert.Equal(t, "hover", topicKind("hover"))
}
