package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/cassiomorais/orderpay/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func TestMetrics_RecordsRoutePatternAndStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
	}{
		{"created", http.StatusCreated},
		{"bad request", http.StatusBadRequest},
		{"conflict", http.StatusConflict},
		{"unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMetrics()
			r := chi.NewRouter()
			r.Use(Metrics(m))
			r.Post("/api/v1/payments/{id}/refund", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/payments/123/refund", nil))

			assert.Equal(t, tt.statusCode, w.Code)
			counter := m.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/api/v1/payments/{id}/refund", strconv.Itoa(tt.statusCode))
			assert.Equal(t, 1.0, testutil.ToFloat64(counter))
			assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
		})
	}
}

func TestMetrics_DefaultsToOK(t *testing.T) {
	m := newTestMetrics()
	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")))
}

func TestMetrics_NoRoutePatternFallsBackToPath(t *testing.T) {
	m := newTestMetrics()
	handler := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/unknown", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/unknown", "404")))
}

func TestStatusWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}

	sw.WriteHeader(http.StatusAccepted)

	assert.Equal(t, http.StatusAccepted, sw.statusCode)
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Same(t, w, sw.Unwrap())
}
