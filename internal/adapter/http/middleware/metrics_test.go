package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsRecordsRequest(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		path       string
		statusCode int
	}{
		{
			name:       "normalizes wallet path",
			method:     http.MethodGet,
			path:       "/api/v1/wallets/ABC123",
			statusCode: http.StatusTeapot,
		},
		{
			name:       "keeps non-matching path as-is",
			method:     http.MethodPost,
			path:       "/health",
			statusCode: http.StatusCreated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewHTTPMetrics(prometheus.NewRegistry())

			handlerCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(tc.statusCode)
			})

			req := httptest.NewRequest(tc.method, tc.path, nil)
			rr := httptest.NewRecorder()

			m.Wrap(next).ServeHTTP(rr, req)

			if !handlerCalled {
				t.Fatalf("next handler was not invoked")
			}

			if got := testutil.ToFloat64(m.requestsInFlight); got != 0 {
				t.Fatalf("expected in-flight gauge to return to 0, got %v", got)
			}

			counter := m.requestsTotal.WithLabelValues(tc.method, normalizePath(tc.path), strconv.Itoa(tc.statusCode))
			if got := testutil.ToFloat64(counter); got != 1 {
				t.Fatalf("expected counter to be 1, got %v", got)
			}
		})
	}
}

func TestHTTPMetricsUsesRoutePattern(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Wrap)
	r.Get("/api/v1/wallets/{id}/events", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/wallets/w-42/events", nil))

	counter := m.requestsTotal.WithLabelValues(http.MethodGet, "/api/v1/wallets/{id}/events", "200")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Fatalf("expected route pattern label, counter = %v", got)
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "wallet path without suffix",
			input:    "/api/v1/wallets/ABC123",
			expected: "/api/v1/wallets/{id}",
		},
		{
			name:     "wallet path with suffix",
			input:    "/api/v1/wallets/ABC123/history",
			expected: "/api/v1/wallets/{id}/history",
		},
		{
			name:     "owner lookup",
			input:    "/api/v1/wallets/owner/u1",
			expected: "/api/v1/wallets/owner/{owner_id}",
		},
		{
			name:     "non-matching path",
			input:    "/api/v1/transfers",
			expected: "/api/v1/transfers",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizePath(tc.input); got != tc.expected {
				t.Fatalf("normalizePath(%q) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}
