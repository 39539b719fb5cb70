package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHealthHandler(t *testing.T) {
	healthy := func(ctx context.Context) error { return nil }
	broken := func(ctx context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]HealthCheck
		status int
	}{
		{name: "no dependencies", checks: nil, status: http.StatusOK},
		{name: "all healthy", checks: map[string]HealthCheck{"postgres": healthy, "redis": healthy}, status: http.StatusOK},
		{name: "one failing", checks: map[string]HealthCheck{"postgres": healthy, "redis": broken}, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks)
			r := chi.NewRouter()
			r.Get("/health", h.Liveness)
			r.Get("/ready", h.Readiness)

			if rec := serve(r, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
				t.Fatalf("expected liveness 200, got %d", rec.Code)
			}
			if rec := serve(r, http.MethodGet, "/ready", nil); rec.Code != tt.status {
				t.Fatalf("expected readiness %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
