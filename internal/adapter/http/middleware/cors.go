package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows browser clients from origins to call the API. An empty list
// disables cross-origin access.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders:   []string{IdempotencyReplayHeader, "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
