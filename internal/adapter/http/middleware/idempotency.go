package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/iho/walletledger/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency keys.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayHeader marks a response served from the store.
	IdempotencyReplayHeader = "X-Idempotency-Replay"

	idempotencyTTL = 24 * time.Hour
	maxKeyLength   = 255
)

// storedResponse is what the store keeps for a completed request.
type storedResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyMiddleware replays the first response of a mutating request
// for every retry that carries the same Idempotency-Key.
type IdempotencyMiddleware struct {
	store usecase.IdempotencyStore
	ttl   time.Duration
}

// NewIdempotencyMiddleware creates a new IdempotencyMiddleware.
func NewIdempotencyMiddleware(store usecase.IdempotencyStore) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{store: store, ttl: idempotencyTTL}
}

// Wrap wraps an http.Handler with idempotency checking.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			writeAuthError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}

		scoped := scopeKey(r, key)

		exists, cached, err := m.store.CheckAndSet(r.Context(), scoped, nil, m.ttl)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("idempotency check failed")
			writeAuthError(w, http.StatusInternalServerError, "idempotency check failed")
			return
		}

		if exists {
			var stored storedResponse
			if len(cached) == 0 || json.Unmarshal(cached, &stored) != nil || stored.Status == 0 {
				writeAuthError(w, http.StatusConflict, "a request with this idempotency key is still in progress")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(IdempotencyReplayHeader, "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: w,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}

		completed := false
		defer func() {
			if !completed {
				// The handler panicked; free the key before the panic reaches
				// the recovery middleware.
				m.release(scoped)
			}
		}()

		next.ServeHTTP(recorder, r)
		completed = true

		if recorder.statusCode >= http.StatusInternalServerError {
			m.release(scoped)
			return
		}

		body := recorder.body.Bytes()
		if !json.Valid(body) {
			body, _ = json.Marshal(string(body))
		}
		data, err := json.Marshal(storedResponse{Status: recorder.statusCode, Body: body})
		if err != nil {
			m.release(scoped)
			return
		}
		if err := m.store.Update(context.WithoutCancel(r.Context()), scoped, data, m.ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to store idempotent response")
		}
	})
}

func (m *IdempotencyMiddleware) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.store.Release(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency key")
	}
}

// scopeKey ties a client key to the caller and the route so that two callers
// or two endpoints never share a stored response.
func scopeKey(r *http.Request, key string) string {
	subject := "anonymous"
	if p, ok := PrincipalFromContext(r.Context()); ok {
		subject = p.Subject
	}
	return strings.Join([]string{subject, r.Method, r.URL.Path, key}, ":")
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
