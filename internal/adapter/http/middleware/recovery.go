package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/walletledger/internal/adapter/http/dto"
)

// Recoverer turns a panicking handler into a 500 with the usual error body.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recoverer(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("request_id", chimiddleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("handler panicked")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(dto.ErrorResponse{
					Error:   http.StatusText(http.StatusInternalServerError),
					Message: "internal server error",
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}
