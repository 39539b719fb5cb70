package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/walletledger/internal/adapter/http/handler"
	"github.com/iho/walletledger/internal/adapter/http/middleware"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/usecase"
)

// RouterConfig holds dependencies for the router. Optional fields left nil
// switch the matching middleware off.
type RouterConfig struct {
	WalletHandler         *handler.WalletHandler
	TransferHandler       *handler.TransferHandler
	ReconciliationHandler *handler.ReconciliationHandler
	HealthHandler         *handler.HealthHandler

	IdempotencyStore usecase.IdempotencyStore
	RateLimiter      *middleware.RateLimiter
	TokenVerifier    middleware.TokenVerifier
	HTTPMetrics      *middleware.HTTPMetrics
	MetricsHandler   http.Handler
	Logger           *zerolog.Logger
	CORSOrigins      []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
		r.Use(middleware.NewLoggingMiddleware(logger).Wrap)
	}
	r.Use(middleware.Recoverer(logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Wrap)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	requireRole := func(role domain.Role) func(http.Handler) http.Handler {
		if cfg.TokenVerifier == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RequireRole(role)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TokenVerifier != nil {
			r.Use(middleware.Authenticate(cfg.TokenVerifier))
		}
		// Runs after authentication so stored responses are scoped per caller.
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore).Wrap)
		}

		r.Route("/wallets", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleViewer))
				r.Get("/", cfg.WalletHandler.List)
				r.Get("/owner/{ownerID}", cfg.WalletHandler.GetByOwner)
				r.Get("/{id}", cfg.WalletHandler.Get)
				r.Get("/{id}/history", cfg.WalletHandler.History)
				r.Get("/{id}/events", cfg.WalletHandler.Events)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleOperator))
				r.Post("/", cfg.WalletHandler.Create)
				r.Post("/{id}/deposit", cfg.WalletHandler.Deposit)
				r.Post("/{id}/withdraw", cfg.WalletHandler.Withdraw)
			})
		})

		r.With(requireRole(domain.RoleOperator)).Post("/transfers", cfg.TransferHandler.Create)

		r.Route("/reconciliation", func(r chi.Router) {
			r.Use(requireRole(domain.RoleAdmin))
			r.Get("/report", cfg.ReconciliationHandler.Report)
			r.Get("/wallets/{id}", cfg.ReconciliationHandler.Wallet)
			r.Post("/wallets/{id}/rebuild", cfg.ReconciliationHandler.Rebuild)
		})
	})

	return r
}
