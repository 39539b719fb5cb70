package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/walletledger/internal/adapter/http"
	"github.com/iho/walletledger/internal/adapter/http/handler"
	"github.com/iho/walletledger/internal/adapter/http/middleware"
	"github.com/iho/walletledger/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/walletledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/walletledger/internal/adapter/repository/redis"
	sqliteRepo "github.com/iho/walletledger/internal/adapter/repository/sqlite"
	"github.com/iho/walletledger/internal/domain"
	"github.com/iho/walletledger/internal/infrastructure/auth"
	"github.com/iho/walletledger/internal/infrastructure/config"
	"github.com/iho/walletledger/internal/infrastructure/eventpublisher"
	"github.com/iho/walletledger/internal/infrastructure/idgen"
	"github.com/iho/walletledger/internal/infrastructure/logger"
	"github.com/iho/walletledger/internal/infrastructure/metrics"
	"github.com/iho/walletledger/internal/infrastructure/postgres"
	"github.com/iho/walletledger/internal/infrastructure/rabbitmq"
	"github.com/iho/walletledger/internal/infrastructure/redis"
	"github.com/iho/walletledger/internal/infrastructure/scheduler"
	"github.com/iho/walletledger/internal/infrastructure/sqlite"
	"github.com/iho/walletledger/internal/usecase"
)

const limiterIdleTimeout = 10 * time.Minute

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Logger = logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

// run serves until ctx is cancelled, then drains the HTTP server and the
// background workers.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      a.router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.publisher.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.rateLimiter != nil {
		g.Go(func() error {
			cleanupLimiters(gctx, a.rateLimiter, logger)
			return nil
		})
	}

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")

		if a.scheduler != nil {
			<-a.scheduler.Stop().Done()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func cleanupLimiters(ctx context.Context, rl *middleware.RateLimiter, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.CleanupLimiters(limiterIdleTimeout); n > 0 {
				logger.Debug().Int("removed", n).Msg("cleaned up idle rate limiters")
			}
		}
	}
}

// app is the fully wired service.
type app struct {
	router      http.Handler
	publisher   *eventpublisher.EventPublisher
	scheduler   *scheduler.Scheduler
	rateLimiter *middleware.RateLimiter
	closers     []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// storage is the set of persistence ports one driver provides.
type storage struct {
	txManager   usecase.TransactionManager
	events      usecase.EventStore
	projections usecase.ProjectionRepository
	outbox      usecase.OutboxRepository
	check       handler.HealthCheck
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, ids usecase.IDGenerator, clock domain.Clock, logger zerolog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
			DatabaseURL:     cfg.DatabaseURL,
			MaxConns:        cfg.DatabaseMaxConns,
			MinConns:        cfg.DatabaseMinConns,
			MaxConnLifetime: time.Hour,
			ConnectTimeout:  cfg.DatabaseTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		logger.Info().Msg("connected to postgres")

		retrier := postgresRepo.NewRetrier(postgresRepo.WithRetryLogger(logger))
		return &storage{
			txManager:   postgresRepo.NewTxManager(pool, retrier),
			events:      postgresRepo.NewEventStore(pool, ids, clock, retrier),
			projections: postgresRepo.NewProjectionRepository(pool),
			outbox:      postgresRepo.NewOutboxRepository(pool),
			check:       pool.Ping,
			close:       pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := sqlite.RunMigrations(db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite database")

		store := sqliteRepo.NewStore(db, ids, clock)
		return &storage{
			txManager:   store,
			events:      store,
			projections: store,
			outbox:      store,
			check:       db.PingContext,
			close:       func() { _ = db.Close() },
		}, nil

	case config.DriverMemory:
		logger.Warn().Msg("using in-memory storage; wallets are lost on restart")
		store := memory.NewStore()
		return &storage{
			txManager:   store,
			events:      store,
			projections: store,
			outbox:      store,
			check:       func(context.Context) error { return nil },
			close:       func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	clock := domain.SystemClock{}
	ids := idgen.NewULIDGenerator()

	store, err := openStorage(ctx, cfg, ids, clock, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.close)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg)

	checks := map[string]handler.HealthCheck{cfg.StorageDriver: store.check}

	repoOpts := []usecase.WalletRepositoryOption{
		usecase.WithOutbox(store.outbox, ids),
		usecase.WithMetrics(appMetrics),
	}

	var idempotencyStore usecase.IdempotencyStore
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL, redis.Options{PoolSize: cfg.RedisPoolSize}, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })

		idempotencyStore = redisRepo.NewIdempotencyStore(client)
		repoOpts = append(repoOpts, usecase.WithProjectionCache(redisRepo.NewCache(client), cfg.CacheTTL))
		checks["redis"] = redis.HealthCheck(client)
	} else {
		logger.Warn().Msg("REDIS_URL not set; idempotency keys and projection caching are disabled")
	}

	repo := usecase.NewWalletRepository(store.txManager, store.events, store.projections, clock, repoOpts...)

	walletUC := usecase.NewWalletUseCase(repo, ids, idgen.NewUUIDGenerator(), appMetrics)
	queryUC := usecase.NewWalletQueryUseCase(repo)
	reconciliationUC := usecase.NewReconciliationUseCase(repo, appMetrics)

	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled {
		verifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
		logger.Info().Msg("JWT authentication enabled")
	}

	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	httpLogger := logger.With().Str("component", "http").Logger()
	a.router = httpAdapter.NewRouter(httpAdapter.RouterConfig{
		WalletHandler:         handler.NewWalletHandler(walletUC, queryUC),
		TransferHandler:       handler.NewTransferHandler(walletUC),
		ReconciliationHandler: handler.NewReconciliationHandler(reconciliationUC),
		HealthHandler:         handler.NewHealthHandler(checks),
		IdempotencyStore:      idempotencyStore,
		RateLimiter:           a.rateLimiter,
		TokenVerifier:         verifier,
		HTTPMetrics:           middleware.NewHTTPMetrics(reg),
		MetricsHandler:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:                &httpLogger,
		CORSOrigins:           cfg.CORSAllowedOrigins,
	})

	publisher, err := newEventSink(cfg, logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := publisher.(interface{ Close() }); ok {
		a.closers = append(a.closers, closer.Close)
	}
	a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: store.outbox,
		Publisher:  publisher,
		Recorder:   appMetrics,
		Clock:      clock,
		Logger:     logger,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})

	if cfg.ReconcileSchedule != "" {
		a.scheduler = scheduler.New(reconciliationUC, logger)
		if err := a.scheduler.ScheduleReconciliation(cfg.ReconcileSchedule); err != nil {
			return nil, err
		}
	}

	ready = true
	return a, nil
}

// newEventSink picks where outbox events go: RabbitMQ when configured,
// otherwise the log.
func newEventSink(cfg *config.Config, logger zerolog.Logger) (eventpublisher.Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Info().Msg("AMQP_URL not set; outbox events will be logged")
		return eventpublisher.NewLogPublisher(logger), nil
	}

	p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("exchange", cfg.AMQPExchange).Msg("publishing outbox events to rabbitmq")
	return p, nil
}
