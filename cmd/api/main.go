package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bustrack/internal/cache"
	"bustrack/internal/config"
	"bustrack/internal/database"
	"bustrack/internal/handlers"
	"bustrack/internal/jobs"
	"bustrack/internal/log"
	"bustrack/internal/metrics"
	"bustrack/internal/publisher"
	"bustrack/internal/queue"
	"bustrack/internal/ratelimit"
	"bustrack/internal/realtime"
	"bustrack/internal/repository"
	"bustrack/internal/routing"
	"bustrack/internal/seed"
	"bustrack/internal/server"
	"bustrack/internal/service"
	"bustrack/internal/storage"
	"bustrack/internal/tasks"
)

type backend struct {
	buses    service.BusStore
	riders   service.RiderStore
	sessions service.SessionStore
	history  service.HistoryStore
	pool     *pgxpool.Pool
	redis    *redis.Client
	checks   []handlers.HealthCheck
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()
	collector := metrics.NewCollector()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("failed to open backend")
	}

	fleet := service.NewFleetService(b.buses, b.riders, cfg.Tracking.ActiveWindow, logger)
	if b.pool == nil {
		if _, err := seed.Run(ctx, fleet, b.buses, logger); err != nil {
			logger.Fatal().Err(err).Msg("seed in-memory store failed")
		}
	}

	var archiver service.Archiver
	if cfg.Storage.Enabled {
		objectStore, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init object store")
		}
		if err := objectStore.EnsureBuckets(ctx); err != nil {
			logger.Warn().Err(err).Msg("ensure buckets failed")
		}
		archiver = objectStore
	}

	resolver := routing.NewResolver(cfg.Routing, logger, routing.WithObserver(collector))
	auth := service.NewAuthService(b.riders, b.sessions, cfg.Session, logger)
	reports := service.NewReportService(b.buses, b.riders, b.history, archiver, cfg.Tracking.ActiveWindow)
	routes := service.NewRouteService(fleet, resolver)

	// Accepted locations go to the stream when Redis is present and are
	// written straight to history otherwise.
	var (
		sinks  []realtime.EventSink
		pruner jobs.Enqueuer
	)
	if b.redis != nil {
		producer := queue.NewProducer(b.redis, cfg.Redis.Stream, collector)
		sinks = append(sinks, producer)
		pruner = producer
	} else {
		processor := tasks.NewProcessor(b.history, cfg.History.Retention, collector, logger)
		sinks = append(sinks, processor)
		pruner = processor
	}

	var nats *publisher.NATSPublisher
	if cfg.NATS.URL != "" {
		nats, err = publisher.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, collector, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, fan-out disabled")
		} else {
			sinks = append(sinks, nats)
		}
	}

	limiter := newLimiter(cfg, b.redis, logger)
	channel := realtime.NewChannel(
		realtime.NewRegistry(logger),
		b.buses,
		logger,
		realtime.WithLimiter(limiter),
		realtime.WithSinks(sinks...),
		realtime.WithObserver(collector),
	)

	handlerSet := handlers.NewHandlerSet(handlers.Dependencies{
		Config:  cfg,
		Log:     logger,
		Auth:    auth,
		Fleet:   fleet,
		Reports: reports,
		Routes:  routes,
		Channel: channel,
		Limiter: limiter,
		Metrics: collector.Handler(),
		Checks:  b.checks,
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(pruner, cfg.History.PruneSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, b, nats)
}

func openBackend(ctx context.Context, cfg *config.AppConfig) (*backend, error) {
	if cfg.Database.Driver == "memory" {
		store := repository.NewMemoryStore()
		return &backend{
			buses:    store.Buses(),
			riders:   store.Riders(),
			sessions: store.Sessions(),
			history:  store.History(),
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &backend{
		buses:    repository.NewBusRepository(pool),
		riders:   repository.NewRiderRepository(pool),
		sessions: repository.NewSessionRepository(redisClient),
		history:  repository.NewHistoryRepository(pool),
		pool:     pool,
		redis:    redisClient,
		checks: []handlers.HealthCheck{
			{Name: "database", Ping: pool.Ping},
			{Name: "cache", Ping: cache.Ping(redisClient)},
		},
	}, nil
}

func newLimiter(cfg *config.AppConfig, client *redis.Client, logger zerolog.Logger) ratelimit.Limiter {
	switch {
	case !cfg.RateLimit.Enabled:
		return ratelimit.Unlimited{}
	case client != nil:
		return ratelimit.NewRedisLimiter(client, cfg.RateLimit, logger)
	default:
		return ratelimit.NewMemoryLimiter(cfg.RateLimit)
	}
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, b *backend, nats *publisher.NATSPublisher) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	if nats != nil {
		nats.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
