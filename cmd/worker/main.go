package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"bustrack/internal/cache"
	"bustrack/internal/config"
	"bustrack/internal/database"
	"bustrack/internal/log"
	"bustrack/internal/queue"
	"bustrack/internal/repository"
	"bustrack/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	if cfg.Database.Driver != "postgres" {
		logger.Fatal().Str("driver", cfg.Database.Driver).Msg("worker requires the postgres driver")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(repository.NewHistoryRepository(pool), cfg.History.Retention, nil, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Redis.Stream,
		cfg.Redis.Group,
		cfg.Redis.Consumer,
		cfg.History.ClaimInterval,
		logger,
		processor,
	)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	if err := waitForConsumer(ctx, done, shutdownGrace); err != nil {
		logger.Error().Err(err).Msg("consumer stopped")
		return
	}
	logger.Info().Msg("worker exited cleanly")
}

const shutdownGrace = 15 * time.Second

// waitForConsumer blocks until the consumer returns. After ctx is
// cancelled it allows grace for the in-flight message to be acked.
// Cancellation itself is a clean exit.
func waitForConsumer(ctx context.Context, done <-chan error, grace time.Duration) error {
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		select {
		case err = <-done:
		case <-time.After(grace):
			return errors.New("consumer did not stop within the shutdown grace period")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
