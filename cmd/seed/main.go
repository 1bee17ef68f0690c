package main

import (
	"context"
	"time"

	"bustrack/internal/config"
	"bustrack/internal/database"
	"bustrack/internal/log"
	"bustrack/internal/repository"
	"bustrack/internal/seed"
	"bustrack/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	if cfg.Database.Driver != "postgres" {
		logger.Fatal().Msg("seeding needs the postgres driver; the memory driver seeds itself at startup")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate failed")
	}

	buses := repository.NewBusRepository(pool)
	fleet := service.NewFleetService(buses, repository.NewRiderRepository(pool), cfg.Tracking.ActiveWindow, logger)
	if _, err := seed.Run(ctx, fleet, buses, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}
