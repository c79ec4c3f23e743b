package main

import (
	"os"

	"github.com/rs/zerolog"

	"media-fetcher/internal/cache"
	"media-fetcher/internal/config"
	"media-fetcher/internal/database"
	"media-fetcher/internal/engine"
	"media-fetcher/internal/history"
	"media-fetcher/internal/server"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load("config.json")
	if err != nil {
		logger.Warn().Err(err).Msg("config.json invalid, using defaults")
	}

	store, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create cache directory")
	}

	db, err := database.Init(cfg.CacheDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init database")
	}

	repo, err := history.NewRepository(db)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init history repository")
	}

	eng := engine.New(cfg, store, repo, logger)
	srv := server.New(cfg, store, eng, repo, logger)

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
