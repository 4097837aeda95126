package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dafibh/loansync/internal/auth"
	"github.com/dafibh/loansync/internal/commands"
	"github.com/dafibh/loansync/internal/config"
	"github.com/dafibh/loansync/internal/domain"
	"github.com/dafibh/loansync/internal/repository/onedrive"
	"github.com/dafibh/loansync/internal/repository/session"
	"github.com/dafibh/loansync/internal/repository/storage"
	"github.com/dafibh/loansync/internal/service"
)

func main() {
	level := zerolog.WarnLevel
	if os.Getenv("LOANCTL_DEBUG") != "" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		// schedule works offline; drive commands report the error
		logger.Debug().Err(err).Msg("Configuration incomplete")
		app := &commands.App{ConfigErr: err, Logger: logger}
		if err := commands.NewRootCommand(app).ExecuteContext(context.Background()); err != nil {
			os.Exit(1)
		}
		return
	}

	tokenClient := auth.NewTokenClient(cfg.Drive, nil)
	app := &commands.App{
		Config:     cfg,
		Tokens:     session.NewFileStore(cfg.TokenFile),
		OAuth:      tokenClient,
		BlobStores: blobStores(cfg, tokenClient, logger),
		Logger:     logger,
	}

	if err := commands.NewRootCommand(app).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func blobStores(cfg *config.Config, refresher domain.TokenRefresher, logger zerolog.Logger) service.BlobStoreFactory {
	if cfg.StorageBackend == config.StorageS3 {
		return func(domain.TokenProvider, func()) domain.BlobStore {
			store, err := storage.NewS3BlobStore(context.Background(), cfg.S3, logger)
			if err != nil {
				logger.Fatal().Err(err).Msg("Failed to initialize S3 storage")
			}
			return store
		}
	}
	return func(tokens domain.TokenProvider, onAuthFailed func()) domain.BlobStore {
		return onedrive.NewClient(cfg.Drive.APIURL, tokens, refresher, onedrive.Options{
			RateLimit:    cfg.Drive.RateLimit,
			OnAuthFailed: onAuthFailed,
			Logger:       logger,
		})
	}
}
