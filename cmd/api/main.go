package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mediabridge/internal/catalog"
	"mediabridge/internal/history"
	"mediabridge/internal/http/handlers"
	"mediabridge/internal/http/httpapi"
	"mediabridge/internal/infra"
	"mediabridge/internal/node"
	"mediabridge/internal/piapi"
	"mediabridge/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	cat, err := catalog.LoadDir(cfg.DescriptorDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load descriptor catalog")
	}
	logger.Info().Int("nodes", cat.Len()).Str("dir", cfg.DescriptorDir).Msg("catalog loaded")

	client, err := piapi.NewClient(piapi.Options{
		APIKey:  cfg.PiAPIKey,
		BaseURL: cfg.PiAPIBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build api client")
	}

	ctx := context.Background()

	var recorder node.Recorder
	var runs handlers.RunStore
	if cfg.HistoryEnabled() {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		store := history.NewStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare run history schema")
		}
		recorder = store
		runs = store
		logger.Info().Msg("run history enabled")
	}

	var archiver node.Archiver
	if cfg.ArchiveEnabled() {
		s3, err := storage.NewS3Archiver(ctx, cfg, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect object storage")
		}
		archiver = s3
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("result archive enabled")
	}

	runner, err := node.NewRunner(node.Options{
		API:      client,
		Catalog:  cat,
		Recorder: recorder,
		Archiver: archiver,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build runner")
	}

	app := handlers.NewApp(cat, runner, runs, logger)
	router := httpapi.NewRouter(app, cfg)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
