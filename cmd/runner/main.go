package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"mediabridge/internal/catalog"
	"mediabridge/internal/infra"
	"mediabridge/internal/node"
	"mediabridge/internal/piapi"
	"mediabridge/internal/storage"
	"mediabridge/pkg/zip"
)

// runner executes a single node from the command line: useful for trying a
// descriptor out without standing up the API service.
func main() {
	var (
		nodeName   = flag.String("node", "", "descriptor name to execute")
		paramsPath = flag.String("params", "", "path to a JSON file with parameter values (- for stdin)")
		wait       = flag.Bool("wait", true, "poll the task to completion")
		outDir     = flag.String("out", "", "download result media into this directory")
		bundlePath = flag.String("bundle", "", "additionally pack downloaded media into this zip file (requires -out)")
	)
	flag.Parse()

	if *nodeName == "" {
		fmt.Fprintln(os.Stderr, "usage: runner -node <name> [-params file.json] [-wait=false] [-out dir] [-bundle out.zip]")
		os.Exit(2)
	}
	if *bundlePath != "" && *outDir == "" {
		fmt.Fprintln(os.Stderr, "-bundle requires -out")
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	params, err := loadParams(*paramsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: load params")
	}

	cat, err := catalog.LoadDir(cfg.DescriptorDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: load catalog")
	}

	client, err := piapi.NewClient(piapi.Options{
		APIKey:  cfg.PiAPIKey,
		BaseURL: cfg.PiAPIBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: build api client")
	}

	var archiver node.Archiver
	if *outDir != "" {
		store, err := storage.NewFileStore(*outDir)
		if err != nil {
			logger.Fatal().Err(err).Msg("runner: open output directory")
		}
		archiver = storage.NewFileArchiver(store)
	}

	runner, err := node.NewRunner(node.Options{
		API:      client,
		Catalog:  cat,
		Archiver: archiver,
		Logger:   &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: build runner")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run, err := runner.Execute(ctx, *nodeName, params, *wait)
	if err != nil {
		logger.Fatal().Err(err).Msg("runner: execution failed")
	}

	if *bundlePath != "" && len(run.Archived) > 0 {
		if err := writeBundle(*outDir, run.Archived, *bundlePath); err != nil {
			logger.Fatal().Err(err).Msg("runner: write bundle")
		}
		logger.Info().Str("path", *bundlePath).Int("assets", len(run.Archived)).Msg("runner: bundle written")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(run); err != nil {
		logger.Fatal().Err(err).Msg("runner: encode result")
	}
}

func loadParams(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	return params, nil
}

func writeBundle(outDir string, keys []string, bundlePath string) error {
	assets := make([]zip.Asset, 0, len(keys))
	for _, key := range keys {
		data, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(key)))
		if err != nil {
			return fmt.Errorf("read archived asset: %w", err)
		}
		assets = append(assets, zip.Asset{Filename: filepath.Base(key), Data: data})
	}
	archive, err := zip.Bundle(assets)
	if err != nil {
		return err
	}
	return os.WriteFile(bundlePath, archive, 0o644)
}
