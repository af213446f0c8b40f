package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonathan/bookmeta/internal/config"
	"github.com/jonathan/bookmeta/internal/db"
	"github.com/jonathan/bookmeta/internal/fetch"
	"github.com/jonathan/bookmeta/internal/source"
)

// loadConfig loads the effective configuration and installs the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, newLogger(os.Stderr, cfg.Verbose), nil
}

// newLogger builds a text logger. Output goes to stderr so stdout stays clean for records.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// buildFetcher assembles the transport chain described by cfg.
func buildFetcher(cfg *config.Config, logger *slog.Logger) (*fetch.Fetcher, error) {
	mode, err := fetch.ParseMode(cfg.FetchMode)
	if err != nil {
		return nil, err
	}
	credential, err := cfg.Credential()
	if err != nil {
		return nil, err
	}

	var fallback fetch.Transport
	switch cfg.FallbackTransport {
	case "browser":
		fallback = fetch.NewBrowserTransport(cfg.BrowserPath)
	case "", "process":
		fallback = fetch.NewProcessTransport(cfg.CurlPath, nil)
	default:
		return nil, fmt.Errorf("unknown fallback transport %q", cfg.FallbackTransport)
	}

	return fetch.NewFetcher(fetch.FetcherConfig{
		Primary:           fetch.NewSessionTransport(),
		Fallback:          fallback,
		Credential:        credential,
		Mode:              mode,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	}), nil
}

// app is the wired source plus the resources it holds open.
type app struct {
	source *source.Source
	db     *db.DB
}

// openApp builds the Source. When cfg has a database URL and useCache is set,
// catalog responses are cached in Postgres.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, useCache bool) (*app, error) {
	fetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{}
	var getter fetch.Getter = fetcher
	if useCache && cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, err
		}
		a.db = database
		getter = fetch.NewCachedFetcher(fetcher, database, &fetch.CachedFetcherConfig{
			CacheTTL: cfg.CacheTTL(),
			Logger:   logger,
		})
		logger.Debug("response cache enabled", "ttl", cfg.CacheTTL())
	}

	a.source = source.New(source.Config{
		Getter:     getter,
		Endpoints:  cfg.Endpoints(),
		BlockTerms: cfg.BlockTerms,
		Timeout:    cfg.Timeout(),
		Logger:     logger,
	})
	return a, nil
}

// Close releases the database pool, if any.
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}
