package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/bookmeta/internal/config"
	"github.com/jonathan/bookmeta/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP adapter",
	Long: `Start an HTTP server exposing GET /health, GET /identify and GET /cover.

Lookup routes require a bearer token when JWT_SECRET is set.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides listen_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}

	jwtConfig, err := config.OptionalJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to create JWT config: %w", err)
	}
	if jwtConfig == nil {
		logger.Warn("JWT_SECRET not set; lookup routes are unauthenticated")
	}

	a, err := openApp(cmd.Context(), cfg, logger, true)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Addr:       cfg.ListenAddr,
		Source:     a.source,
		Timeout:    cfg.Timeout(),
		JWT:        jwtConfig,
		Logger:     logger,
		OnShutdown: a.Close,
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(cmd.Context())
}
