package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cxr-assist-server/internal/api"
	"github.com/cxr-assist-server/internal/app"
	"github.com/cxr-assist-server/internal/config"
	"github.com/cxr-assist-server/internal/logging"
)

var version = "dev"

func main() {
	var configFile string

	root := &cobra.Command{
		Use:           "server",
		Short:         "Run the CXR assist HTTP API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configFile)
		},
	}
	root.Flags().StringVar(&configFile, "config", "", "config file (default: ./config.yaml)")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFile string) error {
	var (
		configManager *config.Manager
		err           error
	)
	if configFile != "" {
		configManager, err = config.NewManagerWithFile(configFile)
	} else {
		configManager, err = config.NewManager()
	}
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := configManager.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := configManager.GetConfig()
	logger, logCloser, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logCloser.Close()

	hub := api.NewEventHub(logger)
	components, err := app.Build(ctx, configManager, logger, app.Options{Version: version, Publisher: hub})
	if err != nil {
		return fmt.Errorf("initialize components: %w", err)
	}
	defer components.Close()

	server := api.NewServer(configManager, api.Dependencies{
		Scorer:   components.Scorer,
		Analysis: components.Analysis,
		Cases:    components.Cases,
		Health:   components.Health,
		Events:   hub,
	}, logger)

	logger.WithField("version", version).Infof("Starting CXR assist server on %s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
