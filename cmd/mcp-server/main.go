package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cxr-assist-server/internal/app"
	"github.com/cxr-assist-server/internal/config"
	"github.com/cxr-assist-server/internal/logging"
	"github.com/cxr-assist-server/internal/mcp"
)

var version = "dev"

func main() {
	var configFile string

	root := &cobra.Command{
		Use:           "mcp-server",
		Short:         "Serve the CXR scoring tools over MCP",
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
	configManager, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	// stdout carries the protocol.
	logCfg := configManager.GetConfig().Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, logCloser, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logCloser.Close()

	components, err := app.Build(ctx, configManager, logger, app.Options{Version: version, WithoutInference: true})
	if err != nil {
		return fmt.Errorf("initialize components: %w", err)
	}
	defer components.Close()

	mcpServer, err := mcp.NewServer(configManager, components.Scorer, components.Cases, logger)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}

	if err := mcpServer.Start(ctx); err != nil {
		return err
	}
	logger.Info("MCP server stopped")
	return nil
}

func loadConfig(path string) (*config.Manager, error) {
	var (
		m   *config.Manager
		err error
	)
	if path != "" {
		m, err = config.NewManagerWithFile(path)
	} else {
		m, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return m, nil
}
