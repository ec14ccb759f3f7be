// Package cli implements the cxrctl operator commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cxr-assist-server/internal/config"
	"github.com/cxr-assist-server/internal/logging"
	"github.com/cxr-assist-server/internal/service"
)

// app carries state shared by the command tree.
type app struct {
	configFile string
	manager    *config.Manager
	logger     *logrus.Logger
}

// NewRootCommand builds the cxrctl command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "cxrctl",
		Short:         "Operator tool for the CXR assist server",
		Long:          "cxrctl scores findings and vitals offline, exports cases,\nruns database migrations and moves clinician reviews between stores.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/cxr-assist/config.yaml)")

	root.AddCommand(
		a.scoreCmd(),
		a.classifyCmd(),
		a.validateVitalsCmd(),
		a.labsCmd(),
		a.summaryCmd(),
		a.exportCmd(),
		a.migrateCmd(),
		a.reviewCmd(),
		a.setupCmd(),
	)
	return root
}

// Execute runs the command tree and reports errors on stderr.
func Execute(version string) int {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) config() (*config.Manager, error) {
	if a.manager != nil {
		return a.manager, nil
	}

	var (
		m   *config.Manager
		err error
	)
	if a.configFile != "" {
		m, err = config.NewManagerWithFile(a.configFile)
	} else {
		m, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	a.manager = m
	return m, nil
}

// log returns a logger writing to stderr so stdout stays machine-readable.
func (a *app) log() (*logrus.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	m, err := a.config()
	if err != nil {
		return nil, err
	}
	cfg := m.GetConfig().Logging
	cfg.Output = "stderr"
	logger, _, err := logging.NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	return logger, nil
}

func (a *app) scorer() (*service.Scorer, error) {
	m, err := a.config()
	if err != nil {
		return nil, err
	}
	logger, err := a.log()
	if err != nil {
		return nil, err
	}
	return service.NewScorer(*m.GetScoringConfig(), m.ReferenceTable(), logger)
}

// readJSON decodes path into v. "-" reads stdin.
func readJSON(cmd *cobra.Command, path string, v interface{}) error {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
