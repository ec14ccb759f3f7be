package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cxr-assist-server/internal/database"
)

func (a *app) migrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "postgres URL (default: built from the database config section)")

	run := func(cmd *cobra.Command, fn func(*database.MigrationRunner) error) error {
		url, err := a.postgresURL(databaseURL)
		if err != nil {
			return err
		}
		logger, err := a.log()
		if err != nil {
			return err
		}
		runner, err := database.NewMigrationRunner(url, logger)
		if err != nil {
			return err
		}
		defer runner.Close()
		return fn(runner)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, func(r *database.MigrationRunner) error { return r.Up(cmd.Context()) })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, func(r *database.MigrationRunner) error { return r.Down(cmd.Context()) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, func(r *database.MigrationRunner) error {
					version, dirty, err := r.Version()
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "version: %d dirty: %t\n", version, dirty)
					return err
				})
			},
		},
	)
	return cmd
}

// postgresURL returns override, or the configured Postgres URL. SQLite
// databases create their schema on open and have no migrations.
func (a *app) postgresURL(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	m, err := a.config()
	if err != nil {
		return "", err
	}
	cfg := m.GetDatabaseConfig()
	if cfg.Driver != "postgres" {
		return "", fmt.Errorf("database driver is %q; migrations apply to postgres only", cfg.Driver)
	}
	return database.ConfigFromDomain(*cfg).URL(), nil
}
