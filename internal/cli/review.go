package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	appkit "github.com/cxr-assist-server/internal/app"
	"github.com/cxr-assist-server/internal/review"
)

func (a *app) reviewCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Export or import clinician reviews",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "-", "JSON file to write or read (- for stdout/stdin)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "export",
			Short: "Write every review as JSON",
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := a.reviewStore()
				if err != nil {
					return err
				}
				defer store.Close()

				var w io.Writer = cmd.OutOrStdout()
				if file != "-" {
					f, err := os.Create(file)
					if err != nil {
						return fmt.Errorf("create %s: %w", file, err)
					}
					defer f.Close()
					w = f
				}
				return store.ExportJSON(cmd.Context(), w)
			},
		},
		&cobra.Command{
			Use:   "import",
			Short: "Load reviews from a JSON export; invalid entries are skipped",
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := a.reviewStore()
				if err != nil {
					return err
				}
				defer store.Close()

				var r io.Reader = cmd.InOrStdin()
				if file != "-" {
					f, err := os.Open(file)
					if err != nil {
						return fmt.Errorf("open %s: %w", file, err)
					}
					defer f.Close()
					r = f
				}

				imported, skipped, err := store.ImportJSON(cmd.Context(), r)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d reviews, skipped %d\n", imported, skipped)
				return err
			},
		},
	)
	return cmd
}

// reviewStore opens the review store matching the configured driver.
func (a *app) reviewStore() (review.Store, error) {
	m, err := a.config()
	if err != nil {
		return nil, err
	}
	return appkit.OpenReviewStore(*m.GetDatabaseConfig())
}
