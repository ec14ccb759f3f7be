package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/service"
)

func (a *app) scoreCmd() *cobra.Command {
	var findingsPath, vitalsPath string

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute the risk score for findings and vitals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if findingsPath == "" && vitalsPath == "" {
				return fmt.Errorf("at least one of --findings and --vitals is required")
			}
			var in service.RiskInput
			if findingsPath != "" {
				if err := readJSON(cmd, findingsPath, &in.Findings); err != nil {
					return err
				}
			}
			if vitalsPath != "" {
				if err := readJSON(cmd, vitalsPath, &in.Vitals); err != nil {
					return err
				}
			}

			scorer, err := a.scorer()
			if err != nil {
				return err
			}
			return writeJSON(cmd, scorer.AssessRisk(in))
		},
	}
	cmd.Flags().StringVar(&findingsPath, "findings", "", "findings JSON file (object or list)")
	cmd.Flags().StringVar(&vitalsPath, "vitals", "", "vitals JSON file")
	return cmd
}

func (a *app) classifyCmd() *cobra.Command {
	var findingsPath string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Partition findings into high, moderate and low tiers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var findings domain.FindingSet
			if err := readJSON(cmd, findingsPath, &findings); err != nil {
				return err
			}
			scorer, err := a.scorer()
			if err != nil {
				return err
			}
			return writeJSON(cmd, scorer.Classifier.Classify(findings))
		},
	}
	cmd.Flags().StringVar(&findingsPath, "findings", "", "findings JSON file (object or list)")
	_ = cmd.MarkFlagRequired("findings")
	return cmd
}

func (a *app) validateVitalsCmd() *cobra.Command {
	var vitalsPath string

	cmd := &cobra.Command{
		Use:   "validate-vitals",
		Short: "Print warnings for out-of-range vital signs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var vitals domain.Measurements
			if err := readJSON(cmd, vitalsPath, &vitals); err != nil {
				return err
			}
			scorer, err := a.scorer()
			if err != nil {
				return err
			}

			warnings := scorer.Validator.Validate(vitals)
			if warnings == nil {
				warnings = []string{}
			}
			return writeJSON(cmd, map[string]interface{}{
				"warnings": warnings,
				"status":   scorer.Validator.ChartStatus(vitals),
			})
		},
	}
	cmd.Flags().StringVar(&vitalsPath, "vitals", "", "vitals JSON file")
	_ = cmd.MarkFlagRequired("vitals")
	return cmd
}

func (a *app) labsCmd() *cobra.Command {
	var labsPath string

	cmd := &cobra.Command{
		Use:   "labs",
		Short: "Compare lab values with reference ranges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var labs domain.Measurements
			if err := readJSON(cmd, labsPath, &labs); err != nil {
				return err
			}
			scorer, err := a.scorer()
			if err != nil {
				return err
			}

			results := scorer.Labs.Evaluate(labs)
			if results == nil {
				results = []domain.LabResult{}
			}
			return writeJSON(cmd, map[string]interface{}{"results": results})
		},
	}
	cmd.Flags().StringVar(&labsPath, "labs", "", "lab results JSON file")
	_ = cmd.MarkFlagRequired("labs")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	var casePath string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the one-line digest of a case",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var c domain.Case
			if err := readJSON(cmd, casePath, &c); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), service.SummarizeCase(&c))
			return err
		},
	}
	cmd.Flags().StringVar(&casePath, "case", "", "case JSON file")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var casePath, format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render a case, or a list of cases, as json or csv",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var record json.RawMessage
			if err := readJSON(cmd, casePath, &record); err != nil {
				return err
			}
			out, err := service.ExportRecords(record, service.ExportFormat(format))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out.Data)
			return err
		},
	}
	cmd.Flags().StringVar(&casePath, "case", "", "case JSON file (object or list)")
	cmd.Flags().StringVar(&format, "format", string(service.ExportJSON), "output format: json or csv")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}
