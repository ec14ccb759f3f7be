package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/service"
)

// FindingInput is one radiograph finding as a tool argument.
type FindingInput struct {
	Name        string   `json:"name" jsonschema:"finding name, e.g. pneumonia"`
	Probability *float64 `json:"probability,omitempty" jsonschema:"model probability in [0,1]; omit when unknown"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
}

// VitalsInput defines parameters for validate_vitals
type VitalsInput struct {
	Vitals map[string]any `json:"vitals" jsonschema:"vital signs keyed by name: temperature, heart_rate, systolic_bp, diastolic_bp, respiratory_rate, oxygen_saturation, pain_score"`
}

// VitalStatus is a chart status line.
type VitalStatus struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Abnormal bool   `json:"abnormal"`
}

// VitalsOutput defines the result of validate_vitals
type VitalsOutput struct {
	Warnings []string      `json:"warnings"`
	Status   []VitalStatus `json:"status"`
}

// LabsInput defines parameters for evaluate_labs
type LabsInput struct {
	LabResults map[string]any `json:"lab_results" jsonschema:"lab values keyed by test name, e.g. wbc, crp, sodium"`
}

// LabResult is one evaluated lab value.
type LabResult struct {
	Name   string   `json:"name"`
	Value  string   `json:"value"`
	Low    *float64 `json:"low,omitempty"`
	High   *float64 `json:"high,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	Status string   `json:"status"`
}

// LabsOutput defines the result of evaluate_labs
type LabsOutput struct {
	Results []LabResult `json:"results"`
}

// FindingsInput defines parameters for classify_findings
type FindingsInput struct {
	Findings []FindingInput `json:"findings"`
}

// RiskInput defines parameters for calculate_risk
type RiskInput struct {
	Findings []FindingInput `json:"findings,omitempty"`
	Vitals   map[string]any `json:"vitals,omitempty"`
}

// ConfidenceInput defines parameters for confidence_band
type ConfidenceInput struct {
	Score float64 `json:"score" jsonschema:"confidence value; values outside [0,1] are clamped"`
}

// CaseInput identifies a stored case.
type CaseInput struct {
	CaseID      int64  `json:"case_id"`
	ClinicianID string `json:"clinician_id,omitempty" jsonschema:"restrict lookups to this clinician's cases"`
}

// SummaryOutput defines the result of summarize_case
type SummaryOutput struct {
	CaseID  int64  `json:"case_id"`
	Summary string `json:"summary"`
}

// ExportInput defines parameters for export_case
type ExportInput struct {
	CaseID      int64  `json:"case_id"`
	Format      string `json:"format,omitempty" jsonschema:"json (default) or csv"`
	ClinicianID string `json:"clinician_id,omitempty"`
}

// ExportOutput defines the result of export_case
type ExportOutput struct {
	CaseID      int64  `json:"case_id"`
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// ListCasesInput defines parameters for list_cases
type ListCasesInput struct {
	ClinicianID string `json:"clinician_id,omitempty"`
	Search      string `json:"search,omitempty" jsonschema:"case-insensitive text matched against patient id, title and diagnosis"`
	Status      string `json:"status,omitempty" jsonschema:"active, reviewed, closed or archived"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// CaseListing is the compact form of a case in list_cases.
type CaseListing struct {
	ID               int64   `json:"id"`
	PatientID        string  `json:"patient_id,omitempty"`
	Title            string  `json:"case_title,omitempty"`
	Status           string  `json:"case_status"`
	PrimaryDiagnosis string  `json:"primary_diagnosis,omitempty"`
	RiskScore        float64 `json:"risk_score"`
	CreatedAt        string  `json:"created_at"`
}

// ListCasesOutput defines the result of list_cases
type ListCasesOutput struct {
	Cases []CaseListing `json:"cases"`
	Count int           `json:"count"`
}

func (s *Server) handleValidateVitals(ctx context.Context, req *mcp.CallToolRequest, in VitalsInput) (*mcp.CallToolResult, VitalsOutput, error) {
	s.logger.WithField("tool", "validate_vitals").Debug("Tool invoked")

	vitals := domain.MeasurementsFromMap(in.Vitals)
	out := VitalsOutput{
		Warnings: s.scorer.Validator.Validate(vitals),
		Status:   []VitalStatus{},
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	for _, st := range s.scorer.Validator.ChartStatus(vitals) {
		out.Status = append(out.Status, VitalStatus{Name: string(st.Name), Value: st.Value.String(), Abnormal: st.Abnormal})
	}
	return nil, out, nil
}

func (s *Server) handleEvaluateLabs(ctx context.Context, req *mcp.CallToolRequest, in LabsInput) (*mcp.CallToolResult, LabsOutput, error) {
	s.logger.WithField("tool", "evaluate_labs").Debug("Tool invoked")

	out := LabsOutput{Results: []LabResult{}}
	for _, r := range s.scorer.Labs.Evaluate(domain.MeasurementsFromMap(in.LabResults)) {
		out.Results = append(out.Results, LabResult{
			Name:   r.Name,
			Value:  r.Value.String(),
			Low:    r.Low,
			High:   r.High,
			Unit:   r.Unit,
			Status: string(r.Status),
		})
	}
	return nil, out, nil
}

func (s *Server) handleClassifyFindings(ctx context.Context, req *mcp.CallToolRequest, in FindingsInput) (*mcp.CallToolResult, domain.ClassifiedFindings, error) {
	s.logger.WithField("tool", "classify_findings").Debug("Tool invoked")

	findings, err := toFindingSet(in.Findings)
	if err != nil {
		return nil, domain.ClassifiedFindings{}, err
	}
	return nil, s.scorer.Classifier.Classify(findings), nil
}

func (s *Server) handleCalculateRisk(ctx context.Context, req *mcp.CallToolRequest, in RiskInput) (*mcp.CallToolResult, domain.RiskAssessment, error) {
	s.logger.WithField("tool", "calculate_risk").Debug("Tool invoked")

	findings, err := toFindingSet(in.Findings)
	if err != nil {
		return nil, domain.RiskAssessment{}, err
	}
	return nil, s.scorer.AssessRisk(service.RiskInput{
		Findings: findings,
		Vitals:   domain.MeasurementsFromMap(in.Vitals),
	}), nil
}

func (s *Server) handleConfidenceBand(ctx context.Context, req *mcp.CallToolRequest, in ConfidenceInput) (*mcp.CallToolResult, domain.ConfidenceBand, error) {
	s.logger.WithField("tool", "confidence_band").Debug("Tool invoked")
	return nil, s.scorer.Presenter.Band(in.Score), nil
}

func (s *Server) handleSummarizeCase(ctx context.Context, req *mcp.CallToolRequest, in CaseInput) (*mcp.CallToolResult, SummaryOutput, error) {
	s.logger.WithFields(logrus.Fields{"tool": "summarize_case", "case_id": in.CaseID}).Debug("Tool invoked")

	summary, err := s.cases.Summary(ctx, in.CaseID, in.ClinicianID)
	if err != nil {
		return nil, SummaryOutput{}, toolError(err)
	}
	return nil, SummaryOutput{CaseID: in.CaseID, Summary: summary}, nil
}

func (s *Server) handleExportCase(ctx context.Context, req *mcp.CallToolRequest, in ExportInput) (*mcp.CallToolResult, ExportOutput, error) {
	s.logger.WithFields(logrus.Fields{"tool": "export_case", "case_id": in.CaseID}).Debug("Tool invoked")

	format := service.ExportFormat(strings.ToLower(in.Format))
	if format == "" {
		format = service.ExportJSON
	}
	out, err := s.cases.Export(ctx, in.CaseID, in.ClinicianID, format)
	if err != nil {
		return nil, ExportOutput{}, toolError(err)
	}
	return nil, ExportOutput{
		CaseID:      in.CaseID,
		Format:      string(out.Format),
		ContentType: out.ContentType,
		Content:     string(out.Data),
	}, nil
}

func (s *Server) handleListCases(ctx context.Context, req *mcp.CallToolRequest, in ListCasesInput) (*mcp.CallToolResult, ListCasesOutput, error) {
	s.logger.WithField("tool", "list_cases").Debug("Tool invoked")

	cases, err := s.cases.List(ctx, domain.CaseFilter{
		ClinicianID: in.ClinicianID,
		Search:      in.Search,
		Status:      domain.CaseStatus(in.Status),
		Limit:       in.Limit,
		Offset:      in.Offset,
	})
	if err != nil {
		return nil, ListCasesOutput{}, toolError(err)
	}

	out := ListCasesOutput{Cases: make([]CaseListing, 0, len(cases))}
	for _, c := range cases {
		listing := CaseListing{
			ID:               c.ID,
			PatientID:        c.PatientID,
			Title:            c.Title,
			Status:           string(c.Status),
			PrimaryDiagnosis: c.PrimaryDiagnosis(),
			CreatedAt:        c.CreatedAt.UTC().Format(time.RFC3339),
		}
		if c.Risk != nil {
			listing.RiskScore = c.Risk.Score
		}
		out.Cases = append(out.Cases, listing)
	}
	out.Count = len(out.Cases)
	return nil, out, nil
}

func toFindingSet(in []FindingInput) (domain.FindingSet, error) {
	findings := make(domain.FindingSet, 0, len(in))
	for _, f := range in {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, domain.NewValidationError("findings", "every finding needs a name", nil)
		}
		findings = append(findings, domain.Finding{
			Name:        name,
			Probability: f.Probability,
			Location:    f.Location,
			Description: f.Description,
		})
	}
	return findings, nil
}

// toolError shortens lookup failures for the calling model.
func toolError(err error) error {
	if errors.Is(err, domain.ErrCaseNotFound) {
		return errors.New("case not found")
	}
	return err
}
