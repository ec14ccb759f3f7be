package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/repository"
	"github.com/cxr-assist-server/internal/service"
)

type stubConfig struct {
	cfg *domain.Config
}

func (s *stubConfig) GetConfig() *domain.Config                 { return s.cfg }
func (s *stubConfig) GetDatabaseConfig() *domain.DatabaseConfig { return &s.cfg.Database }
func (s *stubConfig) GetServerConfig() *domain.ServerConfig     { return &s.cfg.Server }
func (s *stubConfig) GetScoringConfig() *domain.ScoringConfig   { return &s.cfg.Scoring }
func (s *stubConfig) ReferenceTable() *domain.ReferenceTable    { return domain.DefaultReferenceTable() }
func (s *stubConfig) Reload() error                             { return nil }
func (s *stubConfig) Validate() error                           { return nil }

func createMockConfig() *domain.Config {
	return &domain.Config{
		MCP: domain.MCPConfig{
			ServerName:    "cxr-assist",
			ServerVersion: "v0.0.1",
			TransportType: TransportStdio,
		},
	}
}

func newTestServer(t *testing.T, withCases bool) (*Server, *service.CaseService) {
	t.Helper()
	logger, _ := test.NewNullLogger()

	scorer, err := service.NewScorer(service.DefaultScoringConfig(), nil, logger)
	require.NoError(t, err)

	var cases *service.CaseService
	if withCases {
		repo, err := repository.NewSQLiteRepository(filepath.Join(t.TempDir(), "cases.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		cases = service.NewCaseService(repo, scorer, logger)
	}

	server, err := NewServer(&stubConfig{cfg: createMockConfig()}, scorer, cases, logger)
	require.NoError(t, err)
	return server, cases
}

func connect(t *testing.T, server *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out interface{}) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s failed: %s", name, resultText(res))
	require.NoError(t, json.Unmarshal([]byte(resultText(res)), out))
}

func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestNewServer_RequiresScorer(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewServer(&stubConfig{cfg: createMockConfig()}, nil, nil, logger)
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	tests := []struct {
		name      string
		withCases bool
		want      []string
	}{
		{
			name: "scoring only",
			want: []string{"calculate_risk", "classify_findings", "confidence_band", "evaluate_labs", "validate_vitals"},
		},
		{
			name:      "with case store",
			withCases: true,
			want: []string{"calculate_risk", "classify_findings", "confidence_band", "evaluate_labs",
				"export_case", "list_cases", "summarize_case", "validate_vitals"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, tt.withCases)
			session := connect(t, server)

			res, err := session.ListTools(context.Background(), nil)
			require.NoError(t, err)

			var names []string
			for _, tool := range res.Tools {
				names = append(names, tool.Name)
			}
			sort.Strings(names)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestValidateVitalsTool(t *testing.T) {
	server, _ := newTestServer(t, false)
	session := connect(t, server)

	var out VitalsOutput
	callTool(t, session, "validate_vitals", map[string]any{
		"vitals": map[string]any{"temperature": 39.2, "oxygen_saturation": 90},
	}, &out)

	assert.Equal(t, []string{
		"High temperature: 39.2°C (normal: 36-37.5°C)",
		"Low oxygen saturation: 90% (normal: >95%)",
	}, out.Warnings)
}

func TestEvaluateLabsTool(t *testing.T) {
	server, _ := newTestServer(t, false)
	session := connect(t, server)

	var out LabsOutput
	callTool(t, session, "evaluate_labs", map[string]any{
		"lab_results": map[string]any{"sodium": 130, "wbc": "7.5"},
	}, &out)

	require.Len(t, out.Results, 2)
	byName := map[string]string{}
	for _, r := range out.Results {
		byName[r.Name] = r.Status
	}
	assert.Equal(t, "low", byName["sodium"])
	assert.Equal(t, "normal", byName["wbc"])
}

func TestClassifyFindingsTool(t *testing.T) {
	server, _ := newTestServer(t, false)
	session := connect(t, server)

	var out domain.ClassifiedFindings
	callTool(t, session, "classify_findings", map[string]any{
		"findings": []map[string]any{
			{"name": "pneumonia", "probability": 0.92, "location": "RLL"},
			{"name": "cardiomegaly", "probability": 0.45},
			{"name": "nodule", "probability": 0.1},
		},
	}, &out)

	require.Len(t, out.High, 1)
	assert.Equal(t, "pneumonia", out.High[0].Name)
	assert.Equal(t, "RLL", out.High[0].Location)
	assert.Len(t, out.Moderate, 1)
	assert.Len(t, out.Low, 1)
}

func TestClassifyFindingsTool_RejectsUnnamedFinding(t *testing.T) {
	server, _ := newTestServer(t, false)
	session := connect(t, server)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "classify_findings",
		Arguments: map[string]any{"findings": []map[string]any{{"name": " ", "probability": 0.5}}},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCalculateRiskTool(t *testing.T) {
	server, _ := newTestServer(t, false)
	session := connect(t, server)

	var out domain.RiskAssessment
	callTool(t, session, "calculate_risk", map[string]any{
		"findings": []map[string]any{{"name": "pneumothorax", "probability": 0.9}},
		"vitals":   map[string]any{"heart_rate": 130},
	}, &out)

	assert.InDelta(t, 0.37, out.Score, 1e-9)
	assert.Equal(t, []string{"Pneumothorax (90.0%)", "Tachycardia (130 bpm)"}, out.Factors)
	assert.Equal(t, domain.RiskBandModerate, out.Band)
}

func TestConfidenceBandTool(t *testing.T) {
	server, _ := newTestServer(t, false)
	session := connect(t, server)

	var out domain.ConfidenceBand
	callTool(t, session, "confidence_band", map[string]any{"score": 0.65}, &out)
	assert.Equal(t, domain.ConfidenceModerate, out.Level)

	callTool(t, session, "confidence_band", map[string]any{"score": -2}, &out)
	assert.Equal(t, 0.0, out.Score)
	assert.True(t, out.Clamped)
	assert.Equal(t, domain.ConfidenceVeryLow, out.Level)
}

func TestCaseTools(t *testing.T) {
	server, cases := newTestServer(t, true)
	session := connect(t, server)

	created, err := cases.Create(context.Background(), service.CaseDraft{
		ClinicianID: "dr-a",
		PatientID:   "P-42",
		Title:       "Dyspnea",
		Symptoms:    domain.Symptoms{"dyspnea"},
		Image: &domain.ImageAnalysis{
			Findings:          domain.FindingSet{{Name: "effusion", Probability: domain.Prob(0.7)}},
			OverallAssessment: domain.OverallAssessment{PrimaryDiagnosis: "Pleural effusion", Confidence: 0.7},
		},
	})
	require.NoError(t, err)

	var summary SummaryOutput
	callTool(t, session, "summarize_case", map[string]any{"case_id": created.ID}, &summary)
	assert.Contains(t, summary.Summary, "Patient ID: P-42")
	assert.Contains(t, summary.Summary, "AI Diagnosis: Pleural effusion")

	var export ExportOutput
	callTool(t, session, "export_case", map[string]any{"case_id": created.ID, "format": "CSV"}, &export)
	assert.Equal(t, "csv", export.Format)
	assert.Equal(t, "text/csv", export.ContentType)
	assert.Contains(t, export.Content, "P-42")

	var list ListCasesOutput
	callTool(t, session, "list_cases", map[string]any{"search": "effusion"}, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "Pleural effusion", list.Cases[0].PrimaryDiagnosis)
	assert.Equal(t, "active", list.Cases[0].Status)

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "summarize_case",
		Arguments: map[string]any{"case_id": created.ID, "clinician_id": "dr-b"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "case not found")
}
