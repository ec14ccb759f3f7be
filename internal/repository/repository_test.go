package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
)

func newTestCase(t *testing.T, clinicianID, patientID, diagnosis string) *domain.Case {
	t.Helper()
	var vitals domain.Measurements
	require.NoError(t, json.Unmarshal([]byte(`{"temperature": 39.2, "heart_rate": "130"}`), &vitals))

	return &domain.Case{
		ExternalID:  uuid.New().String(),
		ClinicianID: clinicianID,
		PatientID:   patientID,
		Title:       "Chest film " + patientID,
		Symptoms:    domain.Symptoms{"cough", "fever"},
		Vitals:      vitals,
		AIDiagnosis: &domain.Diagnosis{
			IntegratedDiagnosis: &domain.IntegratedDiagnosis{PrimaryDiagnosis: diagnosis, Confidence: 0.8},
			Findings:            domain.FindingSet{{Name: "pneumonia", Probability: domain.Prob(0.85)}},
		},
		ConfidenceScores: domain.ScoreSet{{Name: "pneumonia", Score: 0.85}},
		Recommendations:  "Start antibiotics",
		Risk:             &domain.RiskAssessment{Score: 0.255, Factors: []string{"Pneumonia (85.0%)"}},
		Status:           domain.CaseActive,
	}
}

// runRepositoryContract exercises behaviour every CaseRepository must share.
func runRepositoryContract(t *testing.T, repo domain.CaseRepository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		c := newTestCase(t, "dr-a", "MRN-1", "Pneumonia")
		require.NoError(t, repo.CreateCase(ctx, c))
		assert.NotZero(t, c.ID)
		assert.False(t, c.CreatedAt.IsZero())

		got, err := repo.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ExternalID, got.ExternalID)
		assert.Equal(t, domain.Symptoms{"cough", "fever"}, got.Symptoms)
		assert.Equal(t, "Pneumonia", got.PrimaryDiagnosis())
		hr, ok := got.Vitals.Get("heart_rate")
		require.True(t, ok)
		assert.Equal(t, 130.0, hr.Value)
		assert.Equal(t, "130", hr.String())
		names := make([]string, len(got.Vitals))
		for i, v := range got.Vitals {
			names[i] = v.Name
		}
		assert.Equal(t, []string{"temperature", "heart_rate"}, names, "vital order survives storage")
		score, _ := got.ConfidenceScores.Get("pneumonia")
		assert.Equal(t, 0.85, score)
		require.NotNil(t, got.Risk)
		assert.Equal(t, []string{"Pneumonia (85.0%)"}, got.Risk.Factors)
		assert.Nil(t, got.ImageAnalysis)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.GetCase(ctx, 987654)
		assert.ErrorIs(t, err, domain.ErrCaseNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		require.NoError(t, repo.CreateCase(ctx, newTestCase(t, "dr-list", "ALPHA-1", "Pleural effusion")))
		require.NoError(t, repo.CreateCase(ctx, newTestCase(t, "dr-list", "BETA-2", "Pneumothorax")))
		require.NoError(t, repo.CreateCase(ctx, newTestCase(t, "dr-other", "GAMMA-3", "Pneumothorax")))

		mine, err := repo.ListCases(ctx, domain.CaseFilter{ClinicianID: "dr-list"})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, "BETA-2", mine[0].PatientID, "newest first")

		search, err := repo.ListCases(ctx, domain.CaseFilter{Search: "PNEUMOTHORAX"})
		require.NoError(t, err)
		assert.Len(t, search, 2)

		byPatient, err := repo.ListCases(ctx, domain.CaseFilter{Search: "alpha"})
		require.NoError(t, err)
		require.Len(t, byPatient, 1)
		assert.Equal(t, "ALPHA-1", byPatient[0].PatientID)

		paged, err := repo.ListCases(ctx, domain.CaseFilter{ClinicianID: "dr-list", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, "ALPHA-1", paged[0].PatientID)

		future := time.Now().Add(time.Hour)
		none, err := repo.ListCases(ctx, domain.CaseFilter{CreatedFrom: &future})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("update whitelisted fields", func(t *testing.T) {
		c := newTestCase(t, "dr-u", "MRN-U", "Pneumonia")
		require.NoError(t, repo.CreateCase(ctx, c))

		title := "Updated title"
		reviewed := domain.CaseReviewed
		diagnosis := &domain.Diagnosis{IntegratedDiagnosis: &domain.IntegratedDiagnosis{PrimaryDiagnosis: "Atelectasis"}}
		got, err := repo.UpdateCase(ctx, c.ID, domain.CaseUpdate{Title: &title, Status: &reviewed, AIDiagnosis: diagnosis})
		require.NoError(t, err)
		assert.Equal(t, "Updated title", got.Title)
		assert.Equal(t, domain.CaseReviewed, got.Status)
		assert.Equal(t, "Atelectasis", got.PrimaryDiagnosis())
		assert.Equal(t, "MRN-U", got.PatientID, "untouched fields are kept")

		found, err := repo.ListCases(ctx, domain.CaseFilter{Search: "atelectasis"})
		require.NoError(t, err)
		assert.Len(t, found, 1, "search follows the updated diagnosis")

		_, err = repo.UpdateCase(ctx, 987654, domain.CaseUpdate{Title: &title})
		assert.ErrorIs(t, err, domain.ErrCaseNotFound)

		_, err = repo.UpdateCase(ctx, c.ID, domain.CaseUpdate{})
		assert.ErrorIs(t, err, domain.ErrEmptyUpdate)
	})

	t.Run("search covers the diagnosis document", func(t *testing.T) {
		c := newTestCase(t, "dr-search", "MRN-S", "Pneumonia")
		c.AIDiagnosis.Findings = domain.FindingSet{{Name: "pneumomediastinum", Probability: domain.Prob(0.6)}}
		c.AIDiagnosis.ClinicalAnalysis = &domain.ClinicalAnalysis{
			ClinicalImpressions: []domain.ClinicalImpression{{Condition: "Septic shock", Probability: 0.4}},
		}
		require.NoError(t, repo.CreateCase(ctx, c))
		require.NoError(t, repo.CreateCase(ctx, newTestCase(t, "dr-search", "MRN-T", "Pneumonia")))

		byFinding, err := repo.ListCases(ctx, domain.CaseFilter{ClinicianID: "dr-search", Search: "Pneumomediastinum"})
		require.NoError(t, err)
		require.Len(t, byFinding, 1)
		assert.Equal(t, "MRN-S", byFinding[0].PatientID)

		byImpression, err := repo.ListCases(ctx, domain.CaseFilter{ClinicianID: "dr-search", Search: "septic"})
		require.NoError(t, err)
		assert.Len(t, byImpression, 1)

		wildcard, err := repo.ListCases(ctx, domain.CaseFilter{ClinicianID: "dr-search", Search: "%"})
		require.NoError(t, err)
		assert.Empty(t, wildcard, "wildcards in the term match literally")
	})

	t.Run("delete", func(t *testing.T) {
		c := newTestCase(t, "dr-d", "MRN-D", "Pneumonia")
		require.NoError(t, repo.CreateCase(ctx, c))

		require.NoError(t, repo.DeleteCase(ctx, c.ID))
		assert.ErrorIs(t, repo.DeleteCase(ctx, c.ID), domain.ErrCaseNotFound)
	})

	t.Run("counts", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.CreateCase(ctx, newTestCase(t, "dr-count", "P", "Pneumonia")))
		}
		closed := domain.CaseClosed
		list, err := repo.ListCases(ctx, domain.CaseFilter{ClinicianID: "dr-count"})
		require.NoError(t, err)
		_, err = repo.UpdateCase(ctx, list[0].ID, domain.CaseUpdate{Status: &closed})
		require.NoError(t, err)

		now := time.Now().UTC()
		counts, err := repo.CountCases(ctx, "dr-count", time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, int64(3), counts.Total)
		assert.Equal(t, int64(2), counts.Active)
		assert.Equal(t, int64(3), counts.ThisMonth)
		assert.Equal(t, int64(1), counts.ByStatus[domain.CaseClosed])

		later, err := repo.CountCases(ctx, "dr-count", now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), later.ThisMonth)
	})

	t.Run("audit log", func(t *testing.T) {
		for _, action := range []string{domain.ActionCreateCase, domain.ActionExportCase, domain.ActionDeleteCase} {
			entry := &domain.AuditEntry{ClinicianID: "dr-audit", Action: action, Details: "case 1"}
			require.NoError(t, repo.LogAction(ctx, entry))
			assert.NotZero(t, entry.ID)
		}
		require.NoError(t, repo.LogAction(ctx, &domain.AuditEntry{ClinicianID: "dr-else", Action: domain.ActionCreateCase}))

		recent, err := repo.RecentActivity(ctx, "dr-audit", 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, domain.ActionDeleteCase, recent[0].Action)
		assert.Equal(t, domain.ActionExportCase, recent[1].Action)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
	})
}
