package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
)

func imageAnalysisFixture(t *testing.T) *domain.ImageAnalysis {
	return &domain.ImageAnalysis{
		Findings: mustFindings(t, `{"pneumonia": {"probability": 0.85, "location": "RLL"}, "nodule": {}}`),
		OverallAssessment: domain.OverallAssessment{
			PrimaryDiagnosis: "Right lower lobe pneumonia",
			Confidence:       0.82,
			Severity:         "moderate",
			Urgency:          "urgent",
		},
		Recommendations: []string{"Start empiric antibiotics"},
	}
}

func clinicalAnalysisFixture() *domain.ClinicalAnalysis {
	return &domain.ClinicalAnalysis{
		RiskAssessment: domain.ClinicalRisk{OverallRisk: "high", RiskScore: 0.7},
		ClinicalImpressions: []domain.ClinicalImpression{
			{Condition: "Sepsis", Probability: 0.4},
		},
		Recommendations: []domain.ClinicalRecommendation{
			{Action: "Obtain blood cultures"},
			{Action: ""},
		},
	}
}

func TestCaseBuilder_ImageOnly(t *testing.T) {
	b := NewCaseBuilder(nil)

	c := b.Build(CaseDraft{
		ClinicianID: "dr-a",
		PatientID:   "p1",
		Image:       imageAnalysisFixture(t),
	})

	assert.NotEmpty(t, c.ExternalID)
	assert.Equal(t, domain.CaseActive, c.Status)
	assert.Equal(t, "Right lower lobe pneumonia", c.PrimaryDiagnosis())
	assert.Len(t, c.AIDiagnosis.Findings, 2)

	score, ok := c.ConfidenceScores.Get("pneumonia")
	require.True(t, ok)
	assert.Equal(t, 0.85, score)
	missing, ok := c.ConfidenceScores.Get("nodule")
	require.True(t, ok)
	assert.Equal(t, 0.0, missing)

	assert.Equal(t, "Start empiric antibiotics", c.Recommendations)
	require.NotNil(t, c.Risk)
	assert.InDelta(t, 0.255, c.Risk.Score, 1e-9)
}

func TestCaseBuilder_ClinicalOnly(t *testing.T) {
	b := NewCaseBuilder(nil)

	c := b.Build(CaseDraft{
		Clinical: clinicalAnalysisFixture(),
		Vitals:   mustVitals(t, `{"oxygen_saturation": 90}`),
	})

	require.NotNil(t, c.AIDiagnosis)
	assert.Equal(t, "Sepsis", c.PrimaryDiagnosis())
	assert.Equal(t, 0.7, c.AIDiagnosis.IntegratedDiagnosis.Confidence)
	assert.Equal(t, "high", c.AIDiagnosis.IntegratedDiagnosis.Severity)
	assert.Equal(t, "Obtain blood cultures", c.Recommendations)
	assert.Equal(t, []string{"Low SpO2 (90%)"}, c.Risk.Factors)
}

func TestCaseBuilder_ClinicalWithoutImpressions(t *testing.T) {
	c := NewCaseBuilder(nil).Build(CaseDraft{Clinical: &domain.ClinicalAnalysis{}})

	assert.Equal(t, "Multiple findings", c.PrimaryDiagnosis())
}

func TestCaseBuilder_FusedOverridesDiagnosis(t *testing.T) {
	b := NewCaseBuilder(nil)
	fused := &domain.FusedDiagnosis{
		IntegratedDiagnosis: domain.IntegratedDiagnosis{PrimaryDiagnosis: "Pneumonia with sepsis", Confidence: 0.9},
		Disposition:         "admit",
	}

	c := b.Build(CaseDraft{
		Image:    imageAnalysisFixture(t),
		Clinical: clinicalAnalysisFixture(),
		Fused:    fused,
	})

	assert.Equal(t, "Pneumonia with sepsis", c.PrimaryDiagnosis())
	assert.Same(t, fused, c.AIDiagnosis.Multimodal)
	assert.Equal(t, "Start empiric antibiotics\nObtain blood cultures", c.Recommendations)
}

func TestCaseBuilder_NoAnalysis(t *testing.T) {
	c := NewCaseBuilder(nil).Build(CaseDraft{PatientID: "p2"})

	assert.Nil(t, c.AIDiagnosis)
	assert.Empty(t, c.Recommendations)
	assert.Equal(t, 0.0, c.Risk.Score)
}
