package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
)

func mustFindings(t *testing.T, raw string) domain.FindingSet {
	t.Helper()
	var fs domain.FindingSet
	require.NoError(t, json.Unmarshal([]byte(raw), &fs))
	return fs
}

func mustVitals(t *testing.T, raw string) domain.Measurements {
	t.Helper()
	var ms domain.Measurements
	require.NoError(t, json.Unmarshal([]byte(raw), &ms))
	return ms
}

func TestRiskAggregator_Assess(t *testing.T) {
	tests := []struct {
		name     string
		findings string
		vitals   string
		score    float64
		factors  []string
	}{
		{
			name:     "single urgent finding",
			findings: `{"pneumonia": {"probability": 0.85}}`,
			vitals:   `{}`,
			score:    0.255,
			factors:  []string{"Pneumonia (85.0%)"},
		},
		{
			name:     "vitals only",
			findings: `{}`,
			vitals:   `{"temperature": 39.2, "oxygen_saturation": 90, "heart_rate": 130}`,
			score:    0.4,
			factors:  []string{"Fever (39.2°C)", "Low SpO2 (90%)", "Tachycardia (130 bpm)"},
		},
		{
			name:     "finding and vitals",
			findings: `{"pneumothorax": {"probability": 0.9}}`,
			vitals:   `{"temperature": 39.0, "oxygen_saturation": 92}`,
			score:    0.57,
			factors:  []string{"Pneumothorax (90.0%)", "Fever (39.0°C)", "Low SpO2 (92%)"},
		},
		{
			name:     "finding at cutoff ignored",
			findings: `{"pneumonia": {"probability": 0.5}}`,
			vitals:   `{}`,
			score:    0,
			factors:  []string{},
		},
		{
			name:     "non-urgent finding ignored",
			findings: `{"nodule": {"probability": 0.99}}`,
			vitals:   `{}`,
			score:    0,
			factors:  []string{},
		},
		{
			name:     "multi-word finding is title cased",
			findings: `{"pulmonary_edema": {"probability": 0.6}}`,
			vitals:   `{}`,
			score:    0.18,
			factors:  []string{"Pulmonary Edema (60.0%)"},
		},
		{
			name:     "malformed vital skips only its rule",
			findings: `{}`,
			vitals:   `{"temperature": "hot", "oxygen_saturation": 88}`,
			score:    0.2,
			factors:  []string{"Low SpO2 (88%)"},
		},
		{
			name:     "zero vitals are treated as absent",
			findings: `{}`,
			vitals:   `{"oxygen_saturation": 0, "heart_rate": ""}`,
			score:    0,
			factors:  []string{},
		},
		{
			name:     "heart rate between 100 and 120 does not add risk",
			findings: `{}`,
			vitals:   `{"heart_rate": 110}`,
			score:    0,
			factors:  []string{},
		},
	}

	agg := NewRiskAggregator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := agg.Assess(RiskInput{
				Findings: mustFindings(t, tt.findings),
				Vitals:   mustVitals(t, tt.vitals),
			})
			assert.InDelta(t, tt.score, got.Score, 1e-9)
			assert.Equal(t, tt.factors, got.Factors)
		})
	}
}

func TestRiskAggregator_ScoreIsCapped(t *testing.T) {
	agg := NewRiskAggregator()

	got := agg.Assess(RiskInput{
		Findings: domain.FindingSet{
			{Name: "pneumonia", Probability: domain.Prob(5.0)},
			{Name: "pneumothorax", Probability: domain.Prob(0.9)},
		},
		Vitals: mustVitals(t, `{"temperature": 40, "oxygen_saturation": 80, "heart_rate": 150}`),
	})

	assert.Equal(t, 1.0, got.Score)
	assert.Len(t, got.Factors, 5)
}

func TestRiskAggregator_UrgentFindingsAreUnnormalized(t *testing.T) {
	agg := NewRiskAggregator()

	got := agg.Assess(RiskInput{Findings: domain.FindingSet{
		{Name: "pneumonia", Probability: domain.Prob(0.9)},
		{Name: "pneumothorax", Probability: domain.Prob(0.9)},
	}})

	assert.InDelta(t, 0.54, got.Score, 1e-9)
}

func TestRiskAggregator_VitalFactorOrderIgnoresInputOrder(t *testing.T) {
	agg := NewRiskAggregator()

	a := agg.Assess(RiskInput{Vitals: mustVitals(t, `{"heart_rate": 130, "oxygen_saturation": 90, "temperature": 39.2}`)})
	b := agg.Assess(RiskInput{Vitals: mustVitals(t, `{"temperature": 39.2, "heart_rate": 130, "oxygen_saturation": 90}`)})

	assert.Equal(t, a, b)
	assert.Equal(t, []string{"Fever (39.2°C)", "Low SpO2 (90%)", "Tachycardia (130 bpm)"}, a.Factors)
}

func TestRiskAggregator_FindingFactorsFollowInputOrder(t *testing.T) {
	agg := NewRiskAggregator()

	got := agg.Assess(RiskInput{
		Findings: mustFindings(t, `{"pulmonary_edema": {"probability": 0.8}, "nodule": {"probability": 0.9}, "pneumonia": {"probability": 0.9}}`),
		Vitals:   mustVitals(t, `{"temperature": 38.5}`),
	})

	assert.Equal(t, []string{"Pulmonary Edema (80.0%)", "Pneumonia (90.0%)", "Fever (38.5°C)"}, got.Factors)
	assert.InDelta(t, 0.61, got.Score, 1e-9)
}

func TestRiskAggregator_Deterministic(t *testing.T) {
	agg := NewRiskAggregator()
	in := RiskInput{
		Findings: mustFindings(t, `{"pneumonia": {"probability": 0.7}, "pulmonary_edema": {"probability": 0.8}}`),
		Vitals:   mustVitals(t, `{"temperature": 38.5}`),
	}

	first := agg.Assess(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, agg.Assess(in))
	}
}

func TestRiskBander(t *testing.T) {
	bander, err := NewRiskBander(domain.DefaultRiskBands())
	require.NoError(t, err)

	assert.Equal(t, domain.RiskBandLow, bander.Band(0))
	assert.Equal(t, domain.RiskBandModerate, bander.Band(0.255))
	assert.Equal(t, domain.RiskBandHigh, bander.Band(0.57))
	assert.Equal(t, domain.RiskBandCritical, bander.Band(1.0))

	applied := bander.Apply(domain.RiskAssessment{Score: 0.4})
	assert.Equal(t, domain.RiskBandModerate, applied.Band)
}

func TestNewRiskBander_RejectsUnorderedBands(t *testing.T) {
	_, err := NewRiskBander(domain.RiskBands{Moderate: 0.6, High: 0.5, Critical: 0.9})
	assert.True(t, domain.IsValidationError(err))
}
