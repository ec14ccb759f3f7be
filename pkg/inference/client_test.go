package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
)

const imageContent = `{
  "findings": {
    "pneumothorax": {"probability": 0.82, "location": "left apex", "description": "visible pleural line"},
    "pneumonia": {"probability": "0.15"},
    "fractures": {"probability": "unclear"}
  },
  "overall_assessment": {"primary_diagnosis": "Left pneumothorax", "confidence": 0.88, "severity": "high", "urgency": "emergent"},
  "differential_diagnoses": [{"diagnosis": "Bulla", "probability": 0.1, "rationale": "apical lucency"}],
  "recommendations": ["Chest tube evaluation"],
  "technical_quality": {"image_quality": "good"},
  "attention_areas": [{"region": "left apex", "description": "pleural line"}]
}`

func testConfig(baseURL string) domain.InferenceConfig {
	return domain.InferenceConfig{
		BaseURL:           baseURL,
		APIKey:            "sk-test",
		Model:             "gpt-4o",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		RetryBackoff:      time.Millisecond,
		MaxTokens:         1500,
		CircuitBreaker: domain.CircuitBreakerConfig{
			MaxRequests:  1,
			Interval:     time.Minute,
			Timeout:      time.Minute,
			MinRequests:  3,
			FailureRatio: 0.5,
		},
	}
}

func newTestClient(t *testing.T, cfg domain.InferenceConfig) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := NewClient(cfg, logger)
	require.NoError(t, err)
	return c
}

func respond(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20},
	})
}

func TestNewClient_Validation(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewClient(domain.InferenceConfig{Model: "gpt-4o"}, logger)
	assert.Error(t, err)

	_, err = NewClient(domain.InferenceConfig{BaseURL: "http://localhost"}, logger)
	assert.Error(t, err)
}

func TestAnalyzeImage(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		respond(w, imageContent)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL+"/v1/"))
	analysis, err := c.AnalyzeImage(context.Background(), domain.ImageInput{
		Data:     []byte("fake-png"),
		MIMEType: "image/png",
		Context:  domain.PatientContext{Age: 54, Sex: "F"},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", captured.Model)
	assert.Equal(t, 1500, captured.MaxTokens)
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)

	parts, ok := captured.Messages[1].Content.([]interface{})
	require.True(t, ok)
	require.Len(t, parts, 2)
	imagePart := parts[1].(map[string]interface{})
	url := imagePart["image_url"].(map[string]interface{})["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	assert.Contains(t, parts[0].(map[string]interface{})["text"], "Age 54. Sex F")

	assert.Equal(t, []string{"pneumothorax", "pneumonia", "fractures"}, analysis.Findings.Names())
	p, ok := analysis.Findings.Get("pneumothorax")
	require.True(t, ok)
	assert.Equal(t, 0.82, *p.Probability)
	assert.Equal(t, "left apex", p.Location)

	pn, _ := analysis.Findings.Get("pneumonia")
	require.NotNil(t, pn.Probability)
	assert.Equal(t, 0.15, *pn.Probability)

	fx, _ := analysis.Findings.Get("fractures")
	assert.False(t, fx.HasProbability())

	assert.Equal(t, "Left pneumothorax", analysis.OverallAssessment.PrimaryDiagnosis)
	assert.Equal(t, 0.88, analysis.OverallAssessment.Confidence)
	require.Len(t, analysis.DifferentialDiagnoses, 1)
	assert.Equal(t, "apical lucency", analysis.DifferentialDiagnoses[0].Reasoning)
	assert.Equal(t, "good", analysis.TechnicalQuality.Rating)
	assert.Equal(t, "pleural line", analysis.AttentionAreas[0].Finding)
}

func TestAnalyzeImage_EmptyData(t *testing.T) {
	c := newTestClient(t, testConfig("http://127.0.0.1:1"))
	_, err := c.AnalyzeImage(context.Background(), domain.ImageInput{})
	assert.True(t, domain.IsValidationError(err))
}

func TestAnalyzeClinical(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prompt = req.Messages[1].Content.(string)
		respond(w, "```json\n"+`{
			"risk_assessment": {"overall_risk": "high", "risk_score": 0.7, "risk_factors": ["hypoxia"]},
			"clinical_impressions": [{"condition": "Community-acquired pneumonia", "probability": 0.6}],
			"recommendations": [{"category": "immediate", "action": "Start oxygen", "priority": "high"}]
		}`+"\n```")
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL))
	analysis, err := c.AnalyzeClinical(context.Background(), domain.ClinicalInput{
		Symptoms: domain.Symptoms{"cough", "fever"},
		Vitals: domain.Measurements{
			{Name: "heart_rate", Value: domain.NumericMeasurement(112)},
			{Name: "temperature", Value: domain.Measurement{}},
		},
		LabResults: domain.Measurements{{Name: "wbc", Value: domain.NumericMeasurement(14.2)}},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Symptoms: cough, fever")
	assert.Contains(t, prompt, "  - Heart Rate: 112")
	assert.NotContains(t, prompt, "Temperature")
	assert.Contains(t, prompt, "  - WBC: 14.2")

	assert.Equal(t, "high", analysis.RiskAssessment.OverallRisk)
	assert.Equal(t, "Community-acquired pneumonia", analysis.ClinicalImpressions[0].Condition)
	assert.Equal(t, "Start oxygen", analysis.Recommendations[0].Action)
}

func TestFuseDiagnosis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{
			"integrated_diagnosis": {"primary_diagnosis": "Lobar pneumonia", "confidence": "0.9", "supporting_evidence": ["consolidation"]},
			"clinical_correlation": {"image_clinical_agreement": "strong", "key_correlations": ["fever", "consolidation"]},
			"treatment_recommendations": [{"intervention": "Antibiotics", "priority": "urgent"}, "Oxygen"],
			"prognosis": {"outlook": "good"},
			"disposition": "admission"
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL))
	fused, err := c.FuseDiagnosis(context.Background(), &domain.ImageAnalysis{}, &domain.ClinicalAnalysis{}, domain.PatientContext{})
	require.NoError(t, err)

	assert.Equal(t, "Lobar pneumonia", fused.IntegratedDiagnosis.PrimaryDiagnosis)
	assert.Equal(t, 0.9, fused.IntegratedDiagnosis.Confidence)
	assert.Equal(t, "Image Clinical Agreement: strong; Key Correlations: fever, consolidation", fused.ClinicalCorrelation)
	assert.Equal(t, []string{"Intervention: Antibiotics; Priority: urgent", "Oxygen"}, fused.TreatmentRecommendations)
	assert.Equal(t, "Outlook: good", fused.Prognosis)
	assert.Equal(t, "admission", fused.Disposition)
}

func TestGenerateReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.ResponseFormat)
		respond(w, "\nMEDICAL DIAGNOSTIC REPORT\n...\n")
	}))
	defer srv.Close()

	c := newTestClient(t, testConfig(srv.URL))
	report, err := c.GenerateReport(context.Background(), &domain.Case{ID: 3, PatientID: "p-3"})
	require.NoError(t, err)
	assert.Equal(t, "MEDICAL DIAGNOSTIC REPORT\n...", report)
}

func TestRetries(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				http.Error(w, "upstream overloaded", http.StatusBadGateway)
				return
			}
			respond(w, "report")
		}))
		defer srv.Close()

		c := newTestClient(t, testConfig(srv.URL))
		report, err := c.GenerateReport(context.Background(), &domain.Case{})
		require.NoError(t, err)
		assert.Equal(t, "report", report)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := newTestClient(t, testConfig(srv.URL))
		_, err := c.GenerateReport(context.Background(), &domain.Case{})
		require.Error(t, err)

		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
		assert.Contains(t, se.Body, "invalid api key")
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("empty content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respond(w, "  ")
		}))
		defer srv.Close()

		c := newTestClient(t, testConfig(srv.URL))
		_, err := c.GenerateReport(context.Background(), &domain.Case{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestCircuitBreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 0
	c := newTestClient(t, cfg)

	for i := 0; i < 3; i++ {
		_, err := c.GenerateReport(context.Background(), &domain.Case{})
		require.Error(t, err)
	}

	_, err := c.GenerateReport(context.Background(), &domain.Case{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClinicalPrompt_Context(t *testing.T) {
	prompt := clinicalPrompt(domain.ClinicalInput{
		Context: domain.PatientContext{Age: 70, MedicalHistory: "COPD"},
	})
	assert.Contains(t, prompt, "Patient: Age 70. History: COPD")
	assert.NotContains(t, prompt, "Vital Signs")
}
