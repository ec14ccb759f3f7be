package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cxr-assist-server/internal/domain"
)

// The model's JSON is richer and less regular than the domain types. These
// wire types absorb the variations and convert.

type differentialWire struct {
	Diagnosis   string          `json:"diagnosis"`
	Probability json.RawMessage `json:"probability"`
	Rationale   string          `json:"rationale"`
	Reasoning   string          `json:"reasoning"`
}

func (d differentialWire) toDomain() domain.DifferentialDiagnosis {
	reasoning := d.Reasoning
	if reasoning == "" {
		reasoning = d.Rationale
	}
	return domain.DifferentialDiagnosis{
		Diagnosis:   d.Diagnosis,
		Probability: looseNumber(d.Probability),
		Reasoning:   reasoning,
	}
}

type imageWire struct {
	Findings          domain.FindingSet `json:"findings"`
	OverallAssessment struct {
		PrimaryDiagnosis string          `json:"primary_diagnosis"`
		Confidence       json.RawMessage `json:"confidence"`
		Severity         string          `json:"severity"`
		Urgency          string          `json:"urgency"`
	} `json:"overall_assessment"`
	DifferentialDiagnoses []differentialWire `json:"differential_diagnoses"`
	Recommendations       []json.RawMessage  `json:"recommendations"`
	TechnicalQuality      *struct {
		ImageQuality string   `json:"image_quality"`
		Rating       string   `json:"rating"`
		Limitations  []string `json:"limitations"`
	} `json:"technical_quality"`
	KeyObservations []json.RawMessage `json:"key_observations"`
	AttentionAreas  []struct {
		Region      string          `json:"region"`
		Finding     string          `json:"finding"`
		Description string          `json:"description"`
		Probability json.RawMessage `json:"probability"`
	} `json:"attention_areas"`
}

func (w imageWire) toDomain() *domain.ImageAnalysis {
	a := &domain.ImageAnalysis{
		Findings: w.Findings,
		OverallAssessment: domain.OverallAssessment{
			PrimaryDiagnosis: w.OverallAssessment.PrimaryDiagnosis,
			Confidence:       looseNumber(w.OverallAssessment.Confidence),
			Severity:         w.OverallAssessment.Severity,
			Urgency:          w.OverallAssessment.Urgency,
		},
		Recommendations: texts(w.Recommendations),
		KeyObservations: texts(w.KeyObservations),
	}
	for _, d := range w.DifferentialDiagnoses {
		a.DifferentialDiagnoses = append(a.DifferentialDiagnoses, d.toDomain())
	}
	if tq := w.TechnicalQuality; tq != nil {
		rating := tq.Rating
		if rating == "" {
			rating = tq.ImageQuality
		}
		a.TechnicalQuality = &domain.TechnicalQuality{Rating: rating, Limitations: tq.Limitations}
	}
	for _, area := range w.AttentionAreas {
		finding := area.Finding
		if finding == "" {
			finding = area.Description
		}
		a.AttentionAreas = append(a.AttentionAreas, domain.AttentionArea{
			Region:      area.Region,
			Finding:     finding,
			Probability: looseNumber(area.Probability),
		})
	}
	return a
}

type fusionWire struct {
	IntegratedDiagnosis struct {
		PrimaryDiagnosis      string          `json:"primary_diagnosis"`
		Confidence            json.RawMessage `json:"confidence"`
		Severity              string          `json:"severity"`
		Urgency               string          `json:"urgency"`
		SupportingEvidence    []string        `json:"supporting_evidence"`
		ContradictingEvidence []string        `json:"contradicting_evidence"`
	} `json:"integrated_diagnosis"`
	DifferentialDiagnoses    []differentialWire `json:"differential_diagnoses"`
	ClinicalCorrelation      json.RawMessage    `json:"clinical_correlation"`
	TreatmentRecommendations []json.RawMessage  `json:"treatment_recommendations"`
	Prognosis                json.RawMessage    `json:"prognosis"`
	MonitoringPlan           []json.RawMessage  `json:"monitoring_plan"`
	Disposition              json.RawMessage    `json:"disposition"`
}

func (w fusionWire) toDomain() *domain.FusedDiagnosis {
	id := w.IntegratedDiagnosis
	f := &domain.FusedDiagnosis{
		IntegratedDiagnosis: domain.IntegratedDiagnosis{
			PrimaryDiagnosis:      id.PrimaryDiagnosis,
			Confidence:            looseNumber(id.Confidence),
			Severity:              id.Severity,
			Urgency:               id.Urgency,
			SupportingEvidence:    id.SupportingEvidence,
			ContradictingEvidence: id.ContradictingEvidence,
		},
		ClinicalCorrelation:      text(w.ClinicalCorrelation),
		TreatmentRecommendations: texts(w.TreatmentRecommendations),
		Prognosis:                text(w.Prognosis),
		MonitoringPlan:           texts(w.MonitoringPlan),
		Disposition:              text(w.Disposition),
	}
	for _, d := range w.DifferentialDiagnoses {
		f.DifferentialDiagnoses = append(f.DifferentialDiagnoses, d.toDomain())
	}
	return f
}

// looseNumber accepts a number or a numeric string. Anything else is 0.
func looseNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var m domain.Measurement
	if err := m.UnmarshalJSON(raw); err != nil || !m.Numeric {
		return 0
	}
	return m.Value
}

func texts(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s := text(r); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// text flattens a string, object or list into one display line. Object members
// are rendered "key: value" in document order and joined with "; ".
func text(raw json.RawMessage) string {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			return strings.Join(texts(items), ", ")
		}
	case '{':
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		if _, err := dec.Token(); err != nil {
			break
		}
		var parts []string
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				break
			}
			var value json.RawMessage
			if err := dec.Decode(&value); err != nil {
				break
			}
			if s := text(value); s != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", label(fmt.Sprint(keyTok)), s))
			}
		}
		return strings.Join(parts, "; ")
	}
	return string(raw)
}
