package service

import (
	"fmt"
	"math"

	"github.com/cxr-assist-server/internal/domain"
)

// Urgent findings that feed the risk score.
var urgentFindings = map[string]bool{"pneumonia": true, "pneumothorax": true, "pulmonary_edema": true}

const (
	urgentFindingCutoff = 0.5
	urgentFindingWeight = 0.3
)

// RiskInput is everything the aggregator reads.
type RiskInput struct {
	Findings domain.FindingSet
	Vitals   domain.Measurements
}

// riskRule contributes at most one term to the score.
type riskRule struct {
	Code     string
	Evaluate func(in RiskInput) []domain.RiskContribution
}

// vitalRule builds a rule that fires when a numeric vital crosses a bound.
func vitalRule(code string, vital domain.VitalName, above bool, limit, weight float64, label func(domain.Measurement) string) riskRule {
	return riskRule{
		Code: code,
		Evaluate: func(in RiskInput) []domain.RiskContribution {
			m, ok := in.Vitals.Vital(vital)
			if !ok || !m.Present() || !m.Numeric {
				return nil
			}
			if (above && m.Value > limit) || (!above && m.Value < limit) {
				return []domain.RiskContribution{{Rule: code, Factor: label(m), Weight: weight}}
			}
			return nil
		},
	}
}

// riskRules run in this fixed order; factor order follows it.
var riskRules = []riskRule{
	{
		Code: "urgent_findings",
		Evaluate: func(in RiskInput) []domain.RiskContribution {
			var out []domain.RiskContribution
			// Findings keep their input order.
			for _, f := range in.Findings {
				if !urgentFindings[f.Name] || !f.HasProbability() {
					continue
				}
				name := f.Name
				p := *f.Probability
				if p > urgentFindingCutoff {
					out = append(out, domain.RiskContribution{
						Rule:   "urgent_finding:" + name,
						Factor: fmt.Sprintf("%s (%s)", displayName(name), formatPercent(p)),
						Weight: p * urgentFindingWeight,
					})
				}
			}
			return out
		},
	},
	vitalRule("fever", domain.VitalTemperature, true, 38.0, 0.1, func(m domain.Measurement) string {
		return fmt.Sprintf("Fever (%s°C)", m.String())
	}),
	vitalRule("hypoxemia", domain.VitalOxygenSaturation, false, 95, 0.2, func(m domain.Measurement) string {
		return fmt.Sprintf("Low SpO2 (%s%%)", m.String())
	}),
	vitalRule("tachycardia", domain.VitalHeartRate, true, 120, 0.1, func(m domain.Measurement) string {
		return fmt.Sprintf("Tachycardia (%s bpm)", m.String())
	}),
}

// RiskAggregator combines urgent image findings and abnormal vitals into one
// additive score capped at 1.0.
//
// Each urgent finding above 0.5 adds probability*0.3 with no normalization
// across findings, so two findings at 0.9 contribute 0.54 before the cap.
type RiskAggregator struct {
	rules []riskRule
}

// NewRiskAggregator creates an aggregator with the standard rule set.
func NewRiskAggregator() *RiskAggregator {
	return &RiskAggregator{rules: riskRules}
}

// Assess scores the input. It never calls out and never fails: malformed or
// missing values only disable the rule that reads them.
func (a *RiskAggregator) Assess(in RiskInput) domain.RiskAssessment {
	assessment := domain.RiskAssessment{
		Factors:       []string{},
		Contributions: []domain.RiskContribution{},
	}

	score := 0.0
	for _, rule := range a.rules {
		for _, c := range rule.Evaluate(in) {
			score += c.Weight
			assessment.Factors = append(assessment.Factors, c.Factor)
			assessment.Contributions = append(assessment.Contributions, c)
		}
	}

	assessment.Score = math.Min(score, 1.0)
	return assessment
}

// RiskBander assigns a qualitative label to a score.
type RiskBander struct {
	bands domain.RiskBands
}

// NewRiskBander creates a bander from configured lower bounds.
func NewRiskBander(bands domain.RiskBands) (*RiskBander, error) {
	if !(bands.Moderate <= bands.High && bands.High <= bands.Critical) {
		return nil, domain.NewValidationError("risk_bands",
			"bands must satisfy moderate <= high <= critical",
			fmt.Sprintf("%v/%v/%v", bands.Moderate, bands.High, bands.Critical))
	}
	return &RiskBander{bands: bands}, nil
}

// Band returns the label for score.
func (b *RiskBander) Band(score float64) domain.RiskBand {
	switch {
	case score >= b.bands.Critical:
		return domain.RiskBandCritical
	case score >= b.bands.High:
		return domain.RiskBandHigh
	case score >= b.bands.Moderate:
		return domain.RiskBandModerate
	default:
		return domain.RiskBandLow
	}
}

// Apply sets the Band field on a.
func (b *RiskBander) Apply(a domain.RiskAssessment) domain.RiskAssessment {
	a.Band = b.Band(a.Score)
	return a
}
