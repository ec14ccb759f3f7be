package service

import (
	"strings"

	"github.com/google/uuid"

	"github.com/cxr-assist-server/internal/domain"
)

// fallbackClinicalDiagnosis names a clinical-only case without impressions.
const fallbackClinicalDiagnosis = "Multiple findings"

// CaseDraft is what a caller supplies when saving an analysis as a case.
type CaseDraft struct {
	ClinicianID   string
	PatientID     string
	Title         string
	Symptoms      domain.Symptoms
	Vitals        domain.Measurements
	LabResults    domain.Measurements
	ImageFilename string
	Image         *domain.ImageAnalysis
	Clinical      *domain.ClinicalAnalysis
	Fused         *domain.FusedDiagnosis
}

// CaseBuilder assembles persisted case records from analysis results.
type CaseBuilder struct {
	risk *RiskAggregator
}

// NewCaseBuilder creates a builder that scores risk with risk.
func NewCaseBuilder(risk *RiskAggregator) *CaseBuilder {
	if risk == nil {
		risk = NewRiskAggregator()
	}
	return &CaseBuilder{risk: risk}
}

// Build turns a draft into a new active case. Image results drive findings and
// confidence scores; clinical results contribute their impression and actions;
// a fused diagnosis, when present, replaces the integrated diagnosis.
func (b *CaseBuilder) Build(draft CaseDraft) *domain.Case {
	c := &domain.Case{
		ExternalID:    uuid.New().String(),
		ClinicianID:   draft.ClinicianID,
		PatientID:     draft.PatientID,
		Title:         draft.Title,
		Symptoms:      draft.Symptoms,
		Vitals:        draft.Vitals,
		LabResults:    draft.LabResults,
		ImageFilename: draft.ImageFilename,
		ImageAnalysis: draft.Image,
		Status:        domain.CaseActive,
	}

	diagnosis := &domain.Diagnosis{}
	var recommendations []string
	var findings domain.FindingSet

	if draft.Image != nil {
		findings = draft.Image.Findings
		diagnosis.Findings = findings
		diagnosis.IntegratedDiagnosis = imageDiagnosis(draft.Image.OverallAssessment)
		c.ConfidenceScores = confidenceScores(findings)
		recommendations = append(recommendations, draft.Image.Recommendations...)
	}

	if draft.Clinical != nil {
		diagnosis.ClinicalAnalysis = draft.Clinical
		if diagnosis.IntegratedDiagnosis == nil {
			diagnosis.IntegratedDiagnosis = clinicalDiagnosis(draft.Clinical)
		}
		for _, rec := range draft.Clinical.Recommendations {
			if rec.Action != "" {
				recommendations = append(recommendations, rec.Action)
			}
		}
	}

	if draft.Fused != nil {
		fused := draft.Fused.IntegratedDiagnosis
		diagnosis.IntegratedDiagnosis = &fused
		diagnosis.Multimodal = draft.Fused
	}

	if diagnosis.IntegratedDiagnosis != nil || diagnosis.ClinicalAnalysis != nil || len(diagnosis.Findings) > 0 {
		c.AIDiagnosis = diagnosis
	}
	c.Recommendations = strings.Join(recommendations, "\n")

	risk := b.risk.Assess(RiskInput{Findings: findings, Vitals: draft.Vitals})
	c.Risk = &risk
	return c
}

func imageDiagnosis(a domain.OverallAssessment) *domain.IntegratedDiagnosis {
	return &domain.IntegratedDiagnosis{
		PrimaryDiagnosis: a.PrimaryDiagnosis,
		Confidence:       a.Confidence,
		Severity:         a.Severity,
		Urgency:          a.Urgency,
	}
}

func clinicalDiagnosis(ca *domain.ClinicalAnalysis) *domain.IntegratedDiagnosis {
	primary := fallbackClinicalDiagnosis
	if len(ca.ClinicalImpressions) > 0 && ca.ClinicalImpressions[0].Condition != "" {
		primary = ca.ClinicalImpressions[0].Condition
	}
	return &domain.IntegratedDiagnosis{
		PrimaryDiagnosis: primary,
		Confidence:       ca.RiskAssessment.RiskScore,
		Severity:         ca.RiskAssessment.OverallRisk,
	}
}

// confidenceScores maps every finding to its probability, 0 when absent.
func confidenceScores(findings domain.FindingSet) domain.ScoreSet {
	scores := make(domain.ScoreSet, 0, len(findings))
	for _, f := range findings {
		scores = append(scores, domain.NamedScore{Name: f.Name, Score: f.ProbabilityOr(0)})
	}
	return scores
}
