package domain

// OverallAssessment is the image model's headline conclusion.
type OverallAssessment struct {
	PrimaryDiagnosis string  `json:"primary_diagnosis"`
	Confidence       float64 `json:"confidence"`
	Severity         string  `json:"severity,omitempty"`
	Urgency          string  `json:"urgency,omitempty"`
}

// DifferentialDiagnosis is one alternative the model considered.
type DifferentialDiagnosis struct {
	Diagnosis   string  `json:"diagnosis"`
	Probability float64 `json:"probability"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// TechnicalQuality describes how readable the radiograph was.
type TechnicalQuality struct {
	Rating      string   `json:"rating"`
	Limitations []string `json:"limitations,omitempty"`
}

// AttentionArea is a region the model wants a radiologist to look at.
type AttentionArea struct {
	Region      string  `json:"region"`
	Finding     string  `json:"finding"`
	Probability float64 `json:"probability"`
}

// ImageAnalysis is the structured output of the image collaborator.
type ImageAnalysis struct {
	Findings              FindingSet              `json:"findings"`
	OverallAssessment     OverallAssessment       `json:"overall_assessment"`
	DifferentialDiagnoses []DifferentialDiagnosis `json:"differential_diagnoses,omitempty"`
	Recommendations       []string                `json:"recommendations,omitempty"`
	TechnicalQuality      *TechnicalQuality       `json:"technical_quality,omitempty"`
	KeyObservations       []string                `json:"key_observations,omitempty"`
	AttentionAreas        []AttentionArea         `json:"attention_areas,omitempty"`
}

// ClinicalRisk is the clinical collaborator's own risk opinion. It is passed
// through for display; the scored risk is always computed locally.
type ClinicalRisk struct {
	OverallRisk string   `json:"overall_risk"`
	RiskScore   float64  `json:"risk_score"`
	RiskFactors []string `json:"risk_factors,omitempty"`
}

// ClinicalImpression is one condition the clinical model considered.
type ClinicalImpression struct {
	Condition   string  `json:"condition"`
	Probability float64 `json:"probability"`
	Rationale   string  `json:"rationale,omitempty"`
}

// AbnormalFinding is a lab or vital the clinical model called out.
type AbnormalFinding struct {
	Parameter      string `json:"parameter"`
	Value          string `json:"value"`
	ReferenceRange string `json:"reference_range,omitempty"`
	Significance   string `json:"significance,omitempty"`
}

// ClinicalRecommendation is an action item from the clinical model.
type ClinicalRecommendation struct {
	Category string `json:"category,omitempty"`
	Action   string `json:"action"`
	Priority string `json:"priority,omitempty"`
}

// FollowUp is the suggested follow-up plan.
type FollowUp struct {
	Timeframe          string   `json:"timeframe,omitempty"`
	RecommendedTests   []string `json:"recommended_tests,omitempty"`
	SpecialistReferral string   `json:"specialist_referral,omitempty"`
}

// ClinicalAnalysis is the structured output of the clinical-data collaborator.
type ClinicalAnalysis struct {
	RiskAssessment      ClinicalRisk             `json:"risk_assessment"`
	ClinicalImpressions []ClinicalImpression     `json:"clinical_impressions,omitempty"`
	AbnormalFindings    []AbnormalFinding        `json:"abnormal_findings,omitempty"`
	Recommendations     []ClinicalRecommendation `json:"recommendations,omitempty"`
	RedFlags            []string                 `json:"red_flags,omitempty"`
	FollowUp            *FollowUp                `json:"follow_up,omitempty"`
}

// IntegratedDiagnosis is the single conclusion stored on a case.
type IntegratedDiagnosis struct {
	PrimaryDiagnosis      string   `json:"primary_diagnosis"`
	Confidence            float64  `json:"confidence"`
	Severity              string   `json:"severity,omitempty"`
	Urgency               string   `json:"urgency,omitempty"`
	SupportingEvidence    []string `json:"supporting_evidence,omitempty"`
	ContradictingEvidence []string `json:"contradicting_evidence,omitempty"`
}

// FusedDiagnosis is the multimodal collaborator's merged opinion.
type FusedDiagnosis struct {
	IntegratedDiagnosis      IntegratedDiagnosis     `json:"integrated_diagnosis"`
	DifferentialDiagnoses    []DifferentialDiagnosis `json:"differential_diagnoses,omitempty"`
	ClinicalCorrelation      string                  `json:"clinical_correlation,omitempty"`
	TreatmentRecommendations []string                `json:"treatment_recommendations,omitempty"`
	Prognosis                string                  `json:"prognosis,omitempty"`
	MonitoringPlan           []string                `json:"monitoring_plan,omitempty"`
	Disposition              string                  `json:"disposition,omitempty"`
}

// Diagnosis is the ai_diagnosis block persisted with a case.
type Diagnosis struct {
	IntegratedDiagnosis *IntegratedDiagnosis `json:"integrated_diagnosis,omitempty"`
	Findings            FindingSet           `json:"findings,omitempty"`
	ClinicalAnalysis    *ClinicalAnalysis    `json:"clinical_analysis,omitempty"`
	Multimodal          *FusedDiagnosis      `json:"multimodal,omitempty"`
}

// PrimaryDiagnosis returns the integrated primary diagnosis, or "".
func (d *Diagnosis) PrimaryDiagnosis() string {
	if d == nil || d.IntegratedDiagnosis == nil {
		return ""
	}
	return d.IntegratedDiagnosis.PrimaryDiagnosis
}

// PatientContext is the demographic context sent to the models.
type PatientContext struct {
	Age            int    `json:"age,omitempty"`
	Sex            string `json:"sex,omitempty"`
	MedicalHistory string `json:"medical_history,omitempty"`
	Medications    string `json:"medications,omitempty"`
	Allergies      string `json:"allergies,omitempty"`
}

// ImageInput is an already-decoded radiograph ready for the image model.
type ImageInput struct {
	Data     []byte         `json:"-"`
	MIMEType string         `json:"mime_type"`
	Filename string         `json:"filename,omitempty"`
	Context  PatientContext `json:"context"`
}

// ClinicalInput is the structured clinical data for the clinical model.
type ClinicalInput struct {
	Symptoms   Symptoms       `json:"symptoms,omitempty"`
	Vitals     Measurements   `json:"vitals,omitempty"`
	LabResults Measurements   `json:"lab_results,omitempty"`
	Context    PatientContext `json:"context"`
}
