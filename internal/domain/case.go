package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CaseStatus represents the workflow state of a case
type CaseStatus string

const (
	CaseActive   CaseStatus = "active"
	CaseReviewed CaseStatus = "reviewed"
	CaseClosed   CaseStatus = "closed"
	CaseArchived CaseStatus = "archived"
)

// IsValid checks if the case status is valid
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseActive, CaseReviewed, CaseClosed, CaseArchived:
		return true
	default:
		return false
	}
}

// String returns the string representation of CaseStatus
func (s CaseStatus) String() string {
	return string(s)
}

// Symptoms is the reported symptom list. It also accepts an object (keys are
// taken in order) or a single string.
type Symptoms []string

// UnmarshalJSON decodes the list, object and string forms.
func (s *Symptoms) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*s = nil
		return nil
	}
	switch firstByte(data) {
	case '[':
		var items []interface{}
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make(Symptoms, 0, len(items))
		for _, item := range items {
			out = append(out, fmt.Sprint(item))
		}
		*s = out
	case '{':
		out := Symptoms{}
		if err := decodeObject(data, func(key string, _ json.RawMessage) error {
			out = append(out, key)
			return nil
		}); err != nil {
			return err
		}
		*s = out
	default:
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		if one == "" {
			*s = nil
			return nil
		}
		*s = Symptoms{one}
	}
	return nil
}

// Case bundles clinical inputs, image findings, the fused diagnosis and the
// recommendations for one patient encounter.
type Case struct {
	ID               int64           `json:"id"`
	ExternalID       string          `json:"external_id,omitempty"`
	ClinicianID      string          `json:"clinician_id,omitempty"`
	PatientID        string          `json:"patient_id,omitempty"`
	Title            string          `json:"case_title,omitempty"`
	Symptoms         Symptoms        `json:"symptoms,omitempty"`
	Vitals           Measurements    `json:"vitals,omitempty"`
	LabResults       Measurements    `json:"lab_results,omitempty"`
	ImageFilename    string          `json:"image_filename,omitempty"`
	ImageAnalysis    *ImageAnalysis  `json:"image_analysis,omitempty"`
	AIDiagnosis      *Diagnosis      `json:"ai_diagnosis,omitempty"`
	ConfidenceScores ScoreSet        `json:"confidence_scores,omitempty"`
	Recommendations  string          `json:"recommendations,omitempty"`
	Risk             *RiskAssessment `json:"risk_assessment,omitempty"`
	Status           CaseStatus      `json:"case_status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PrimaryDiagnosis returns the integrated primary diagnosis, or "".
func (c *Case) PrimaryDiagnosis() string {
	if c == nil {
		return ""
	}
	return c.AIDiagnosis.PrimaryDiagnosis()
}

// CaseUpdate lists the only fields a caller may change on a stored case.
// Nil means leave unchanged.
type CaseUpdate struct {
	Title            *string       `json:"case_title,omitempty"`
	PatientID        *string       `json:"patient_id,omitempty"`
	Symptoms         *Symptoms     `json:"symptoms,omitempty"`
	Vitals           *Measurements `json:"vitals,omitempty"`
	LabResults       *Measurements `json:"lab_results,omitempty"`
	AIDiagnosis      *Diagnosis    `json:"ai_diagnosis,omitempty"`
	ConfidenceScores *ScoreSet     `json:"confidence_scores,omitempty"`
	Recommendations  *string       `json:"recommendations,omitempty"`
	Status           *CaseStatus   `json:"case_status,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u CaseUpdate) IsEmpty() bool {
	return u.Title == nil && u.PatientID == nil && u.Symptoms == nil &&
		u.Vitals == nil && u.LabResults == nil && u.AIDiagnosis == nil &&
		u.ConfidenceScores == nil && u.Recommendations == nil && u.Status == nil
}

// Validate checks enum fields.
func (u CaseUpdate) Validate() error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	if u.Status != nil && !u.Status.IsValid() {
		return NewValidationError("case_status", "unknown case status", string(*u.Status))
	}
	return nil
}

// Apply copies the set fields onto c.
func (u CaseUpdate) Apply(c *Case) {
	if u.Title != nil {
		c.Title = *u.Title
	}
	if u.PatientID != nil {
		c.PatientID = *u.PatientID
	}
	if u.Symptoms != nil {
		c.Symptoms = *u.Symptoms
	}
	if u.Vitals != nil {
		c.Vitals = *u.Vitals
	}
	if u.LabResults != nil {
		c.LabResults = *u.LabResults
	}
	if u.AIDiagnosis != nil {
		c.AIDiagnosis = u.AIDiagnosis
	}
	if u.ConfidenceScores != nil {
		c.ConfidenceScores = *u.ConfidenceScores
	}
	if u.Recommendations != nil {
		c.Recommendations = *u.Recommendations
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
}

// DefaultCaseListLimit caps list queries without an explicit limit.
const DefaultCaseListLimit = 50

// CaseFilter narrows a case listing.
type CaseFilter struct {
	ClinicianID string
	Search      string
	Status      CaseStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// EffectiveLimit returns Limit or the default.
func (f CaseFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultCaseListLimit
	}
	return f.Limit
}

// Audit actions recorded against cases.
const (
	ActionCreateCase = "CREATE_CASE"
	ActionUpdateCase = "UPDATE_CASE"
	ActionDeleteCase = "DELETE_CASE"
	ActionExportCase = "EXPORT_CASE"
	ActionReviewCase = "REVIEW_CASE"
)

// AuditEntry is one row of the activity log.
type AuditEntry struct {
	ID          int64     `json:"id,omitempty"`
	ClinicianID string    `json:"clinician_id,omitempty"`
	Action      string    `json:"action"`
	Details     string    `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiagnosisCount is one entry in the diagnosis distribution.
type DiagnosisCount struct {
	Diagnosis string `json:"diagnosis"`
	Count     int    `json:"count"`
}

// CaseCounts are the aggregate counters a repository can compute directly.
type CaseCounts struct {
	Total     int64                `json:"total_cases"`
	Active    int64                `json:"active_cases"`
	ThisMonth int64                `json:"monthly_cases"`
	ByStatus  map[CaseStatus]int64 `json:"by_status"`
}

// CaseStatistics feeds the dashboard.
type CaseStatistics struct {
	CaseCounts
	TopDiagnoses   []DiagnosisCount `json:"top_diagnoses"`
	RecentActivity []AuditEntry     `json:"recent_activity"`
}
