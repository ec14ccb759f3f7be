package domain

// RiskBand is the qualitative label assigned to a risk score by a threshold policy.
type RiskBand string

const (
	RiskBandLow      RiskBand = "low"
	RiskBandModerate RiskBand = "moderate"
	RiskBandHigh     RiskBand = "high"
	RiskBandCritical RiskBand = "critical"
)

// IsValid checks if the risk band is valid
func (b RiskBand) IsValid() bool {
	switch b {
	case RiskBandLow, RiskBandModerate, RiskBandHigh, RiskBandCritical:
		return true
	default:
		return false
	}
}

// String returns the string representation of RiskBand
func (b RiskBand) String() string {
	return string(b)
}

// RiskContribution records what one rule added to the score.
type RiskContribution struct {
	Rule   string  `json:"rule"`
	Factor string  `json:"factor"`
	Weight float64 `json:"weight"`
}

// RiskAssessment is the bounded, explainable output of the risk aggregator.
// Band is empty unless a caller applied a band policy.
type RiskAssessment struct {
	Score         float64            `json:"risk_score"`
	Factors       []string           `json:"risk_factors"`
	Contributions []RiskContribution `json:"contributions,omitempty"`
	Band          RiskBand           `json:"overall_risk_band,omitempty"`
}

// ConfidenceLevel is the four-step qualitative band for a confidence value.
type ConfidenceLevel string

const (
	ConfidenceHigh     ConfidenceLevel = "High"
	ConfidenceModerate ConfidenceLevel = "Moderate"
	ConfidenceLow      ConfidenceLevel = "Low"
	ConfidenceVeryLow  ConfidenceLevel = "Very Low"
)

// String returns the string representation of ConfidenceLevel
func (c ConfidenceLevel) String() string {
	return string(c)
}

// ConfidenceBand is the presenter's answer for one score.
type ConfidenceBand struct {
	Score   float64         `json:"score"`
	Level   ConfidenceLevel `json:"level"`
	Color   string          `json:"color"`
	Clamped bool            `json:"clamped,omitempty"`
}

// Severity tiers used by the finding classifier.
type Severity string

const (
	SeverityHigh     Severity = "High"
	SeverityModerate Severity = "Moderate"
	SeverityLow      Severity = "Low"
)

// ClassifiedFinding is a finding prepared for display.
type ClassifiedFinding struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Probability float64 `json:"probability"`
	Location    string  `json:"location,omitempty"`
	Description string  `json:"description,omitempty"`
}

// ClassifiedFindings partitions findings into severity tiers. Each tier keeps
// the input order.
type ClassifiedFindings struct {
	High     []ClassifiedFinding `json:"high"`
	Moderate []ClassifiedFinding `json:"moderate"`
	Low      []ClassifiedFinding `json:"low"`
}

// Total returns the number of classified findings.
func (c ClassifiedFindings) Total() int {
	return len(c.High) + len(c.Moderate) + len(c.Low)
}

// LabStatus is the outcome of comparing one lab value to its reference range.
type LabStatus string

const (
	LabNormal  LabStatus = "normal"
	LabLow     LabStatus = "low"
	LabHigh    LabStatus = "high"
	LabInvalid LabStatus = "invalid"
	LabUnknown LabStatus = "unknown"
)

// LabResult is one evaluated lab value.
type LabResult struct {
	Name   string      `json:"name"`
	Value  Measurement `json:"value"`
	Low    *float64    `json:"low,omitempty"`
	High   *float64    `json:"high,omitempty"`
	Unit   string      `json:"unit,omitempty"`
	Status LabStatus   `json:"status"`
}

// VitalStatus flags a vital for charting.
type VitalStatus struct {
	Name     VitalName   `json:"name"`
	Value    Measurement `json:"value"`
	Abnormal bool        `json:"abnormal"`
}
