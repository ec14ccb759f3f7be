package service

import (
	"fmt"
	"strings"

	"github.com/cxr-assist-server/internal/domain"
)

// SummaryUnavailable is returned when a case has nothing to summarize.
const SummaryUnavailable = "Case summary unavailable"

const (
	summarySymptomLimit = 3
	summaryTimeLayout   = "2006-01-02 15:04:05 UTC"
)

// SummarizeCase builds the one-line digest shown in case lists:
// patient, first symptoms, primary diagnosis and creation time, joined by " | ".
// Missing fields contribute nothing.
func SummarizeCase(c *domain.Case) string {
	if c == nil {
		return SummaryUnavailable
	}

	var parts []string
	if c.PatientID != "" {
		parts = append(parts, "Patient ID: "+c.PatientID)
	}

	if len(c.Symptoms) > 0 {
		shown := c.Symptoms
		more := ""
		if len(shown) > summarySymptomLimit {
			shown = shown[:summarySymptomLimit]
			more = "..."
		}
		parts = append(parts, fmt.Sprintf("Symptoms: %s%s", strings.Join(shown, ", "), more))
	}

	if primary := c.PrimaryDiagnosis(); primary != "" {
		parts = append(parts, "AI Diagnosis: "+primary)
	}

	if !c.CreatedAt.IsZero() {
		parts = append(parts, "Created: "+c.CreatedAt.UTC().Format(summaryTimeLayout))
	}

	if len(parts) == 0 {
		return SummaryUnavailable
	}
	return strings.Join(parts, " | ")
}
