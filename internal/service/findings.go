package service

import (
	"fmt"

	"github.com/cxr-assist-server/internal/domain"
)

// FindingClassifier buckets findings into severity tiers by probability.
type FindingClassifier struct {
	thresholds domain.FindingThresholds
}

// NewFindingClassifier creates a classifier. Moderate must not exceed High.
func NewFindingClassifier(thresholds domain.FindingThresholds) (*FindingClassifier, error) {
	if thresholds.Moderate > thresholds.High {
		return nil, domain.NewValidationError("finding_thresholds",
			"moderate threshold exceeds high threshold",
			fmt.Sprintf("%v > %v", thresholds.Moderate, thresholds.High))
	}
	return &FindingClassifier{thresholds: thresholds}, nil
}

// Thresholds returns the active tier bounds.
func (c *FindingClassifier) Thresholds() domain.FindingThresholds {
	return c.thresholds
}

// Tier returns the tier for probability p.
func (c *FindingClassifier) Tier(p float64) domain.Severity {
	switch {
	case p >= c.thresholds.High:
		return domain.SeverityHigh
	case p >= c.thresholds.Moderate:
		return domain.SeverityModerate
	default:
		return domain.SeverityLow
	}
}

// Classify partitions findings into High, Moderate and Low. Findings without a
// probability are dropped rather than treated as zero. Input order is kept
// within each tier.
func (c *FindingClassifier) Classify(findings domain.FindingSet) domain.ClassifiedFindings {
	result := domain.ClassifiedFindings{
		High:     []domain.ClassifiedFinding{},
		Moderate: []domain.ClassifiedFinding{},
		Low:      []domain.ClassifiedFinding{},
	}

	for _, f := range findings {
		if !f.HasProbability() {
			continue
		}
		entry := domain.ClassifiedFinding{
			Name:        f.Name,
			DisplayName: displayName(f.Name),
			Probability: *f.Probability,
			Location:    f.Location,
			Description: f.Description,
		}

		switch c.Tier(*f.Probability) {
		case domain.SeverityHigh:
			result.High = append(result.High, entry)
		case domain.SeverityModerate:
			result.Moderate = append(result.Moderate, entry)
		default:
			result.Low = append(result.Low, entry)
		}
	}

	return result
}
