package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
)

// Scorer bundles the pure scoring components behind one configuration.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	Validator  *VitalSignValidator
	Classifier *FindingClassifier
	Presenter  *ConfidencePresenter
	Aggregator *RiskAggregator
	Bander     *RiskBander
	Labs       *LabEvaluator
	Ranges     *domain.ReferenceTable
}

// NewScorer wires the scoring components from cfg and a shared reference table.
func NewScorer(cfg domain.ScoringConfig, ranges *domain.ReferenceTable, logger logrus.FieldLogger) (*Scorer, error) {
	if ranges == nil {
		ranges = domain.DefaultReferenceTable()
	}

	classifier, err := NewFindingClassifier(cfg.FindingThresholds)
	if err != nil {
		return nil, fmt.Errorf("finding classifier: %w", err)
	}
	presenter, err := NewConfidencePresenter(cfg.ConfidenceBands, logger)
	if err != nil {
		return nil, fmt.Errorf("confidence presenter: %w", err)
	}
	bander, err := NewRiskBander(cfg.RiskBands)
	if err != nil {
		return nil, fmt.Errorf("risk bander: %w", err)
	}

	return &Scorer{
		Validator:  NewVitalSignValidator(ranges),
		Classifier: classifier,
		Presenter:  presenter,
		Aggregator: NewRiskAggregator(),
		Bander:     bander,
		Labs:       NewLabEvaluator(ranges),
		Ranges:     ranges,
	}, nil
}

// DefaultScoringConfig returns the built-in thresholds.
func DefaultScoringConfig() domain.ScoringConfig {
	return domain.ScoringConfig{
		FindingThresholds: domain.DefaultFindingThresholds(),
		ConfidenceBands:   domain.DefaultConfidenceBands(),
		RiskBands:         domain.DefaultRiskBands(),
	}
}

// AssessRisk scores and labels the input.
func (s *Scorer) AssessRisk(in RiskInput) domain.RiskAssessment {
	return s.Bander.Apply(s.Aggregator.Assess(in))
}
