package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cxr-assist-server/internal/domain"
)

// AnalysisRequest carries the inputs for one analysis run. At least one of
// Image and Clinical must be set.
type AnalysisRequest struct {
	Image    *domain.ImageInput
	Clinical *domain.ClinicalInput
	Fuse     bool
}

// AnalysisResult is the scored outcome of an analysis run.
type AnalysisResult struct {
	Image         *domain.ImageAnalysis      `json:"image_analysis,omitempty"`
	Clinical      *domain.ClinicalAnalysis   `json:"clinical_analysis,omitempty"`
	Fused         *domain.FusedDiagnosis     `json:"fused_diagnosis,omitempty"`
	Classified    *domain.ClassifiedFindings `json:"classified_findings,omitempty"`
	Confidence    *domain.ConfidenceBand     `json:"confidence,omitempty"`
	VitalWarnings []string                   `json:"vital_warnings"`
	LabResults    []domain.LabResult         `json:"lab_results,omitempty"`
	Risk          domain.RiskAssessment      `json:"risk_assessment"`
	DurationMs    int64                      `json:"duration_ms"`
}

// AnalysisService runs the model collaborators and scores their output.
type AnalysisService struct {
	logger   *logrus.Logger
	scorer   *Scorer
	image    domain.ImageAnalyzer
	clinical domain.ClinicalAnalyzer
	fuser    domain.DiagnosisFuser
}

// NewAnalysisService creates an analysis service. Any collaborator may be nil;
// requests that need a missing one fail with ErrAnalyzerUnavailable.
func NewAnalysisService(
	logger *logrus.Logger,
	scorer *Scorer,
	image domain.ImageAnalyzer,
	clinical domain.ClinicalAnalyzer,
	fuser domain.DiagnosisFuser,
) *AnalysisService {
	return &AnalysisService{
		logger:   logger,
		scorer:   scorer,
		image:    image,
		clinical: clinical,
		fuser:    fuser,
	}
}

// Analyze runs image and clinical analysis concurrently, optionally fuses them,
// then classifies findings, validates vitals, evaluates labs and scores risk.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if req.Image == nil && req.Clinical == nil {
		return nil, domain.NewValidationError("request", "an image or clinical data is required", nil)
	}
	if req.Image != nil && s.image == nil {
		return nil, fmt.Errorf("image analysis: %w", domain.ErrAnalyzerUnavailable)
	}
	if req.Clinical != nil && s.clinical == nil {
		return nil, fmt.Errorf("clinical analysis: %w", domain.ErrAnalyzerUnavailable)
	}

	start := time.Now()
	result := &AnalysisResult{}

	g, gctx := errgroup.WithContext(ctx)
	if req.Image != nil {
		g.Go(func() error {
			analysis, err := s.image.AnalyzeImage(gctx, *req.Image)
			if err != nil {
				return fmt.Errorf("image analysis: %w", err)
			}
			result.Image = analysis
			return nil
		})
	}
	if req.Clinical != nil {
		g.Go(func() error {
			analysis, err := s.clinical.AnalyzeClinical(gctx, *req.Clinical)
			if err != nil {
				return fmt.Errorf("clinical analysis: %w", err)
			}
			result.Clinical = analysis
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Warn("Analysis failed")
		return nil, err
	}

	if req.Fuse && result.Image != nil && result.Clinical != nil && s.fuser != nil {
		var patient domain.PatientContext
		if req.Image != nil {
			patient = req.Image.Context
		}
		fused, err := s.fuser.FuseDiagnosis(ctx, result.Image, result.Clinical, patient)
		if err != nil {
			s.logger.WithError(err).Warn("Diagnosis fusion failed, continuing without it")
		} else {
			result.Fused = fused
		}
	}

	s.score(result, req.Clinical)
	result.DurationMs = time.Since(start).Milliseconds()

	s.logger.WithFields(logrus.Fields{
		"image":        result.Image != nil,
		"clinical":     result.Clinical != nil,
		"fused":        result.Fused != nil,
		"risk_score":   result.Risk.Score,
		"risk_factors": len(result.Risk.Factors),
		"duration_ms":  result.DurationMs,
	}).Info("Completed analysis")

	return result, nil
}

func (s *AnalysisService) score(result *AnalysisResult, clinical *domain.ClinicalInput) {
	var findings domain.FindingSet
	if result.Image != nil {
		findings = result.Image.Findings
		classified := s.scorer.Classifier.Classify(findings)
		result.Classified = &classified
		band := s.scorer.Presenter.Band(result.Image.OverallAssessment.Confidence)
		result.Confidence = &band
	}

	var vitals domain.Measurements
	result.VitalWarnings = []string{}
	if clinical != nil {
		vitals = clinical.Vitals
		result.VitalWarnings = s.scorer.Validator.Validate(vitals)
		if len(clinical.LabResults) > 0 {
			result.LabResults = s.scorer.Labs.Evaluate(clinical.LabResults)
		}
	}

	result.Risk = s.scorer.AssessRisk(RiskInput{Findings: findings, Vitals: vitals})
}

// Draft converts a result into a case draft for the builder.
func (r *AnalysisResult) Draft(clinical *domain.ClinicalInput) CaseDraft {
	draft := CaseDraft{
		Image:    r.Image,
		Clinical: r.Clinical,
		Fused:    r.Fused,
	}
	if clinical != nil {
		draft.Symptoms = clinical.Symptoms
		draft.Vitals = clinical.Vitals
		draft.LabResults = clinical.LabResults
	}
	return draft
}
