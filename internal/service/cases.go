package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/review"
)

const (
	topDiagnosisLimit   = 5
	recentActivityLimit = 10
	statsSampleLimit    = 1000
)

// Event types published after case mutations.
const (
	EventCaseCreated  = "case.created"
	EventCaseUpdated  = "case.updated"
	EventCaseDeleted  = "case.deleted"
	EventCaseReviewed = "case.reviewed"
)

// Event notifies subscribers of a case change. ClinicianID is the case owner.
type Event struct {
	Type        string    `json:"type"`
	CaseID      int64     `json:"case_id"`
	ClinicianID string    `json:"clinician_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventPublisher receives case events. Publish must not block.
type EventPublisher interface {
	Publish(event Event)
}

// ReviewStore is the subset of review.Store the case service needs.
type ReviewStore interface {
	Save(ctx context.Context, r *review.Review) error
	Get(ctx context.Context, caseID int64) (*review.Review, error)
}

// CaseService manages stored cases, their audit trail and clinician reviews.
// A non-empty clinicianID scopes every lookup to that clinician's cases.
type CaseService struct {
	repo      domain.CaseRepository
	reviews   ReviewStore
	reporter  domain.ReportGenerator
	publisher EventPublisher
	builder   *CaseBuilder
	scorer    *Scorer
	logger    *logrus.Logger
	now       func() time.Time
}

// CaseServiceOption configures optional collaborators.
type CaseServiceOption func(*CaseService)

// WithReviewStore enables clinician reviews.
func WithReviewStore(store ReviewStore) CaseServiceOption {
	return func(s *CaseService) { s.reviews = store }
}

// WithReportGenerator enables narrative reports.
func WithReportGenerator(g domain.ReportGenerator) CaseServiceOption {
	return func(s *CaseService) { s.reporter = g }
}

// WithEventPublisher sends case events to p.
func WithEventPublisher(p EventPublisher) CaseServiceOption {
	return func(s *CaseService) { s.publisher = p }
}

// NewCaseService creates a case service backed by repo.
func NewCaseService(repo domain.CaseRepository, scorer *Scorer, logger *logrus.Logger, opts ...CaseServiceOption) *CaseService {
	s := &CaseService{
		repo:    repo,
		scorer:  scorer,
		builder: NewCaseBuilder(scorer.Aggregator),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create builds a case from draft, stores it and records the action.
func (s *CaseService) Create(ctx context.Context, draft CaseDraft) (*domain.Case, error) {
	c := s.builder.Build(draft)
	if c.Risk != nil {
		banded := s.scorer.Bander.Apply(*c.Risk)
		c.Risk = &banded
	}

	if err := s.repo.CreateCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	s.audit(ctx, c.ClinicianID, domain.ActionCreateCase, fmt.Sprintf("Created case %d", c.ID))
	s.publish(EventCaseCreated, c.ID, c.ClinicianID)

	s.logger.WithFields(logrus.Fields{
		"case_id":      c.ID,
		"clinician_id": c.ClinicianID,
		"diagnosis":    c.PrimaryDiagnosis(),
	}).Info("Case created")
	return c, nil
}

// Get returns a case visible to clinicianID.
func (s *CaseService) Get(ctx context.Context, id int64, clinicianID string) (*domain.Case, error) {
	c, err := s.repo.GetCase(ctx, id)
	if err != nil {
		return nil, err
	}
	if clinicianID != "" && c.ClinicianID != "" && c.ClinicianID != clinicianID {
		return nil, domain.ErrCaseNotFound
	}
	return c, nil
}

// List returns cases matching filter, newest first.
func (s *CaseService) List(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.NewValidationError("status", "unknown case status", string(filter.Status))
	}
	cases, err := s.repo.ListCases(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return cases, nil
}

// Update applies update to a case. Only the fields CaseUpdate exposes change.
func (s *CaseService) Update(ctx context.Context, id int64, clinicianID string, update domain.CaseUpdate) (*domain.Case, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	existing, err := s.Get(ctx, id, clinicianID)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.UpdateCase(ctx, id, update)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, clinicianID, domain.ActionUpdateCase, fmt.Sprintf("Updated case %d", id))
	s.publish(EventCaseUpdated, id, existing.ClinicianID)
	return c, nil
}

// Delete removes a case.
func (s *CaseService) Delete(ctx context.Context, id int64, clinicianID string) error {
	existing, err := s.Get(ctx, id, clinicianID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCase(ctx, id); err != nil {
		return err
	}

	s.audit(ctx, clinicianID, domain.ActionDeleteCase, fmt.Sprintf("Deleted case %d", id))
	s.publish(EventCaseDeleted, id, existing.ClinicianID)
	return nil
}

// Summary returns the one-line digest of a case.
func (s *CaseService) Summary(ctx context.Context, id int64, clinicianID string) (string, error) {
	c, err := s.Get(ctx, id, clinicianID)
	if err != nil {
		return "", err
	}
	return SummarizeCase(c), nil
}

// Export renders one case in format and records the export.
func (s *CaseService) Export(ctx context.Context, id int64, clinicianID string, format ExportFormat) (*Export, error) {
	c, err := s.Get(ctx, id, clinicianID)
	if err != nil {
		return nil, err
	}

	out, err := ExportRecords(c, format)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, clinicianID, domain.ActionExportCase, fmt.Sprintf("Exported case %d as %s", id, format))
	return out, nil
}

// ExportAll renders every case matching filter as one document.
func (s *CaseService) ExportAll(ctx context.Context, filter domain.CaseFilter, format ExportFormat) (*Export, error) {
	cases, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if cases == nil {
		cases = []*domain.Case{}
	}

	out, err := ExportRecords(cases, format)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, filter.ClinicianID, domain.ActionExportCase, fmt.Sprintf("Exported %d cases as %s", len(cases), format))
	return out, nil
}

// Statistics computes dashboard counters for clinicianID ("" for all).
func (s *CaseService) Statistics(ctx context.Context, clinicianID string) (*domain.CaseStatistics, error) {
	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	counts, err := s.repo.CountCases(ctx, clinicianID, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	cases, err := s.repo.ListCases(ctx, domain.CaseFilter{ClinicianID: clinicianID, Limit: statsSampleLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	activity, err := s.repo.RecentActivity(ctx, clinicianID, recentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity: %w", err)
	}
	if activity == nil {
		activity = []domain.AuditEntry{}
	}

	return &domain.CaseStatistics{
		CaseCounts:     *counts,
		TopDiagnoses:   topDiagnoses(cases, topDiagnosisLimit),
		RecentActivity: activity,
	}, nil
}

// topDiagnoses counts primary diagnoses, most frequent first, ties by name.
func topDiagnoses(cases []*domain.Case, limit int) []domain.DiagnosisCount {
	counts := map[string]int{}
	for _, c := range cases {
		if d := c.PrimaryDiagnosis(); d != "" {
			counts[d]++
		}
	}

	out := make([]domain.DiagnosisCount, 0, len(counts))
	for d, n := range counts {
		out = append(out, domain.DiagnosisCount{Diagnosis: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Diagnosis < out[j].Diagnosis
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SaveReview records the clinician's verdict. An active case moves to reviewed.
func (s *CaseService) SaveReview(ctx context.Context, caseID int64, clinicianID string, r *review.Review) (*review.Review, error) {
	if s.reviews == nil {
		return nil, errors.New("review storage is not configured")
	}
	if r == nil || !r.Verdict.IsValid() {
		var verdict string
		if r != nil {
			verdict = string(r.Verdict)
		}
		return nil, domain.NewValidationError("verdict", "verdict must be agree, disagree or uncertain", verdict)
	}

	c, err := s.Get(ctx, caseID, clinicianID)
	if err != nil {
		return nil, err
	}

	r.CaseID = caseID
	if r.ClinicianID == "" {
		r.ClinicianID = clinicianID
	}
	r.AIDiagnosis = c.PrimaryDiagnosis()
	if err := s.reviews.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save review: %w", err)
	}

	if c.Status == domain.CaseActive {
		reviewed := domain.CaseReviewed
		if _, err := s.repo.UpdateCase(ctx, caseID, domain.CaseUpdate{Status: &reviewed}); err != nil {
			return nil, fmt.Errorf("failed to mark case reviewed: %w", err)
		}
	}

	s.audit(ctx, clinicianID, domain.ActionReviewCase, fmt.Sprintf("Reviewed case %d: %s", caseID, r.Verdict))
	s.publish(EventCaseReviewed, caseID, c.ClinicianID)
	return r, nil
}

// GetReview returns the review for a case.
func (s *CaseService) GetReview(ctx context.Context, caseID int64, clinicianID string) (*review.Review, error) {
	if s.reviews == nil {
		return nil, domain.ErrReviewNotFound
	}
	if _, err := s.Get(ctx, caseID, clinicianID); err != nil {
		return nil, err
	}

	r, err := s.reviews.Get(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review: %w", err)
	}
	if r == nil {
		return nil, domain.ErrReviewNotFound
	}
	return r, nil
}

// Report asks the report generator for a narrative report of a case.
func (s *CaseService) Report(ctx context.Context, id int64, clinicianID string) (string, error) {
	if s.reporter == nil {
		return "", fmt.Errorf("report generation: %w", domain.ErrAnalyzerUnavailable)
	}
	c, err := s.Get(ctx, id, clinicianID)
	if err != nil {
		return "", err
	}
	return s.reporter.GenerateReport(ctx, c)
}

// audit records an action. Failures are logged, never returned.
func (s *CaseService) audit(ctx context.Context, clinicianID, action, details string) {
	entry := &domain.AuditEntry{
		ClinicianID: clinicianID,
		Action:      action,
		Details:     details,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.LogAction(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("Failed to record audit entry")
	}
}

// publish announces a change to the case owned by ownerID.
func (s *CaseService) publish(eventType string, caseID int64, ownerID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(Event{
		Type:        eventType,
		CaseID:      caseID,
		ClinicianID: ownerID,
		Timestamp:   s.now().UTC(),
	})
}
