// Package review stores clinician sign-off on AI-assisted cases.
// Each case carries at most one review; saving again replaces it.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Verdict is the clinician's judgement of the AI diagnosis.
type Verdict string

const (
	VerdictAgree     Verdict = "agree"
	VerdictDisagree  Verdict = "disagree"
	VerdictUncertain Verdict = "uncertain"
)

// IsValid checks if the verdict is valid
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictAgree, VerdictDisagree, VerdictUncertain:
		return true
	default:
		return false
	}
}

// Review is a clinician's assessment of one case.
type Review struct {
	ID                 int64     `json:"id,omitempty"`
	CaseID             int64     `json:"case_id"`
	ClinicianID        string    `json:"clinician_id,omitempty"`
	AIDiagnosis        string    `json:"ai_diagnosis,omitempty"`        // diagnosis at review time
	ClinicianDiagnosis string    `json:"clinician_diagnosis,omitempty"` // clinician's own call
	Verdict            Verdict   `json:"verdict"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store defines the interface for review storage operations.
type Store interface {
	// Save stores or replaces the review for review.CaseID.
	Save(ctx context.Context, review *Review) error

	// Get returns the review for a case, or nil when none exists.
	Get(ctx context.Context, caseID int64) (*Review, error)

	// List returns reviews, newest first.
	List(ctx context.Context, limit, offset int) ([]*Review, error)

	// Count returns the total number of reviews.
	Count(ctx context.Context) (int64, error)

	// Delete removes a review by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON writes every review as one JSON document.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads an export, skipping cases that already have a review.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// ReviewExport represents the JSON export format.
type ReviewExport struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Reviews    []*Review `json:"reviews"`
}

const exportVersion = "1.0"

// maxExportLimit bounds one export.
const maxExportLimit = 1000000

type lister interface {
	List(ctx context.Context, limit, offset int) ([]*Review, error)
}

func exportJSON(ctx context.Context, s lister, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list reviews: %w", err)
	}

	export := &ReviewExport{
		Version:    exportVersion,
		ExportedAt: time.Now(),
		Count:      len(all),
		Reviews:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export ReviewExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, r := range export.Reviews {
		existing, err := s.Get(ctx, r.CaseID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil || !r.Verdict.IsValid() {
			skipped++
			continue
		}

		r.ID = 0
		if err := s.Save(ctx, r); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
