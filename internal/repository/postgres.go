package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
)

// PostgresRepository stores cases in PostgreSQL. The schema comes from the
// embedded migrations.
type PostgresRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresRepository creates a repository on an open pool.
func NewPostgresRepository(db *pgxpool.Pool, logger *logrus.Logger) *PostgresRepository {
	return &PostgresRepository{
		db:  db,
		log: logger,
	}
}

func pgTimeArg(t time.Time) interface{} { return t.UTC() }

func scanPostgresCase(row pgx.Row) (*domain.Case, error) {
	c := &domain.Case{}
	docs := &caseDocuments{}
	var status string

	err := row.Scan(
		&c.ID, &c.ExternalID, &c.ClinicianID, &c.PatientID, &c.Title,
		&docs.Symptoms, &docs.Vitals, &docs.LabResults, &c.ImageFilename,
		&docs.ImageAnalysis, &docs.AIDiagnosis, &docs.ConfidenceScores,
		&c.Recommendations, &docs.Risk, &status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := docs.decodeInto(c); err != nil {
		return nil, err
	}
	c.Status = domain.CaseStatus(status)
	return c, nil
}

// CreateCase inserts c and fills in its ID and timestamps.
func (r *PostgresRepository) CreateCase(ctx context.Context, c *domain.Case) error {
	docs, err := encodeDocuments(c)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = domain.CaseActive
	}

	query := `
		INSERT INTO cases (
			external_id, clinician_id, patient_id, case_title,
			symptoms, vitals, lab_results, image_filename, image_analysis, ai_diagnosis,
			primary_diagnosis, confidence_scores, recommendations, risk_assessment, case_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		c.ExternalID, c.ClinicianID, c.PatientID, c.Title,
		docs.Symptoms, docs.Vitals, docs.LabResults, c.ImageFilename,
		docs.ImageAnalysis, docs.AIDiagnosis,
		c.PrimaryDiagnosis(), docs.ConfidenceScores, c.Recommendations, docs.Risk,
		string(c.Status),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"external_id": c.ExternalID,
			"error":       err,
		}).Error("Failed to create case")
		return fmt.Errorf("creating case: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"case_id":      c.ID,
		"clinician_id": c.ClinicianID,
	}).Debug("Case stored")
	return nil
}

// GetCase returns the case with id or ErrCaseNotFound.
func (r *PostgresRepository) GetCase(ctx context.Context, id int64) (*domain.Case, error) {
	c, err := scanPostgresCase(r.db.QueryRow(ctx,
		"SELECT "+caseSelectColumns+" FROM cases WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting case: %w", err)
	}
	return c, nil
}

// ListCases returns matching cases, newest first.
func (r *PostgresRepository) ListCases(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	where, args := whereClause(filter, dollar, pgTimeArg, "ai_diagnosis::text")
	args = append(args, filter.EffectiveLimit(), filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM cases%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		caseSelectColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	cases := []*domain.Case{}
	for rows.Next() {
		c, err := scanPostgresCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// UpdateCase applies the whitelisted fields of update.
func (r *PostgresRepository) UpdateCase(ctx context.Context, id int64, update domain.CaseUpdate) (*domain.Case, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	assignments, err := updateAssignments(update)
	if err != nil {
		return nil, err
	}

	sets := make([]string, 0, len(assignments)+1)
	args := make([]interface{}, 0, len(assignments)+1)
	for _, a := range assignments {
		args = append(args, a.value)
		sets = append(sets, fmt.Sprintf("%s = $%d", a.column, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	tag, err := r.db.Exec(ctx,
		fmt.Sprintf("UPDATE cases SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("updating case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrCaseNotFound
	}
	return r.GetCase(ctx, id)
}

// DeleteCase removes a case.
func (r *PostgresRepository) DeleteCase(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM cases WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCaseNotFound
	}
	return nil
}

// CountCases groups case counts by status for clinicianID ("" for all).
func (r *PostgresRepository) CountCases(ctx context.Context, clinicianID string, monthStart time.Time) (*domain.CaseCounts, error) {
	query := `SELECT case_status, COUNT(*),
		COUNT(*) FILTER (WHERE created_at >= $1)
		FROM cases`
	args := []interface{}{monthStart.UTC()}
	if clinicianID != "" {
		query += " WHERE clinician_id = $2"
		args = append(args, clinicianID)
	}
	query += " GROUP BY case_status"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting cases: %w", err)
	}
	defer rows.Close()
	return collectCounts(rows)
}

// LogAction appends an audit entry.
func (r *PostgresRepository) LogAction(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx,
		"INSERT INTO audit_log (clinician_id, action, details, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
		entry.ClinicianID, entry.Action, entry.Details, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// RecentActivity returns the newest audit entries.
func (r *PostgresRepository) RecentActivity(ctx context.Context, clinicianID string, limit int) ([]domain.AuditEntry, error) {
	query := "SELECT id, clinician_id, action, details, created_at FROM audit_log"
	args := []interface{}{}
	if clinicianID != "" {
		args = append(args, clinicianID)
		query += " WHERE clinician_id = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.ClinicianID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping checks the pool.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close closes the pool.
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}
