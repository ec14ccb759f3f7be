package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/cxr-assist-server/internal/domain"
)

// sqliteTimeLayout is fixed width so stored timestamps sort as text.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// SQLiteRepository stores cases in a local SQLite file.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// NewSQLiteRepository opens or creates the case database at dbPath.
func NewSQLiteRepository(dbPath string, logger *logrus.Logger) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Debug("SQLite case store opened")
	return &SQLiteRepository{db: db, dbPath: dbPath, log: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT NOT NULL UNIQUE,
		clinician_id TEXT NOT NULL DEFAULT '',
		patient_id TEXT NOT NULL DEFAULT '',
		case_title TEXT NOT NULL DEFAULT '',
		symptoms TEXT NOT NULL DEFAULT '[]',
		vitals TEXT NOT NULL DEFAULT '{}',
		lab_results TEXT NOT NULL DEFAULT '{}',
		image_filename TEXT NOT NULL DEFAULT '',
		image_analysis TEXT,
		ai_diagnosis TEXT,
		primary_diagnosis TEXT NOT NULL DEFAULT '',
		confidence_scores TEXT NOT NULL DEFAULT '{}',
		recommendations TEXT NOT NULL DEFAULT '',
		risk_assessment TEXT,
		case_status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cases_clinician_created ON cases(clinician_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(case_status);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		clinician_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_clinician_created ON audit_log(clinician_id, created_at);
	`

	_, err := db.Exec(schema)
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
}

func sqliteTimeArg(t time.Time) interface{} { return formatTime(t) }

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteCase(s scanner) (*domain.Case, error) {
	c := &domain.Case{}
	var symptoms, vitals, labs, confidence string
	var imageAnalysis, aiDiagnosis, risk sql.NullString
	var status, createdAt, updatedAt string

	err := s.Scan(
		&c.ID, &c.ExternalID, &c.ClinicianID, &c.PatientID, &c.Title,
		&symptoms, &vitals, &labs, &c.ImageFilename, &imageAnalysis, &aiDiagnosis,
		&confidence, &c.Recommendations, &risk, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	docs := &caseDocuments{
		Symptoms:         []byte(symptoms),
		Vitals:           []byte(vitals),
		LabResults:       []byte(labs),
		ImageAnalysis:    []byte(imageAnalysis.String),
		AIDiagnosis:      []byte(aiDiagnosis.String),
		ConfidenceScores: []byte(confidence),
		Risk:             []byte(risk.String),
	}
	if err := docs.decodeInto(c); err != nil {
		return nil, err
	}

	c.Status = domain.CaseStatus(status)
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return c, nil
}

// CreateCase inserts c and fills in its ID and timestamps.
func (r *SQLiteRepository) CreateCase(ctx context.Context, c *domain.Case) error {
	docs, err := encodeDocuments(c)
	if err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = domain.CaseActive
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO cases (
			external_id, clinician_id, patient_id, case_title,
			symptoms, vitals, lab_results, image_filename, image_analysis, ai_diagnosis,
			primary_diagnosis, confidence_scores, recommendations, risk_assessment,
			case_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ExternalID, c.ClinicianID, c.PatientID, c.Title,
		string(docs.Symptoms), string(docs.Vitals), string(docs.LabResults), c.ImageFilename,
		string(docs.ImageAnalysis), string(docs.AIDiagnosis),
		c.PrimaryDiagnosis(), string(docs.ConfidenceScores), c.Recommendations, string(docs.Risk),
		string(c.Status), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"external_id": c.ExternalID,
			"error":       err,
		}).Error("Failed to create case")
		return fmt.Errorf("creating case: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting insert ID: %w", err)
	}
	c.ID = id
	return nil
}

// GetCase returns the case with id or ErrCaseNotFound.
func (r *SQLiteRepository) GetCase(ctx context.Context, id int64) (*domain.Case, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+caseSelectColumns+" FROM cases WHERE id = ?", id)

	c, err := scanSQLiteCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting case: %w", err)
	}
	return c, nil
}

// ListCases returns matching cases, newest first.
func (r *SQLiteRepository) ListCases(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	where, args := whereClause(filter, questionMark, sqliteTimeArg, "ai_diagnosis")
	args = append(args, filter.EffectiveLimit(), filter.Offset)

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+caseSelectColumns+" FROM cases"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	cases := []*domain.Case{}
	for rows.Next() {
		c, err := scanSQLiteCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// UpdateCase applies the whitelisted fields of update.
func (r *SQLiteRepository) UpdateCase(ctx context.Context, id int64, update domain.CaseUpdate) (*domain.Case, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	assignments, err := updateAssignments(update)
	if err != nil {
		return nil, err
	}
	assignments = append(assignments, assignment{"updated_at", formatTime(time.Now())})

	sets := make([]string, len(assignments))
	args := make([]interface{}, 0, len(assignments)+1)
	for i, a := range assignments {
		sets[i] = a.column + " = ?"
		args = append(args, a.value)
	}
	args = append(args, id)

	result, err := r.db.ExecContext(ctx,
		"UPDATE cases SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("updating case: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, domain.ErrCaseNotFound
	}
	return r.GetCase(ctx, id)
}

// DeleteCase removes a case.
func (r *SQLiteRepository) DeleteCase(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM cases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting case: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return domain.ErrCaseNotFound
	}
	return nil
}

// CountCases groups case counts by status for clinicianID ("" for all).
func (r *SQLiteRepository) CountCases(ctx context.Context, clinicianID string, monthStart time.Time) (*domain.CaseCounts, error) {
	query := `SELECT case_status, COUNT(*),
		COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0)
		FROM cases`
	args := []interface{}{formatTime(monthStart)}
	if clinicianID != "" {
		query += " WHERE clinician_id = ?"
		args = append(args, clinicianID)
	}
	query += " GROUP BY case_status"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting cases: %w", err)
	}
	defer rows.Close()
	return collectCounts(rows)
}

type rowIterator interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func collectCounts(rows rowIterator) (*domain.CaseCounts, error) {
	counts := &domain.CaseCounts{ByStatus: map[domain.CaseStatus]int64{}}
	for rows.Next() {
		var status string
		var total, month int64
		if err := rows.Scan(&status, &total, &month); err != nil {
			return nil, fmt.Errorf("scanning counts: %w", err)
		}
		counts.ByStatus[domain.CaseStatus(status)] = total
		counts.Total += total
		counts.ThisMonth += month
		if domain.CaseStatus(status) == domain.CaseActive {
			counts.Active = total
		}
	}
	return counts, rows.Err()
}

// LogAction appends an audit entry.
func (r *SQLiteRepository) LogAction(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_log (clinician_id, action, details, created_at) VALUES (?, ?, ?, ?)",
		entry.ClinicianID, entry.Action, entry.Details, formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// RecentActivity returns the newest audit entries.
func (r *SQLiteRepository) RecentActivity(ctx context.Context, clinicianID string, limit int) ([]domain.AuditEntry, error) {
	query := "SELECT id, clinician_id, action, details, created_at FROM audit_log"
	var args []interface{}
	if clinicianID != "" {
		query += " WHERE clinician_id = ?"
		args = append(args, clinicianID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ClinicianID, &e.Action, &e.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping checks that the database file is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
