package domain

import (
	"context"
	"time"
)

// ImageAnalyzer turns a decoded radiograph into structured findings.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, image ImageInput) (*ImageAnalysis, error)
}

// ClinicalAnalyzer turns structured clinical data into an assessment.
type ClinicalAnalyzer interface {
	AnalyzeClinical(ctx context.Context, input ClinicalInput) (*ClinicalAnalysis, error)
}

// DiagnosisFuser merges image and clinical conclusions.
type DiagnosisFuser interface {
	FuseDiagnosis(ctx context.Context, image *ImageAnalysis, clinical *ClinicalAnalysis, patient PatientContext) (*FusedDiagnosis, error)
}

// ReportGenerator writes a narrative report for a stored case.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, c *Case) (string, error)
}

// AnalysisCache stores serialized model responses.
type AnalysisCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrCacheMiss when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// CaseRepository defines the interface for case persistence and the activity log
type CaseRepository interface {
	CreateCase(ctx context.Context, c *Case) error
	GetCase(ctx context.Context, id int64) (*Case, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]*Case, error)
	UpdateCase(ctx context.Context, id int64, update CaseUpdate) (*Case, error)
	DeleteCase(ctx context.Context, id int64) error
	CountCases(ctx context.Context, clinicianID string, monthStart time.Time) (*CaseCounts, error)
	LogAction(ctx context.Context, entry *AuditEntry) error
	RecentActivity(ctx context.Context, clinicianID string, limit int) ([]AuditEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetScoringConfig() *ScoringConfig
	ReferenceTable() *ReferenceTable
	Reload() error
	Validate() error
}
