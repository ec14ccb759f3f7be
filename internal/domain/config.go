package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Inference InferenceConfig `mapstructure:"inference"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	MCP       MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath      string        `mapstructure:"sqlite_path"`
	ReviewPath      string        `mapstructure:"review_path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	Backend    string        `mapstructure:"backend"` // "memory", "redis", "none"
	RedisURL   string        `mapstructure:"redis_url"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	MaxItems   int           `mapstructure:"max_items"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// InferenceConfig configures the OpenAI-compatible model endpoint
type InferenceConfig struct {
	BaseURL           string               `mapstructure:"base_url"`
	APIKey            string               `mapstructure:"api_key"`
	Model             string               `mapstructure:"model"`
	Timeout           time.Duration        `mapstructure:"timeout"`
	RequestsPerSecond float64              `mapstructure:"requests_per_second"`
	MaxRetries        int                  `mapstructure:"max_retries"`
	RetryBackoff      time.Duration        `mapstructure:"retry_backoff"`
	MaxTokens         int                  `mapstructure:"max_tokens"`
	CircuitBreaker    CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the breaker around model calls
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// ScoringConfig holds every threshold the scoring core uses. Finding tiers and
// confidence bands are configured independently.
type ScoringConfig struct {
	FindingThresholds   FindingThresholds `mapstructure:"finding_thresholds"`
	ConfidenceBands     ConfidenceBands   `mapstructure:"confidence_bands"`
	RiskBands           RiskBands         `mapstructure:"risk_bands"`
	ReferenceRangesFile string            `mapstructure:"reference_ranges_file"`
}

// FindingThresholds are the lower bounds of the High and Moderate tiers.
type FindingThresholds struct {
	High     float64 `mapstructure:"high" json:"high"`
	Moderate float64 `mapstructure:"moderate" json:"moderate"`
}

// ConfidenceBands are the lower bounds of the High, Moderate and Low bands.
type ConfidenceBands struct {
	High     float64 `mapstructure:"high" json:"high"`
	Moderate float64 `mapstructure:"moderate" json:"moderate"`
	Low      float64 `mapstructure:"low" json:"low"`
}

// RiskBands are the lower bounds used to label a risk score.
type RiskBands struct {
	Moderate float64 `mapstructure:"moderate" json:"moderate"`
	High     float64 `mapstructure:"high" json:"high"`
	Critical float64 `mapstructure:"critical" json:"critical"`
}

// DefaultFindingThresholds returns the 0.7 / 0.3 tiers.
func DefaultFindingThresholds() FindingThresholds {
	return FindingThresholds{High: 0.7, Moderate: 0.3}
}

// DefaultConfidenceBands returns the 0.8 / 0.6 / 0.4 bands.
func DefaultConfidenceBands() ConfidenceBands {
	return ConfidenceBands{High: 0.8, Moderate: 0.6, Low: 0.4}
}

// DefaultRiskBands returns the default risk label policy.
func DefaultRiskBands() RiskBands {
	return RiskBands{Moderate: 0.25, High: 0.5, Critical: 0.75}
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	TransportType string `mapstructure:"transport_type"` // "stdio", "http"
	HTTPAddr      string `mapstructure:"http_addr"`
}
