package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/cxr-assist-server/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g. CXR_SERVER_PORT.
const EnvPrefix = "CXR"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
	ranges     *domain.ReferenceTable
}

// NewManager creates a new configuration manager that searches the default
// locations for config.yaml.
func NewManager() (*Manager, error) {
	return NewManagerWithFile("")
}

// NewManagerWithFile loads configuration from configFile when it is not empty.
func NewManagerWithFile(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults.
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cxr-assist/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	ranges := domain.DefaultReferenceTable()
	if path := config.Scoring.ReferenceRangesFile; path != "" {
		overrides, err := LoadReferenceRanges(path)
		if err != nil {
			return err
		}
		if ranges, err = ranges.Merge(overrides...); err != nil {
			return fmt.Errorf("merging reference ranges: %w", err)
		}
	}

	m.v = v
	m.config = config
	m.ranges = ranges
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dataDir := DefaultDataDir()

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("server.requests_per_second", 10)
	v.SetDefault("server.burst", 20)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite_path", DataPath(dataDir, "cases.db"))
	v.SetDefault("database.review_path", DataPath(dataDir, "reviews.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "cxr_assist")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.migrate_on_start", true)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.key_prefix", "cxr:")
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.default_ttl", "24h")

	// Inference defaults
	v.SetDefault("inference.base_url", "https://api.openai.com/v1")
	v.SetDefault("inference.api_key", "")
	v.SetDefault("inference.model", "gpt-4o")
	v.SetDefault("inference.timeout", "90s")
	v.SetDefault("inference.requests_per_second", 2)
	v.SetDefault("inference.max_retries", 2)
	v.SetDefault("inference.retry_backoff", "1s")
	v.SetDefault("inference.max_tokens", 2000)
	v.SetDefault("inference.circuit_breaker.max_requests", 3)
	v.SetDefault("inference.circuit_breaker.interval", "60s")
	v.SetDefault("inference.circuit_breaker.timeout", "30s")
	v.SetDefault("inference.circuit_breaker.min_requests", 5)
	v.SetDefault("inference.circuit_breaker.failure_ratio", 0.6)

	// Scoring defaults
	findings := domain.DefaultFindingThresholds()
	v.SetDefault("scoring.finding_thresholds.high", findings.High)
	v.SetDefault("scoring.finding_thresholds.moderate", findings.Moderate)
	confidence := domain.DefaultConfidenceBands()
	v.SetDefault("scoring.confidence_bands.high", confidence.High)
	v.SetDefault("scoring.confidence_bands.moderate", confidence.Moderate)
	v.SetDefault("scoring.confidence_bands.low", confidence.Low)
	risk := domain.DefaultRiskBands()
	v.SetDefault("scoring.risk_bands.moderate", risk.Moderate)
	v.SetDefault("scoring.risk_bands.high", risk.High)
	v.SetDefault("scoring.risk_bands.critical", risk.Critical)
	v.SetDefault("scoring.reference_ranges_file", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// MCP defaults
	v.SetDefault("mcp.server_name", "cxr-assist")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.transport_type", "stdio")
	v.SetDefault("mcp.http_addr", ":8081")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetScoringConfig returns the scoring thresholds
func (m *Manager) GetScoringConfig() *domain.ScoringConfig {
	return &m.config.Scoring
}

// ReferenceTable returns the built-in ranges merged with any configured overrides.
func (m *Manager) ReferenceTable() *domain.ReferenceTable {
	return m.ranges
}

// ConfigFileUsed returns the file the configuration was read from, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	switch config.Database.Driver {
	case "sqlite":
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}

	switch config.Cache.Backend {
	case "memory":
		if config.Cache.MaxItems <= 0 {
			return fmt.Errorf("cache max items must be positive")
		}
	case "redis":
		if config.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported cache backend: %s", config.Cache.Backend)
	}

	if _, err := url.ParseRequestURI(config.Inference.BaseURL); err != nil {
		return fmt.Errorf("invalid inference base URL: %w", err)
	}
	if config.Inference.RequestsPerSecond <= 0 {
		return fmt.Errorf("inference requests per second must be positive")
	}

	scoring := config.Scoring
	if scoring.FindingThresholds.Moderate > scoring.FindingThresholds.High {
		return fmt.Errorf("finding thresholds: moderate %v exceeds high %v",
			scoring.FindingThresholds.Moderate, scoring.FindingThresholds.High)
	}
	bands := scoring.ConfidenceBands
	if !(bands.Low <= bands.Moderate && bands.Moderate <= bands.High) {
		return fmt.Errorf("confidence bands must satisfy low <= moderate <= high")
	}
	risk := scoring.RiskBands
	if !(risk.Moderate <= risk.High && risk.High <= risk.Critical) {
		return fmt.Errorf("risk bands must satisfy moderate <= high <= critical")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	switch config.MCP.TransportType {
	case "stdio", "http":
	default:
		return fmt.Errorf("unsupported MCP transport: %s", config.MCP.TransportType)
	}

	return nil
}
