// Package health aggregates component checks for the /health endpoint.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateUnhealthy HealthState = "unhealthy"
	HealthStateDegraded  HealthState = "degraded"
)

// ComponentHealth is the result of one check.
type ComponentHealth struct {
	Name       string      `json:"name"`
	Status     HealthState `json:"status"`
	Critical   bool        `json:"critical"`
	DurationMs int64       `json:"duration_ms"`
	Error      string      `json:"error,omitempty"`
}

// HealthStatus is the aggregated report.
type HealthStatus struct {
	Overall    HealthState                `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

// HealthCheck is a single probe.
type HealthCheck interface {
	Name() string
	Critical() bool
	Check(ctx context.Context) error
}

// PingFunc adapts a ping function into a HealthCheck.
type PingFunc struct {
	CheckName  string
	IsCritical bool
	Ping       func(ctx context.Context) error
}

func (p PingFunc) Name() string                    { return p.CheckName }
func (p PingFunc) Critical() bool                  { return p.IsCritical }
func (p PingFunc) Check(ctx context.Context) error { return p.Ping(ctx) }

// Checker runs every registered check concurrently with a shared timeout.
// A failing critical check makes the service unhealthy; any other failure
// degrades it.
type Checker struct {
	checks  []HealthCheck
	timeout time.Duration
	version string
	started time.Time
	logger  *logrus.Logger
}

// NewChecker creates a checker.
func NewChecker(version string, timeout time.Duration, logger *logrus.Logger, checks ...HealthCheck) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Checker{
		checks:  checks,
		timeout: timeout,
		version: version,
		started: time.Now(),
		logger:  logger,
	}
}

// Register adds a check.
func (c *Checker) Register(check HealthCheck) {
	c.checks = append(c.checks, check)
}

// Check runs all checks and aggregates the result.
func (c *Checker) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([]ComponentHealth, len(c.checks))
	var wg sync.WaitGroup
	for i, check := range c.checks {
		wg.Add(1)
		go func(i int, check HealthCheck) {
			defer wg.Done()
			start := time.Now()
			err := check.Check(ctx)
			result := ComponentHealth{
				Name:       check.Name(),
				Status:     HealthStateHealthy,
				Critical:   check.Critical(),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				result.Status = HealthStateUnhealthy
				result.Error = err.Error()
			}
			results[i] = result
		}(i, check)
	}
	wg.Wait()

	status := HealthStatus{
		Overall:    HealthStateHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(results)),
	}
	for _, r := range results {
		status.Components[r.Name] = r
		if r.Status == HealthStateHealthy {
			continue
		}
		c.logger.WithFields(logrus.Fields{
			"component": r.Name,
			"critical":  r.Critical,
			"error":     r.Error,
		}).Warn("Health check failed")

		if r.Critical {
			status.Overall = HealthStateUnhealthy
		} else if status.Overall == HealthStateHealthy {
			status.Overall = HealthStateDegraded
		}
	}
	return status
}
