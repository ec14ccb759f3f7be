// Package app assembles the storage, cache, inference and scoring components
// shared by the HTTP and MCP entry points.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/cache"
	"github.com/cxr-assist-server/internal/config"
	"github.com/cxr-assist-server/internal/database"
	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/health"
	"github.com/cxr-assist-server/internal/repository"
	"github.com/cxr-assist-server/internal/review"
	"github.com/cxr-assist-server/internal/service"
	"github.com/cxr-assist-server/pkg/inference"
)

const healthTimeout = 3 * time.Second

// Components holds everything a server needs. Close releases them in reverse
// order of construction.
type Components struct {
	Scorer   *service.Scorer
	Analysis *service.AnalysisService
	Cases    *service.CaseService
	Health   *health.Checker
	Reviews  review.Store

	closers []io.Closer
}

// Options tunes Build.
type Options struct {
	Version   string
	Publisher service.EventPublisher
	// WithoutInference skips the model client even when an API key is configured.
	WithoutInference bool
}

// Build wires the components described by the loaded configuration.
func Build(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger, opts Options) (*Components, error) {
	cfg := configManager.GetConfig()
	c := &Components{}

	scorer, err := service.NewScorer(*configManager.GetScoringConfig(), configManager.ReferenceTable(), logger)
	if err != nil {
		return nil, fmt.Errorf("scorer: %w", err)
	}
	c.Scorer = scorer

	repo, err := openRepository(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, repo)

	reviews, err := OpenReviewStore(cfg.Database)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("review store: %w", err)
	}
	c.Reviews = reviews
	c.closers = append(c.closers, reviews)

	analysisCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("analysis cache: %w", err)
	}
	if analysisCache != nil {
		c.closers = append(c.closers, analysisCache)
	}

	checks := []health.HealthCheck{
		health.PingFunc{CheckName: "database", IsCritical: true, Ping: repo.Ping},
	}
	if p, ok := analysisCache.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.PingFunc{CheckName: "cache", Ping: p.Ping})
	}
	c.Health = health.NewChecker(opts.Version, healthTimeout, logger, checks...)

	caseOpts := []service.CaseServiceOption{service.WithReviewStore(reviews)}
	if opts.Publisher != nil {
		caseOpts = append(caseOpts, service.WithEventPublisher(opts.Publisher))
	}

	var (
		image    domain.ImageAnalyzer
		clinical domain.ClinicalAnalyzer
		fuser    domain.DiagnosisFuser
	)
	if cfg.Inference.APIKey != "" && !opts.WithoutInference {
		client, err := inference.NewClient(cfg.Inference, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("inference client: %w", err)
		}
		fuser = client
		caseOpts = append(caseOpts, service.WithReportGenerator(client))
		if analysisCache != nil {
			cached := cache.NewAnalyzer(client, client, analysisCache, client.Model(), cfg.Cache.DefaultTTL, logger)
			image, clinical = cached, cached
		} else {
			image, clinical = client, client
		}
	} else {
		logger.Warn("No inference API key configured; analysis and reports are disabled")
	}

	c.Analysis = service.NewAnalysisService(logger, scorer, image, clinical, fuser)
	c.Cases = service.NewCaseService(repo, scorer, logger, caseOpts...)
	return c, nil
}

// Close releases every opened resource.
func (c *Components) Close() error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

func openRepository(ctx context.Context, cfg domain.DatabaseConfig, logger *logrus.Logger) (domain.CaseRepository, error) {
	switch cfg.Driver {
	case "postgres":
		dbCfg := database.ConfigFromDomain(cfg)
		if cfg.MigrateOnStart {
			runner, err := database.NewMigrationRunner(dbCfg.URL(), logger)
			if err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
			err = runner.Up(ctx)
			runner.Close()
			if err != nil {
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}

		db, err := database.NewConnection(ctx, dbCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return repository.NewPostgresRepository(db.Pool, logger), nil

	default:
		path := config.ExpandHome(cfg.SQLitePath)
		if err := config.EnsureDataDir(path); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		repo, err := repository.NewSQLiteRepository(path, logger)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return repo, nil
	}
}

// OpenReviewStore opens the review store matching the configured driver.
func OpenReviewStore(cfg domain.DatabaseConfig) (review.Store, error) {
	if cfg.Driver == "postgres" {
		return review.NewPostgresStoreFromURL(database.ConfigFromDomain(cfg).URL())
	}
	path := config.ExpandHome(cfg.ReviewPath)
	if err := config.EnsureDataDir(path); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return review.NewSQLiteStore(path)
}
