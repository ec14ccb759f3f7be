// Package api exposes scoring, analysis and case management over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/health"
	"github.com/cxr-assist-server/internal/middleware"
	"github.com/cxr-assist-server/internal/service"
)

// Dependencies are the services the HTTP layer delegates to. Analysis, Cases
// and Health may be nil; their routes then answer 503.
type Dependencies struct {
	Scorer   *service.Scorer
	Analysis *service.AnalysisService
	Cases    *service.CaseService
	Health   *health.Checker
	Events   *EventHub
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	deps          Dependencies
	logger        *logrus.Logger
	limiter       *middleware.ClientLimiter
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, deps Dependencies, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if deps.Events == nil {
		deps.Events = NewEventHub(logger)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.ClinicianScope())
	router.Use(middleware.AuditLogger(logger.Writer()))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())

	server := &Server{
		configManager: configManager,
		deps:          deps,
		logger:        logger,
		router:        router,
	}
	if cfg.Server.RequestsPerSecond > 0 {
		server.limiter = middleware.NewClientLimiter(cfg.Server.RequestsPerSecond, cfg.Server.Burst, 10*time.Minute)
	}

	server.setupRoutes()

	return server
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Events returns the case event hub.
func (s *Server) Events() *EventHub {
	return s.deps.Events
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.deps.Events.Close()
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	if s.limiter != nil {
		v1.Use(middleware.RateLimit(s.limiter))
	}
	{
		v1.POST("/vitals/validate", s.handleValidateVitals)
		v1.POST("/labs/evaluate", s.handleEvaluateLabs)
		v1.POST("/findings/classify", s.handleClassifyFindings)
		v1.POST("/risk", s.handleRisk)
		v1.GET("/confidence", s.handleConfidence)

		v1.POST("/analyses", s.requireAnalysis, s.handleAnalyze)

		cases := v1.Group("/cases", s.requireCases)
		{
			cases.POST("", s.handleCreateCase)
			cases.GET("", s.handleListCases)
			cases.GET("/export", s.handleExportCases)
			cases.GET("/:id", s.handleGetCase)
			cases.PATCH("/:id", s.handleUpdateCase)
			cases.DELETE("/:id", s.handleDeleteCase)
			cases.GET("/:id/summary", s.handleCaseSummary)
			cases.GET("/:id/export", s.handleExportCase)
			cases.POST("/:id/report", s.handleCaseReport)
			cases.PUT("/:id/review", s.handleSaveReview)
			cases.GET("/:id/review", s.handleGetReview)
		}

		v1.GET("/statistics", s.requireCases, s.handleStatistics)
		v1.GET("/events", s.deps.Events.handleEvents)
	}
}

// handleHealth reports component health; 503 when a critical check fails.
func (s *Server) handleHealth(c *gin.Context) {
	version := s.configManager.GetConfig().MCP.ServerVersion
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":    health.HealthStateHealthy,
			"timestamp": time.Now().UTC(),
			"version":   version,
		})
		return
	}

	status := s.deps.Health.Check(c.Request.Context())
	code := http.StatusOK
	if status.Overall == health.HealthStateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) requireAnalysis(c *gin.Context) {
	if s.deps.Analysis == nil {
		s.respondError(c, domain.ErrAnalyzerUnavailable)
		return
	}
	c.Next()
}

func (s *Server) requireCases(c *gin.Context) {
	if s.deps.Cases == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, domain.NewAPIError(
			domain.ErrCodeDatabase, "Case storage is not configured", "", c.GetString(middleware.CorrelationIDKey)))
		return
	}
	c.Next()
}

func clinicianID(c *gin.Context) string {
	return c.GetString(middleware.ClinicianIDKey)
}
