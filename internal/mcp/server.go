// Package mcp exposes the scoring operations and stored cases as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/service"
)

// Transport types accepted in mcp.transport_type.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Server represents the MCP tool server
type Server struct {
	config    domain.ConfigManager
	mcpServer *mcp.Server
	scorer    *service.Scorer
	cases     *service.CaseService
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance. cases may be nil, in which case
// the case tools are not offered.
func NewServer(configManager domain.ConfigManager, scorer *service.Scorer, cases *service.CaseService, logger *logrus.Logger) (*Server, error) {
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}

	cfg := configManager.GetConfig()
	serverInfo := &mcp.Implementation{
		Name:    cfg.MCP.ServerName,
		Version: cfg.MCP.ServerVersion,
	}

	server := &Server{
		config:    configManager,
		mcpServer: mcp.NewServer(serverInfo, nil),
		scorer:    scorer,
		cases:     cases,
		logger:    logger,
	}
	server.registerTools()

	return server, nil
}

// registerTools adds every tool to the SDK server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "validate_vitals",
		Description: "Check vital signs against reference ranges and return human-readable warnings plus per-vital chart status.",
	}, s.handleValidateVitals)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "evaluate_labs",
		Description: "Compare laboratory values with reference ranges. Each lab is reported as normal, low, high, invalid or unknown.",
	}, s.handleEvaluateLabs)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "classify_findings",
		Description: "Partition radiograph findings into high, moderate and low tiers by probability.",
	}, s.handleClassifyFindings)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "calculate_risk",
		Description: "Score patient risk from urgent findings and abnormal vitals. Returns the capped score, the contributing factors and a risk band.",
	}, s.handleCalculateRisk)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "confidence_band",
		Description: "Map a model confidence in [0,1] to a qualitative level and display color.",
	}, s.handleConfidenceBand)

	count := 5
	if s.cases != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "summarize_case",
			Description: "Return the one-line digest of a stored case.",
		}, s.handleSummarizeCase)

		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "export_case",
			Description: "Export a stored case as json or csv.",
		}, s.handleExportCase)

		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "list_cases",
			Description: "List stored cases, newest first, optionally filtered by search text and status.",
		}, s.handleListCases)
		count += 3
	}

	s.logger.WithField("tool_count", count).Info("Registered MCP tools")
}

// Start serves the configured transport until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.GetConfig().MCP

	s.logger.WithFields(logrus.Fields{
		"transport_type": cfg.TransportType,
		"server_name":    cfg.ServerName,
		"server_version": cfg.ServerVersion,
	}).Info("Starting MCP server")

	switch cfg.TransportType {
	case TransportStdio, "":
		if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	case TransportHTTP:
		return s.serveHTTP(ctx, cfg.HTTPAddr)
	default:
		return fmt.Errorf("unsupported transport type: %s", cfg.TransportType)
	}
}

// serveHTTP runs the streamable HTTP transport.
func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("MCP HTTP transport listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP HTTP transport failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
