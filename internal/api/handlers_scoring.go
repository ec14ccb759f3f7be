package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/service"
)

type vitalsRequest struct {
	Vitals domain.Measurements `json:"vitals"`
}

type labsRequest struct {
	LabResults domain.Measurements `json:"lab_results"`
}

type findingsRequest struct {
	Findings domain.FindingSet `json:"findings"`
}

type riskRequest struct {
	Findings domain.FindingSet   `json:"findings"`
	Vitals   domain.Measurements `json:"vitals"`
}

// handleValidateVitals answers with warnings for out-of-range vitals and the
// per-vital chart status.
func (s *Server) handleValidateVitals(c *gin.Context) {
	var req vitalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"warnings": nonNil(s.deps.Scorer.Validator.Validate(req.Vitals)),
		"status":   s.deps.Scorer.Validator.ChartStatus(req.Vitals),
	})
}

func (s *Server) handleEvaluateLabs(c *gin.Context) {
	var req labsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}

	results := s.deps.Scorer.Labs.Evaluate(req.LabResults)
	if results == nil {
		results = []domain.LabResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "abnormal": service.Abnormal(results)})
}

func (s *Server) handleClassifyFindings(c *gin.Context) {
	var req findingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Scorer.Classifier.Classify(req.Findings))
}

func (s *Server) handleRisk(c *gin.Context) {
	var req riskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Scorer.AssessRisk(service.RiskInput{
		Findings: req.Findings,
		Vitals:   req.Vitals,
	}))
}

// handleConfidence bands ?score=. Out-of-range scores are clamped.
func (s *Server) handleConfidence(c *gin.Context) {
	raw := c.Query("score")
	if raw == "" {
		s.respondError(c, domain.NewValidationError("score", "score is required", nil))
		return
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		s.respondError(c, domain.NewValidationError("score", "score must be a number", raw))
		return
	}
	c.JSON(http.StatusOK, s.deps.Scorer.Presenter.Band(score))
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
