package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/middleware"
)

// respondError maps err onto an HTTP status and an APIError body.
func (s *Server) respondError(c *gin.Context, err error) {
	status, code, message := http.StatusInternalServerError, domain.ErrCodeInternalServer, "Internal server error"

	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		status, code, message = http.StatusBadRequest, domain.ErrCodeValidation, ve.Message
	case errors.Is(err, domain.ErrCaseNotFound):
		status, code, message = http.StatusNotFound, domain.ErrCodeNotFound, "Case not found"
	case errors.Is(err, domain.ErrReviewNotFound):
		status, code, message = http.StatusNotFound, domain.ErrCodeNotFound, "Review not found"
	case errors.Is(err, domain.ErrEmptyUpdate):
		status, code, message = http.StatusBadRequest, domain.ErrCodeInvalidInput, "Update changes no fields"
	case errors.Is(err, domain.ErrAnalyzerUnavailable):
		status, code, message = http.StatusServiceUnavailable, domain.ErrCodeInference, "Model collaborator is not configured"
	case errors.Is(err, errInference):
		status, code, message = http.StatusBadGateway, domain.ErrCodeInference, "Model request failed"
	}

	details := ""
	if status != http.StatusInternalServerError {
		details = err.Error()
	}

	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"status":         status,
		"path":           c.FullPath(),
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
	})
	if status >= 500 {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

// badRequest answers 400 INVALID_INPUT.
func (s *Server) badRequest(c *gin.Context, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest,
		domain.NewAPIError(domain.ErrCodeInvalidInput, message, details, c.GetString(middleware.CorrelationIDKey)))
}

// errInference marks model failures so they map to 502.
var errInference = errors.New("inference failed")

type inferenceError struct{ err error }

func (e inferenceError) Error() string { return e.err.Error() }
func (e inferenceError) Unwrap() []error {
	return []error{e.err, errInference}
}
