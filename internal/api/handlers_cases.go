package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cxr-assist-server/internal/domain"
	"github.com/cxr-assist-server/internal/review"
	"github.com/cxr-assist-server/internal/service"
)

const dateLayout = "2006-01-02"

// analysisJSONRequest is the JSON form of an analysis request; images need
// the multipart form.
type analysisJSONRequest struct {
	Clinical *domain.ClinicalInput `json:"clinical"`
	Fuse     bool                  `json:"fuse"`
}

// handleAnalyze runs the models. Multipart requests carry an "image" file, a
// "clinical" JSON field, an optional "context" JSON field and a "fuse" flag.
func (s *Server) handleAnalyze(c *gin.Context) {
	maxBytes := s.configManager.GetServerConfig().MaxUploadBytes
	if maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	}

	var req service.AnalysisRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		parsed, err := s.parseAnalysisForm(c)
		if err != nil {
			s.respondError(c, err)
			return
		}
		req = *parsed
	} else {
		var body analysisJSONRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			s.badRequest(c, "Invalid request body", err)
			return
		}
		req = service.AnalysisRequest{Clinical: body.Clinical, Fuse: body.Fuse}
	}

	result, err := s.deps.Analysis.Analyze(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, wrapInference(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) parseAnalysisForm(c *gin.Context) (*service.AnalysisRequest, error) {
	req := &service.AnalysisRequest{}

	var patient domain.PatientContext
	if raw := c.PostForm("context"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &patient); err != nil {
			return nil, domain.NewValidationError("context", "context must be a JSON object", nil)
		}
	}

	if raw := c.PostForm("clinical"); raw != "" {
		var clinical domain.ClinicalInput
		if err := json.Unmarshal([]byte(raw), &clinical); err != nil {
			return nil, domain.NewValidationError("clinical", "clinical must be a JSON object", nil)
		}
		if clinical.Context == (domain.PatientContext{}) {
			clinical.Context = patient
		}
		req.Clinical = &clinical
	}

	if fh, err := c.FormFile("image"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("opening upload: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, domain.NewValidationError("image", "upload could not be read", err.Error())
		}
		if len(data) == 0 {
			return nil, domain.NewValidationError("image", "image is empty", fh.Filename)
		}
		mime := fh.Header.Get("Content-Type")
		if mime == "" || mime == "application/octet-stream" {
			mime = http.DetectContentType(data)
		}
		req.Image = &domain.ImageInput{
			Data:     data,
			MIMEType: mime,
			Filename: fh.Filename,
			Context:  patient,
		}
	} else if !errors.Is(err, http.ErrMissingFile) {
		return nil, domain.NewValidationError("image", "upload could not be read", err.Error())
	}

	if raw := c.PostForm("fuse"); raw != "" {
		fuse, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, domain.NewValidationError("fuse", "fuse must be a boolean", raw)
		}
		req.Fuse = fuse
	}
	return req, nil
}

// createCaseRequest accepts a case body, optionally with the result of a
// previous analysis under "analysis".
type createCaseRequest struct {
	PatientID        string                   `json:"patient_id"`
	Title            string                   `json:"case_title"`
	ImageFilename    string                   `json:"image_filename"`
	Symptoms         domain.Symptoms          `json:"symptoms"`
	Vitals           domain.Measurements      `json:"vitals"`
	LabResults       domain.Measurements      `json:"lab_results"`
	ImageAnalysis    *domain.ImageAnalysis    `json:"image_analysis"`
	ClinicalAnalysis *domain.ClinicalAnalysis `json:"clinical_analysis"`
	FusedDiagnosis   *domain.FusedDiagnosis   `json:"fused_diagnosis"`
	Analysis         *service.AnalysisResult  `json:"analysis"`
}

func (r createCaseRequest) draft(clinicianID string) service.CaseDraft {
	draft := service.CaseDraft{
		ClinicianID:   clinicianID,
		PatientID:     r.PatientID,
		Title:         r.Title,
		Symptoms:      r.Symptoms,
		Vitals:        r.Vitals,
		LabResults:    r.LabResults,
		ImageFilename: r.ImageFilename,
		Image:         r.ImageAnalysis,
		Clinical:      r.ClinicalAnalysis,
		Fused:         r.FusedDiagnosis,
	}
	if a := r.Analysis; a != nil {
		if draft.Image == nil {
			draft.Image = a.Image
		}
		if draft.Clinical == nil {
			draft.Clinical = a.Clinical
		}
		if draft.Fused == nil {
			draft.Fused = a.Fused
		}
	}
	return draft
}

func (s *Server) handleCreateCase(c *gin.Context) {
	var req createCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}

	created, err := s.deps.Cases.Create(c.Request.Context(), req.draft(clinicianID(c)))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleListCases(c *gin.Context) {
	filter, err := parseCaseFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	cases, err := s.deps.Cases.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if cases == nil {
		cases = []*domain.Case{}
	}
	c.JSON(http.StatusOK, gin.H{
		"cases":  cases,
		"count":  len(cases),
		"limit":  filter.EffectiveLimit(),
		"offset": filter.Offset,
	})
}

// parseCaseFilter reads search, status, from, to, limit and offset. Dates are
// YYYY-MM-DD; "to" includes the whole day.
func parseCaseFilter(c *gin.Context) (domain.CaseFilter, error) {
	filter := domain.CaseFilter{
		ClinicianID: clinicianID(c),
		Search:      strings.TrimSpace(c.Query("search")),
		Status:      domain.CaseStatus(c.Query("status")),
	}

	if raw := c.Query("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, domain.NewValidationError("from", "date must be YYYY-MM-DD", raw)
		}
		filter.CreatedFrom = &from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, domain.NewValidationError("to", "date must be YYYY-MM-DD", raw)
		}
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.CreatedTo = &end
	}

	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(name, "must be a non-negative integer", raw)
	}
	return n, nil
}

func caseID(c *gin.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "case id must be a positive integer", raw)
	}
	return id, nil
}

func (s *Server) handleGetCase(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	found, err := s.deps.Cases.Get(c.Request.Context(), id, clinicianID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) handleUpdateCase(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var update domain.CaseUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}

	updated, err := s.deps.Cases.Update(c.Request.Context(), id, clinicianID(c), update)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteCase(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.deps.Cases.Delete(c.Request.Context(), id, clinicianID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleCaseSummary(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	summary, err := s.deps.Cases.Summary(c.Request.Context(), id, clinicianID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": id, "summary": summary})
}

func exportFormat(c *gin.Context) service.ExportFormat {
	return service.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(service.ExportJSON))))
}

func (s *Server) handleExportCase(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out, err := s.deps.Cases.Export(c.Request.Context(), id, clinicianID(c), exportFormat(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	sendExport(c, fmt.Sprintf("case-%d", id), out)
}

func (s *Server) handleExportCases(c *gin.Context) {
	filter, err := parseCaseFilter(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	out, err := s.deps.Cases.ExportAll(c.Request.Context(), filter, exportFormat(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	sendExport(c, "cases", out)
}

func sendExport(c *gin.Context, name string, out *service.Export) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, name, out.Extension))
	c.Data(http.StatusOK, out.ContentType, out.Data)
}

func (s *Server) handleCaseReport(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	report, err := s.deps.Cases.Report(c.Request.Context(), id, clinicianID(c))
	if err != nil {
		s.respondError(c, wrapInference(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"case_id": id, "report": report})
}

type reviewRequest struct {
	Verdict            review.Verdict `json:"verdict"`
	ClinicianDiagnosis string         `json:"clinician_diagnosis"`
	Notes              string         `json:"notes"`
}

func (s *Server) handleSaveReview(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "Invalid request body", err)
		return
	}

	saved, err := s.deps.Cases.SaveReview(c.Request.Context(), id, clinicianID(c), &review.Review{
		Verdict:            req.Verdict,
		ClinicianDiagnosis: req.ClinicianDiagnosis,
		Notes:              req.Notes,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleGetReview(c *gin.Context) {
	id, err := caseID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	found, err := s.deps.Cases.GetReview(c.Request.Context(), id, clinicianID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) handleStatistics(c *gin.Context) {
	stats, err := s.deps.Cases.Statistics(c.Request.Context(), clinicianID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// wrapInference tags model failures. Validation, lookup and configuration
// errors keep their own mapping.
func wrapInference(err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, domain.ErrAnalyzerUnavailable),
		errors.Is(err, domain.ErrCaseNotFound),
		errors.Is(err, context.Canceled):
		return err
	}
	return inferenceError{err: err}
}
