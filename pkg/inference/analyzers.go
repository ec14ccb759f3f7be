package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cxr-assist-server/internal/domain"
)

var (
	_ domain.ImageAnalyzer    = (*Client)(nil)
	_ domain.ClinicalAnalyzer = (*Client)(nil)
	_ domain.DiagnosisFuser   = (*Client)(nil)
	_ domain.ReportGenerator  = (*Client)(nil)
)

// AnalyzeImage sends the radiograph as a data URL and decodes the findings.
func (c *Client) AnalyzeImage(ctx context.Context, image domain.ImageInput) (*domain.ImageAnalysis, error) {
	if len(image.Data) == 0 {
		return nil, domain.NewValidationError("image", "image data is empty", nil)
	}
	mimeType := image.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)

	content, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			systemMessage(radiologistSystem),
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: imagePrompt(image.Context)},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "high"}},
			}},
		},
		ResponseFormat: jsonObject(),
	})
	if err != nil {
		return nil, fmt.Errorf("image analysis: %w", err)
	}

	var wire imageWire
	if err := decodeContent(content, &wire); err != nil {
		return nil, fmt.Errorf("image analysis: %w", err)
	}
	return wire.toDomain(), nil
}

// AnalyzeClinical sends symptoms, vitals and labs as text.
func (c *Client) AnalyzeClinical(ctx context.Context, input domain.ClinicalInput) (*domain.ClinicalAnalysis, error) {
	content, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			systemMessage(clinicianSystem),
			userMessage(clinicalPrompt(input)),
		},
		ResponseFormat: jsonObject(),
	})
	if err != nil {
		return nil, fmt.Errorf("clinical analysis: %w", err)
	}

	var analysis domain.ClinicalAnalysis
	if err := decodeContent(content, &analysis); err != nil {
		return nil, fmt.Errorf("clinical analysis: %w", err)
	}
	return &analysis, nil
}

// FuseDiagnosis asks the model to integrate both analyses.
func (c *Client) FuseDiagnosis(ctx context.Context, image *domain.ImageAnalysis, clinical *domain.ClinicalAnalysis, patient domain.PatientContext) (*domain.FusedDiagnosis, error) {
	imageJSON, err := json.MarshalIndent(image, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding image analysis: %w", err)
	}
	clinicalJSON, err := json.MarshalIndent(clinical, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding clinical analysis: %w", err)
	}
	patientJSON, err := json.MarshalIndent(patient, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding patient context: %w", err)
	}

	content, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			systemMessage(fusionSystem),
			userMessage(fusionPrompt(imageJSON, clinicalJSON, patientJSON)),
		},
		ResponseFormat: jsonObject(),
	})
	if err != nil {
		return nil, fmt.Errorf("diagnosis fusion: %w", err)
	}

	var wire fusionWire
	if err := decodeContent(content, &wire); err != nil {
		return nil, fmt.Errorf("diagnosis fusion: %w", err)
	}
	return wire.toDomain(), nil
}

// GenerateReport returns a plain-text narrative report for a stored case.
func (c *Client) GenerateReport(ctx context.Context, kase *domain.Case) (string, error) {
	caseJSON, err := json.MarshalIndent(kase, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding case: %w", err)
	}

	content, err := c.complete(ctx, chatRequest{
		Messages: []chatMessage{
			systemMessage(reportSystem),
			userMessage(reportPrompt(caseJSON)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("report generation: %w", err)
	}
	return strings.TrimSpace(content), nil
}

// decodeContent parses model output, tolerating a fenced ```json block.
func decodeContent(content string, out interface{}) error {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("model returned invalid JSON: %w", err)
	}
	return nil
}
