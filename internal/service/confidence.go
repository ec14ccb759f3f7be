package service

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
)

// Band colours for confidence display.
const (
	colorHigh     = "#28a745"
	colorModerate = "#ffc107"
	colorLow      = "#fd7e14"
	colorVeryLow  = "#dc3545"
)

// ConfidencePresenter maps a score in [0,1] to a qualitative band.
//
// Out-of-range input is clamped into [0,1] and logged, never rejected. NaN is
// treated as 0.
type ConfidencePresenter struct {
	bands  domain.ConfidenceBands
	logger logrus.FieldLogger
}

// NewConfidencePresenter creates a presenter. logger may be nil.
func NewConfidencePresenter(bands domain.ConfidenceBands, logger logrus.FieldLogger) (*ConfidencePresenter, error) {
	if !(bands.Low <= bands.Moderate && bands.Moderate <= bands.High) {
		return nil, domain.NewValidationError("confidence_bands",
			"bands must satisfy low <= moderate <= high",
			fmt.Sprintf("%v/%v/%v", bands.Low, bands.Moderate, bands.High))
	}
	return &ConfidencePresenter{bands: bands, logger: logger}, nil
}

// Band returns the level and display colour for score.
func (p *ConfidencePresenter) Band(score float64) domain.ConfidenceBand {
	clamped := score
	switch {
	case math.IsNaN(score):
		clamped = 0
	case score < 0:
		clamped = 0
	case score > 1:
		clamped = 1
	}

	band := domain.ConfidenceBand{Score: clamped, Clamped: clamped != score || math.IsNaN(score)}
	if band.Clamped && p.logger != nil {
		p.logger.WithFields(logrus.Fields{
			"score":   fmt.Sprint(score),
			"clamped": clamped,
		}).Warn("Confidence score outside [0,1], clamped")
	}

	switch {
	case clamped >= p.bands.High:
		band.Level, band.Color = domain.ConfidenceHigh, colorHigh
	case clamped >= p.bands.Moderate:
		band.Level, band.Color = domain.ConfidenceModerate, colorModerate
	case clamped >= p.bands.Low:
		band.Level, band.Color = domain.ConfidenceLow, colorLow
	default:
		band.Level, band.Color = domain.ConfidenceVeryLow, colorVeryLow
	}
	return band
}
