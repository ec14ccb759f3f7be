package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/domain"
)

// Analysis kinds used in cache keys.
const (
	KindImage    = "image"
	KindClinical = "clinical"
)

// Analyzer decorates the image and clinical analyzers with a result cache.
// Cache failures are logged and never fail the analysis.
type Analyzer struct {
	image    domain.ImageAnalyzer
	clinical domain.ClinicalAnalyzer
	cache    domain.AnalysisCache
	model    string
	ttl      time.Duration
	logger   *logrus.Logger
}

// NewAnalyzer wraps image and clinical. Either may be nil.
func NewAnalyzer(image domain.ImageAnalyzer, clinical domain.ClinicalAnalyzer, cache domain.AnalysisCache, model string, ttl time.Duration, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		image:    image,
		clinical: clinical,
		cache:    cache,
		model:    model,
		ttl:      ttl,
		logger:   logger,
	}
}

// Key derives the cache key for one analysis request.
func Key(kind, model string, payload ...[]byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(model))
	for _, p := range payload {
		h.Write([]byte{0})
		h.Write(p)
	}
	return kind + ":" + hex.EncodeToString(h.Sum(nil))
}

// AnalyzeImage returns a cached analysis for identical image bytes and context.
func (a *Analyzer) AnalyzeImage(ctx context.Context, image domain.ImageInput) (*domain.ImageAnalysis, error) {
	if a.image == nil {
		return nil, domain.ErrAnalyzerUnavailable
	}
	meta, err := json.Marshal(image)
	if err != nil {
		return a.image.AnalyzeImage(ctx, image)
	}
	key := Key(KindImage, a.model, image.Data, meta)

	var cached domain.ImageAnalysis
	if a.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	result, err := a.image.AnalyzeImage(ctx, image)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, result)
	return result, nil
}

// AnalyzeClinical returns a cached analysis for identical clinical input.
func (a *Analyzer) AnalyzeClinical(ctx context.Context, input domain.ClinicalInput) (*domain.ClinicalAnalysis, error) {
	if a.clinical == nil {
		return nil, domain.ErrAnalyzerUnavailable
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return a.clinical.AnalyzeClinical(ctx, input)
	}
	key := Key(KindClinical, a.model, payload)

	var cached domain.ClinicalAnalysis
	if a.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	result, err := a.clinical.AnalyzeClinical(ctx, input)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, result)
	return result, nil
}

func (a *Analyzer) lookup(ctx context.Context, key string, out interface{}) bool {
	if a.cache == nil {
		return false
	}
	data, err := a.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			a.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		a.logger.WithError(err).WithField("key", key).Warn("Discarding corrupt cache entry")
		_ = a.cache.Delete(ctx, key)
		return false
	}
	a.logger.WithField("key", key).Debug("Cache hit")
	return true
}

func (a *Analyzer) store(ctx context.Context, key string, value interface{}) {
	if a.cache == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to encode analysis for cache")
		return
	}
	if err := a.cache.Set(ctx, key, data, a.ttl); err != nil {
		a.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}
