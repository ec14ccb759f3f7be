package cache

import (
	"context"
	"fmt"

	"github.com/cxr-assist-server/internal/domain"
)

// New builds the backend selected by cfg.Backend. "none" returns nil, which
// callers treat as caching disabled.
func New(ctx context.Context, cfg domain.CacheConfig) (domain.AnalysisCache, error) {
	switch cfg.Backend {
	case "", "memory":
		c, err := NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "redis":
		c, err := NewRedisCache(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}
