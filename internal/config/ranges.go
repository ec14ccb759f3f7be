package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cxr-assist-server/internal/domain"
)

// referenceRangesFile is the on-disk layout of a reference range override file:
//
//	ranges:
//	  - name: heart_rate
//	    low: 50
//	    high: 90
//	    unit: " bpm"
type referenceRangesFile struct {
	Ranges []domain.ReferenceRange `yaml:"ranges"`
}

// LoadReferenceRanges reads and validates reference range overrides from a YAML file.
func LoadReferenceRanges(path string) ([]domain.ReferenceRange, error) {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading reference ranges: %w", err)
	}

	var file referenceRangesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing reference ranges %s: %w", path, err)
	}

	for _, r := range file.Ranges {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("reference ranges %s: %w", path, err)
		}
	}
	return file.Ranges, nil
}
