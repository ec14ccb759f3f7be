package service

import (
	"github.com/cxr-assist-server/internal/domain"
)

// LabEvaluator compares lab values against the reference table.
type LabEvaluator struct {
	ranges *domain.ReferenceTable
}

// NewLabEvaluator creates an evaluator backed by ranges.
func NewLabEvaluator(ranges *domain.ReferenceTable) *LabEvaluator {
	if ranges == nil {
		ranges = domain.DefaultReferenceTable()
	}
	return &LabEvaluator{ranges: ranges}
}

// Evaluate returns one result per supplied lab, in input order.
func (e *LabEvaluator) Evaluate(labs domain.Measurements) []domain.LabResult {
	results := make([]domain.LabResult, 0, len(labs))
	for _, lab := range labs {
		result := domain.LabResult{Name: lab.Name, Value: lab.Value}

		ref, known := e.ranges.Lookup(lab.Name)
		if known {
			low, high := ref.Low, ref.High
			result.Low, result.High, result.Unit = &low, &high, ref.Unit
		}

		switch {
		case !lab.Value.Numeric:
			result.Status = domain.LabInvalid
		case !known:
			result.Status = domain.LabUnknown
		case lab.Value.Value < ref.Low:
			result.Status = domain.LabLow
		case lab.Value.Value > ref.High:
			result.Status = domain.LabHigh
		default:
			result.Status = domain.LabNormal
		}
		results = append(results, result)
	}
	return results
}

// Abnormal filters results down to low and high values.
func Abnormal(results []domain.LabResult) []domain.LabResult {
	out := []domain.LabResult{}
	for _, r := range results {
		if r.Status == domain.LabLow || r.Status == domain.LabHigh {
			out = append(out, r)
		}
	}
	return out
}
