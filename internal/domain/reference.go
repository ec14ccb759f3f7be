package domain

import (
	"fmt"
	"strconv"
)

// ReferenceRange is the normal (low, high) interval for one parameter.
type ReferenceRange struct {
	Name string  `json:"name" yaml:"name"`
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
	Unit string  `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Validate checks the bounds are usable.
func (r ReferenceRange) Validate() error {
	if r.Name == "" {
		return NewValidationError("name", "reference range name is required", r.Name)
	}
	if r.Low > r.High {
		return NewValidationError(r.Name, "low bound exceeds high bound", fmt.Sprintf("%v > %v", r.Low, r.High))
	}
	return nil
}

// Contains reports whether v lies within the inclusive range.
func (r ReferenceRange) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// Span formats the range as "low-high" with the unit appended.
func (r ReferenceRange) Span() string {
	return fmt.Sprintf("%s-%s%s", formatBound(r.Low), formatBound(r.High), r.Unit)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReferenceTable is the read-only lookup of normal ranges. Build it once at
// startup and share it; nothing mutates it afterwards.
type ReferenceTable struct {
	ranges map[string]ReferenceRange
	order  []string
}

// NewReferenceTable builds a table from ranges. Later entries replace earlier
// ones with the same name.
func NewReferenceTable(ranges ...ReferenceRange) (*ReferenceTable, error) {
	t := &ReferenceTable{ranges: make(map[string]ReferenceRange, len(ranges))}
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, exists := t.ranges[r.Name]; !exists {
			t.order = append(t.order, r.Name)
		}
		t.ranges[r.Name] = r
	}
	return t, nil
}

// Lookup returns the range for name.
func (t *ReferenceTable) Lookup(name string) (ReferenceRange, bool) {
	if t == nil {
		return ReferenceRange{}, false
	}
	r, ok := t.ranges[name]
	return r, ok
}

// Ranges returns a copy of all ranges in insertion order.
func (t *ReferenceTable) Ranges() []ReferenceRange {
	if t == nil {
		return nil
	}
	out := make([]ReferenceRange, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.ranges[name])
	}
	return out
}

// Merge returns a new table with overrides applied on top of t.
func (t *ReferenceTable) Merge(overrides ...ReferenceRange) (*ReferenceTable, error) {
	return NewReferenceTable(append(t.Ranges(), overrides...)...)
}

// DefaultReferenceRanges is the built-in table of adult normal ranges for
// vitals and common labs.
func DefaultReferenceRanges() []ReferenceRange {
	return []ReferenceRange{
		{Name: string(VitalTemperature), Low: 36.0, High: 37.5, Unit: "°C"},
		{Name: string(VitalHeartRate), Low: 60, High: 100, Unit: " bpm"},
		{Name: string(VitalSystolicBP), Low: 90, High: 120, Unit: " mmHg"},
		{Name: string(VitalDiastolicBP), Low: 60, High: 80, Unit: " mmHg"},
		{Name: string(VitalRespiratoryRate), Low: 12, High: 20, Unit: "/min"},
		{Name: string(VitalOxygenSaturation), Low: 95, High: 100, Unit: "%"},
		{Name: string(VitalPainScore), Low: 0, High: 10},

		{Name: "wbc", Low: 4.0, High: 11.0, Unit: " x10^9/L"},
		{Name: "rbc", Low: 4.2, High: 5.4, Unit: " x10^12/L"},
		{Name: "hemoglobin", Low: 12, High: 16, Unit: " g/dL"},
		{Name: "hematocrit", Low: 36, High: 46, Unit: "%"},
		{Name: "platelets", Low: 150, High: 450, Unit: " x10^9/L"},
		{Name: "glucose", Low: 70, High: 100, Unit: " mg/dL"},
		{Name: "creatinine", Low: 0.6, High: 1.2, Unit: " mg/dL"},
		{Name: "bun", Low: 7, High: 20, Unit: " mg/dL"},
		{Name: "sodium", Low: 135, High: 145, Unit: " mEq/L"},
		{Name: "potassium", Low: 3.5, High: 5.0, Unit: " mEq/L"},
		{Name: "chloride", Low: 98, High: 107, Unit: " mEq/L"},
		{Name: "co2", Low: 22, High: 28, Unit: " mEq/L"},
		{Name: "crp", Low: 0, High: 3.0, Unit: " mg/L"},
		{Name: "esr", Low: 0, High: 30, Unit: " mm/hr"},
	}
}

// DefaultReferenceTable returns a table built from DefaultReferenceRanges.
func DefaultReferenceTable() *ReferenceTable {
	t, err := NewReferenceTable(DefaultReferenceRanges()...)
	if err != nil {
		panic(fmt.Sprintf("built-in reference ranges are invalid: %v", err))
	}
	return t
}
