package service

import (
	"fmt"

	"github.com/cxr-assist-server/internal/domain"
)

// vitalCheck is one bound check run by the validator.
type vitalCheck struct {
	vital       domain.VitalName
	label       string // used in the invalid-value warning
	unit        string
	highAbove   *float64
	highMessage string
	lowBelow    *float64
	lowMessage  string
	// normal text for each direction; filled from the reference table
	highNormal func(domain.ReferenceRange) string
	lowNormal  func(domain.ReferenceRange) string
}

func bound(v float64) *float64 { return &v }

func spanNormal(r domain.ReferenceRange) string { return r.Span() }

func belowNormal(r domain.ReferenceRange) string {
	return fmt.Sprintf("<%s%s", formatNumber(r.High), r.Unit)
}

func aboveNormal(r domain.ReferenceRange) string {
	return fmt.Sprintf(">%s%s", formatNumber(r.Low), r.Unit)
}

// vitalChecks runs in this order: temperature, heart rate, systolic BP, SpO2.
var vitalChecks = []vitalCheck{
	{
		vital: domain.VitalTemperature, label: "temperature", unit: "°C",
		highAbove: bound(38.0), highMessage: "High temperature",
		lowBelow: bound(36.0), lowMessage: "Low temperature",
		highNormal: spanNormal, lowNormal: spanNormal,
	},
	{
		vital: domain.VitalHeartRate, label: "heart rate", unit: " bpm",
		highAbove: bound(100), highMessage: "Tachycardia",
		lowBelow: bound(60), lowMessage: "Bradycardia",
		highNormal: spanNormal, lowNormal: spanNormal,
	},
	{
		vital: domain.VitalSystolicBP, label: "systolic blood pressure", unit: " mmHg",
		highAbove: bound(140), highMessage: "High systolic BP",
		lowBelow: bound(90), lowMessage: "Low systolic BP",
		highNormal: belowNormal, lowNormal: aboveNormal,
	},
	{
		vital: domain.VitalOxygenSaturation, label: "oxygen saturation", unit: "%",
		lowBelow: bound(95), lowMessage: "Low oxygen saturation",
		lowNormal: aboveNormal,
	},
}

// VitalSignValidator flags out-of-range vitals with readable warnings.
type VitalSignValidator struct {
	ranges *domain.ReferenceTable
}

// NewVitalSignValidator creates a validator that quotes normal ranges from ranges.
// The ranges only change the "(normal: ...)" text; the bounds that raise a
// warning are the fixed thresholds in vitalChecks.
func NewVitalSignValidator(ranges *domain.ReferenceTable) *VitalSignValidator {
	if ranges == nil {
		ranges = domain.DefaultReferenceTable()
	}
	return &VitalSignValidator{ranges: ranges}
}

// Validate returns one warning per violated bound. Absent vitals are skipped,
// unrecognized names are ignored and non-numeric values produce an
// "Invalid ... value" warning instead of a comparison.
func (v *VitalSignValidator) Validate(vitals domain.Measurements) []string {
	warnings := []string{}

	for _, check := range vitalChecks {
		m, ok := vitals.Vital(check.vital)
		if !ok || !m.Present() {
			continue
		}
		if !m.Numeric {
			warnings = append(warnings, fmt.Sprintf("Invalid %s value", check.label))
			continue
		}

		ref, _ := v.ranges.Lookup(string(check.vital))
		switch {
		case check.highAbove != nil && m.Value > *check.highAbove:
			warnings = append(warnings, fmt.Sprintf("%s: %s%s (normal: %s)",
				check.highMessage, m.String(), check.unit, check.highNormal(ref)))
		case check.lowBelow != nil && m.Value < *check.lowBelow:
			warnings = append(warnings, fmt.Sprintf("%s: %s%s (normal: %s)",
				check.lowMessage, m.String(), check.unit, check.lowNormal(ref)))
		}
	}

	return warnings
}

// chartLimits are the looser display thresholds used to colour vitals charts.
var chartLimits = []struct {
	vital     domain.VitalName
	highAbove *float64
	lowBelow  *float64
}{
	{vital: domain.VitalTemperature, highAbove: bound(37.5), lowBelow: bound(36)},
	{vital: domain.VitalHeartRate, highAbove: bound(100), lowBelow: bound(60)},
	{vital: domain.VitalSystolicBP, highAbove: bound(140)},
	{vital: domain.VitalDiastolicBP, highAbove: bound(90)},
}

// ChartStatus marks each charted vital as normal or abnormal. Vitals without a
// numeric value are left out.
func (v *VitalSignValidator) ChartStatus(vitals domain.Measurements) []domain.VitalStatus {
	statuses := []domain.VitalStatus{}
	for _, limit := range chartLimits {
		m, ok := vitals.Vital(limit.vital)
		if !ok || !m.Numeric || !m.Present() {
			continue
		}
		abnormal := (limit.highAbove != nil && m.Value > *limit.highAbove) ||
			(limit.lowBelow != nil && m.Value < *limit.lowBelow)
		statuses = append(statuses, domain.VitalStatus{Name: limit.vital, Value: m, Abnormal: abnormal})
	}
	return statuses
}
