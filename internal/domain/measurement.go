package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// VitalName identifies a physiological reading.
type VitalName string

const (
	VitalTemperature      VitalName = "temperature"
	VitalHeartRate        VitalName = "heart_rate"
	VitalSystolicBP       VitalName = "systolic_bp"
	VitalDiastolicBP      VitalName = "diastolic_bp"
	VitalRespiratoryRate  VitalName = "respiratory_rate"
	VitalOxygenSaturation VitalName = "oxygen_saturation"
	VitalPainScore        VitalName = "pain_score"
)

// KnownVitals lists the recognized vital names in display order.
var KnownVitals = []VitalName{
	VitalTemperature,
	VitalHeartRate,
	VitalSystolicBP,
	VitalDiastolicBP,
	VitalRespiratoryRate,
	VitalOxygenSaturation,
	VitalPainScore,
}

// IsValid reports whether the vital name is recognized.
func (v VitalName) IsValid() bool {
	for _, known := range KnownVitals {
		if v == known {
			return true
		}
	}
	return false
}

// String returns the string representation of VitalName
func (v VitalName) String() string {
	return string(v)
}

// Measurement is a loosely-typed scalar as it arrives from a form or a model.
// Raw keeps the caller's text so warnings echo the value exactly as supplied.
type Measurement struct {
	Raw     string
	Value   float64
	Numeric bool
}

// NumericMeasurement wraps a float.
func NumericMeasurement(v float64) Measurement {
	return Measurement{
		Raw:     strconv.FormatFloat(v, 'f', -1, 64),
		Value:   v,
		Numeric: true,
	}
}

// ParseMeasurement accepts a number or numeric string. Anything else is kept
// as a non-numeric measurement carrying its text.
func ParseMeasurement(raw string) Measurement {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Measurement{}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Measurement{Raw: raw}
	}
	return Measurement{Raw: text, Value: v, Numeric: true}
}

// MeasurementFrom converts a decoded JSON value (float64, json.Number, string, bool, nil).
func MeasurementFrom(v interface{}) Measurement {
	switch val := v.(type) {
	case nil:
		return Measurement{}
	case float64:
		return NumericMeasurement(val)
	case float32:
		return NumericMeasurement(float64(val))
	case int:
		return NumericMeasurement(float64(val))
	case int64:
		return NumericMeasurement(float64(val))
	case json.Number:
		return ParseMeasurement(val.String())
	case string:
		return ParseMeasurement(val)
	case bool:
		if !val {
			return Measurement{}
		}
		return Measurement{Raw: "true"}
	default:
		return Measurement{Raw: fmt.Sprint(val)}
	}
}

// Present reports whether the measurement carries anything at all. Zero and
// empty values count as absent.
func (m Measurement) Present() bool {
	if m.Numeric {
		return m.Value != 0
	}
	return strings.TrimSpace(m.Raw) != ""
}

// String returns the value as supplied.
func (m Measurement) String() string {
	return m.Raw
}

// UnmarshalJSON accepts numbers, strings, booleans and null.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*m = Measurement{}
		return nil
	}
	switch firstByte(data) {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = ParseMeasurement(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*m = MeasurementFrom(b)
	case '{', '[':
		*m = Measurement{Raw: string(data)}
	default:
		*m = ParseMeasurement(string(data))
	}
	return nil
}

// MarshalJSON writes numeric values as JSON numbers and everything else as strings.
func (m Measurement) MarshalJSON() ([]byte, error) {
	if m.Numeric {
		if json.Valid([]byte(m.Raw)) {
			return []byte(m.Raw), nil
		}
		return []byte(strconv.FormatFloat(m.Value, 'f', -1, 64)), nil
	}
	if m.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(m.Raw)
}

// NamedMeasurement pairs a parameter name with its measurement.
type NamedMeasurement struct {
	Name  string
	Value Measurement
}

// Measurements is an ordered set of named readings encoded as a JSON object.
// Used for both vitals and lab results.
type Measurements []NamedMeasurement

// Get returns the measurement for name.
func (ms Measurements) Get(name string) (Measurement, bool) {
	for _, m := range ms {
		if m.Name == name {
			return m.Value, true
		}
	}
	return Measurement{}, false
}

// Vital is Get keyed by VitalName.
func (ms Measurements) Vital(name VitalName) (Measurement, bool) {
	return ms.Get(string(name))
}

// Set replaces or appends a measurement.
func (ms *Measurements) Set(name string, value Measurement) {
	for i := range *ms {
		if (*ms)[i].Name == name {
			(*ms)[i].Value = value
			return
		}
	}
	*ms = append(*ms, NamedMeasurement{Name: name, Value: value})
}

// MeasurementsFromMap builds Measurements from a decoded map. Key order follows
// the recognized vitals first, then the remaining keys sorted.
func MeasurementsFromMap(values map[string]interface{}) Measurements {
	out := make(Measurements, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range KnownVitals {
		if raw, ok := values[string(v)]; ok {
			out = append(out, NamedMeasurement{Name: string(v), Value: MeasurementFrom(raw)})
			seen[string(v)] = true
		}
	}
	rest := make([]string, 0, len(values))
	for k := range values {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, NamedMeasurement{Name: k, Value: MeasurementFrom(values[k])})
	}
	return out
}

// UnmarshalJSON decodes a JSON object preserving member order.
func (ms *Measurements) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*ms = nil
		return nil
	}
	out := Measurements{}
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		var m Measurement
		if err := m.UnmarshalJSON(raw); err != nil {
			return err
		}
		out = append(out, NamedMeasurement{Name: key, Value: m})
		return nil
	})
	if err != nil {
		return fmt.Errorf("decoding measurements: %w", err)
	}
	*ms = out
	return nil
}

// MarshalJSON encodes the measurements as a JSON object in order.
func (ms Measurements) MarshalJSON() ([]byte, error) {
	if ms == nil {
		return []byte("{}"), nil
	}
	w := newObjectWriter()
	for _, m := range ms {
		if err := w.add(m.Name, m.Value); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}
