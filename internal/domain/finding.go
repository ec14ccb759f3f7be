package domain

import (
	"encoding/json"
	"fmt"
)

// Finding is one candidate abnormality reported by the image model.
// Probability is nil when the model gave no usable number.
type Finding struct {
	Name        string   `json:"name"`
	Probability *float64 `json:"probability,omitempty"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
}

// HasProbability reports whether the finding can be classified.
func (f Finding) HasProbability() bool {
	return f.Probability != nil
}

// ProbabilityOr returns the probability or fallback when absent.
func (f Finding) ProbabilityOr(fallback float64) float64 {
	if f.Probability == nil {
		return fallback
	}
	return *f.Probability
}

// Prob is a convenience for building findings in code and tests.
func Prob(p float64) *float64 {
	return &p
}

// findingDetail is the per-finding object inside the name-keyed JSON form.
type findingDetail struct {
	Probability *float64 `json:"probability,omitempty"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
}

// FindingSet is an ordered collection of findings. On the wire it is either a
// JSON object keyed by finding name (the model's shape) or an array of Finding.
type FindingSet []Finding

// Get returns the finding with the given name.
func (fs FindingSet) Get(name string) (Finding, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f, true
		}
	}
	return Finding{}, false
}

// Names returns finding names in order.
func (fs FindingSet) Names() []string {
	names := make([]string, 0, len(fs))
	for _, f := range fs {
		names = append(names, f.Name)
	}
	return names
}

// UnmarshalJSON decodes either wire form. A non-object detail or a probability
// that is not a number (or numeric string) leaves Probability nil.
func (fs *FindingSet) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*fs = nil
		return nil
	}

	if firstByte(data) == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decoding findings list: %w", err)
		}
		out := make(FindingSet, 0, len(list))
		for _, raw := range list {
			if f, ok := decodeListedFinding(raw); ok {
				out = append(out, f)
			}
		}
		*fs = out
		return nil
	}

	out := FindingSet{}
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		out = append(out, decodeFinding(key, raw))
		return nil
	})
	if err != nil {
		return fmt.Errorf("decoding findings: %w", err)
	}
	*fs = out
	return nil
}

func decodeFinding(name string, raw json.RawMessage) Finding {
	f := Finding{Name: name}
	if firstByte(raw) != '{' {
		return f
	}

	var detail map[string]json.RawMessage
	if err := json.Unmarshal(raw, &detail); err != nil {
		return f
	}

	if p, ok := detail["probability"]; ok {
		var m Measurement
		if err := m.UnmarshalJSON(p); err == nil && m.Numeric {
			v := m.Value
			f.Probability = &v
		}
	}
	f.Location = looseString(detail["location"])
	f.Description = looseString(detail["description"])
	return f
}

// decodeListedFinding reads one {"name": ..., ...} list element. Elements that
// are not objects are dropped.
func decodeListedFinding(raw json.RawMessage) (Finding, bool) {
	if firstByte(raw) != '{' {
		return Finding{}, false
	}
	var named struct {
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal(raw, &named); err != nil {
		return Finding{}, false
	}
	return decodeFinding(looseString(named.Name), raw), true
}

func looseString(raw json.RawMessage) string {
	if isJSONNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// MarshalJSON writes the name-keyed object form.
func (fs FindingSet) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	for _, f := range fs {
		detail := findingDetail{
			Probability: f.Probability,
			Location:    f.Location,
			Description: f.Description,
		}
		if err := w.add(f.Name, detail); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}

// ScoreSet is an ordered name to probability mapping, encoded as a JSON object.
type ScoreSet []NamedScore

// NamedScore is one ScoreSet entry.
type NamedScore struct {
	Name  string
	Score float64
}

// Get returns the score stored under name.
func (ss ScoreSet) Get(name string) (float64, bool) {
	for _, s := range ss {
		if s.Name == name {
			return s.Score, true
		}
	}
	return 0, false
}

// UnmarshalJSON decodes a JSON object preserving order. Non-numeric values become 0.
func (ss *ScoreSet) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*ss = nil
		return nil
	}
	out := ScoreSet{}
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		var m Measurement
		if err := m.UnmarshalJSON(raw); err != nil {
			return err
		}
		out = append(out, NamedScore{Name: key, Score: m.Value})
		return nil
	})
	if err != nil {
		return fmt.Errorf("decoding scores: %w", err)
	}
	*ss = out
	return nil
}

// MarshalJSON encodes the scores as a JSON object in order.
func (ss ScoreSet) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	for _, s := range ss {
		if err := w.add(s.Name, s.Score); err != nil {
			return nil, err
		}
	}
	return w.bytes(), nil
}
