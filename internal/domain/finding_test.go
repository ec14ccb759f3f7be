package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindingSet_UnmarshalObjectKeepsOrder(t *testing.T) {
	raw := `{
		"pneumothorax": {"probability": 0.12},
		"pneumonia": {"probability": 0.85, "location": "right lower lobe", "description": "consolidation"},
		"fracture": {},
		"effusion": {"probability": "0.4"},
		"nodule": {"probability": "unclear"},
		"cardiomegaly": 0.9
	}`

	var fs FindingSet
	require.NoError(t, json.Unmarshal([]byte(raw), &fs))

	assert.Equal(t, []string{"pneumothorax", "pneumonia", "fracture", "effusion", "nodule", "cardiomegaly"}, fs.Names())

	pneumonia, ok := fs.Get("pneumonia")
	require.True(t, ok)
	require.NotNil(t, pneumonia.Probability)
	assert.Equal(t, 0.85, *pneumonia.Probability)
	assert.Equal(t, "right lower lobe", pneumonia.Location)
	assert.Equal(t, "consolidation", pneumonia.Description)

	effusion, _ := fs.Get("effusion")
	require.NotNil(t, effusion.Probability, "numeric strings are accepted")
	assert.Equal(t, 0.4, *effusion.Probability)

	for _, name := range []string{"fracture", "nodule", "cardiomegaly"} {
		f, _ := fs.Get(name)
		assert.False(t, f.HasProbability(), name)
	}
}

func TestFindingSet_UnmarshalList(t *testing.T) {
	raw := `[{"name": "nodule", "probability": 0.5}, {"name": "fracture"}]`

	var fs FindingSet
	require.NoError(t, json.Unmarshal([]byte(raw), &fs))
	require.Len(t, fs, 2)
	assert.Equal(t, 0.5, fs[0].ProbabilityOr(0))
	assert.False(t, fs[1].HasProbability())
}

func TestFindingSet_UnmarshalListLooseProbabilities(t *testing.T) {
	raw := `[
		{"name": "nodule", "probability": 0.5, "location": "left apex"},
		{"name": "fracture", "probability": "n/a"},
		{"name": "effusion", "probability": "0.35"},
		"garbage"
	]`

	var fs FindingSet
	require.NoError(t, json.Unmarshal([]byte(raw), &fs))
	require.Equal(t, []string{"nodule", "fracture", "effusion"}, fs.Names())
	assert.Equal(t, "left apex", fs[0].Location)
	assert.False(t, fs[1].HasProbability())
	assert.Equal(t, 0.35, fs[2].ProbabilityOr(0))
}

func TestFindingSet_MarshalOmitsAbsentFields(t *testing.T) {
	fs := FindingSet{
		{Name: "pneumonia", Probability: Prob(0.85), Location: "RLL"},
		{Name: "fracture"},
	}

	out, err := json.Marshal(fs)
	require.NoError(t, err)
	assert.Equal(t, `{"pneumonia":{"probability":0.85,"location":"RLL"},"fracture":{}}`, string(out))
}

func TestScoreSet_OrderedObject(t *testing.T) {
	var ss ScoreSet
	require.NoError(t, json.Unmarshal([]byte(`{"pneumonia": 0.85, "effusion": "n/a", "nodule": 0.1}`), &ss))

	require.Len(t, ss, 3)
	assert.Equal(t, "effusion", ss[1].Name)
	assert.Equal(t, 0.0, ss[1].Score)

	out, err := json.Marshal(ss)
	require.NoError(t, err)
	assert.Equal(t, `{"pneumonia":0.85,"effusion":0,"nodule":0.1}`, string(out))
}

func TestSymptoms_Forms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Symptoms
	}{
		{name: "list", raw: `["cough", "fever"]`, want: Symptoms{"cough", "fever"}},
		{name: "object keys", raw: `{"dyspnea": true, "cough": "3 days"}`, want: Symptoms{"dyspnea", "cough"}},
		{name: "single string", raw: `"chest pain"`, want: Symptoms{"chest pain"}},
		{name: "null", raw: `null`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Symptoms
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &s))
			assert.Equal(t, tt.want, s)
		})
	}
}
