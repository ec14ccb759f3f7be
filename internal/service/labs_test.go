package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
)

func TestLabEvaluator_Evaluate(t *testing.T) {
	e := NewLabEvaluator(nil)

	results := e.Evaluate(mustVitals(t, `{"wbc": 15.2, "sodium": 140, "hemoglobin": 9.1, "troponin": 0.02, "crp": "pending"}`))

	require.Len(t, results, 5)
	statuses := make([]domain.LabStatus, len(results))
	for i, r := range results {
		statuses[i] = r.Status
	}
	assert.Equal(t, []domain.LabStatus{
		domain.LabHigh, domain.LabNormal, domain.LabLow, domain.LabUnknown, domain.LabInvalid,
	}, statuses)

	require.NotNil(t, results[0].High)
	assert.Equal(t, "wbc", results[0].Name)
	assert.Nil(t, results[3].Low, "unknown labs carry no range")

	abnormal := Abnormal(results)
	require.Len(t, abnormal, 2)
	assert.Equal(t, "wbc", abnormal[0].Name)
	assert.Equal(t, "hemoglobin", abnormal[1].Name)
}
