package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-assist-server/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"correlation_id": c.GetString(CorrelationIDKey),
			"clinician_id":   c.GetString(ClinicianIDKey),
		})
	})
	return r
}

func TestSecurityHeaders(t *testing.T) {
	r := newRouter(SecurityHeaders())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(CORS())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/ping", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), ClinicianIDHeader)
}

func TestCorrelationAndClinician(t *testing.T) {
	r := newRouter(CorrelationID(), ClinicianScope())

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.NotEmpty(t, body["correlation_id"])
		assert.Equal(t, body["correlation_id"], w.Header().Get(CorrelationIDHeader))
		assert.Empty(t, body["clinician_id"])
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(CorrelationIDHeader, "corr-1")
		req.Header.Set(ClinicianIDHeader, "dr-house")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "corr-1", body["correlation_id"])
		assert.Equal(t, "dr-house", body["clinician_id"])
	})
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	r := newRouter(CorrelationID(), ClinicianScope(), AuditLogger(&buf))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationIDHeader, "corr-7")
	req.Header.Set(ClinicianIDHeader, "dr-grey")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "corr-7", line["correlation_id"])
	assert.Equal(t, "dr-grey", line["clinician_id"])
	assert.Equal(t, float64(200), line["status"])
}

func TestRateLimit(t *testing.T) {
	l := NewClientLimiter(1, 2, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	r := newRouter(CorrelationID(), RateLimit(l))
	do := func(clinician string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(ClinicianIDHeader, clinician)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("a").Code)
	assert.Equal(t, http.StatusOK, do("a").Code)

	w := do("a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrCodeRateLimit, apiErr.Code)
	assert.NotEmpty(t, apiErr.RequestID)

	assert.Equal(t, http.StatusOK, do("b").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("a").Code)
}

func TestClientLimiter_Sweep(t *testing.T) {
	l := NewClientLimiter(1, 1, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(2 * time.Minute)
	l.Allow("new")

	assert.Equal(t, 1, l.Sweep())
}
