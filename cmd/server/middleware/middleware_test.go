package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/nlq/pkg/errors"
	"github.com/TFMV/nlq/pkg/models"
)

type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string][]string
	histograms map[string][]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   make(map[string][]string),
		histograms: make(map[string][]string),
	}
}

func (r *recordingCollector) IncrementCounter(name string, labels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] = labels
}

func (r *recordingCollector) RecordHistogram(name string, value float64, labels ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[name] = labels
}

func (r *recordingCollector) RecordGauge(name string, value float64, labels ...string) {}

func (r *recordingCollector) StartTimer(name string) Timer { return fixedTimer(0.25) }

type fixedTimer float64

func (f fixedTimer) Stop() float64 { return float64(f) }

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		id, _ := GetRequestID(c)
		c.String(http.StatusOK, id)
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("inbound reused", func(t *testing.T) {
		inbound := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, inbound)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, inbound, w.Header().Get(RequestIDHeader))
	})

	t.Run("malformed inbound replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	var stderr bytes.Buffer
	m := NewRecoveryMiddleware(zerolog.New(zerolog.NewTestWriter(t)))
	m.stderr = &stderr

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.CodeInternal, body.Code)
	assert.Equal(t, "internal server error", body.Message)
	assert.NotContains(t, w.Body.String(), "kaboom")
	assert.Contains(t, stderr.String(), "PANIC in GET /boom: kaboom")
}

func TestMetricsMiddleware(t *testing.T) {
	collector := newRecordingCollector()
	r := gin.New()
	r.Use(NewMetricsMiddleware(collector).Handler())
	r.GET("/schema/tables/:name", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/schema/tables/employees", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []string{"method", "GET", "route", "/schema/tables/:name", "status", "204"},
		collector.counters["requests_total"])
	assert.Equal(t, []string{"method", "GET", "route", "/schema/tables/:name"},
		collector.histograms["http_request_duration_seconds"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, []string{"method", "GET", "route", "unmatched", "status", "404"},
		collector.counters["requests_total"])
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), NewLoggingMiddleware(zerolog.New(&buf)).Handler())
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "/fail", entry["path"])
	assert.Equal(t, float64(http.StatusBadGateway), entry["status"])
	assert.Equal(t, w.Header().Get(RequestIDHeader), entry["request_id"])
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(60, 2, time.Minute, zerolog.Nop())
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst exhausted")
	assert.True(t, rl.Allow("b"), "clients are independent")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "one token per second at 60/min")

	now = now.Add(2 * time.Minute)
	rl.Allow("b")
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 0, rl.Sweep())
}

func TestRateLimiter_Handler(t *testing.T) {
	rl := NewRateLimiter(60, 1, time.Minute, zerolog.Nop())
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errors.CodeRateLimited, body.Code)
}
