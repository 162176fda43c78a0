package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestTraceOperation_RecordsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tm, err := NewTracingManagerWithExporter(TracingConfig{ServiceName: "sales-test", SamplingRate: 1}, exporter)
	require.NoError(t, err)
	defer func() { _ = tm.Stop(context.Background()) }()

	boom := errors.New("boom")
	err = TraceOperation(context.Background(), tm.Tracer(), "sales", "save", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "sales.save", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestNewTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(DefaultTracingConfig())
	require.NoError(t, err)
	assert.NotNil(t, tm.Tracer())
	assert.NoError(t, tm.Stop(context.Background()))
}

func TestNewTracingManager_UnknownExporter(t *testing.T) {
	_, err := NewTracingManager(TracingConfig{Enabled: true, Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationIDMiddleware())

	var seen string
	router.GET("/ping", func(c *gin.Context) {
		seen = CorrelationID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "corr-1", seen)
	assert.Equal(t, "corr-1", w.Header().Get("X-Correlation-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestHealthRegistry_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := NewHealthRegistry(0)
	registry.Register("memory", checkFunc(func(ctx context.Context) error { return nil }))

	router := gin.New()
	router.GET("/health", registry.Handler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	registry.Register("postgres", checkFunc(func(ctx context.Context) error { return errors.New("connection refused") }))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var result HealthCheckResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "unhealthy", result.Checks["postgres"].Status)
	assert.Equal(t, "healthy", result.Checks["memory"].Status)
}
