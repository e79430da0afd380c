package tests

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/annel0/rpg-server/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMiddleware_BasicMetrics(t *testing.T) {
	// Создаём новый регистр для изоляции тестов
	registry := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = registry

	gin.SetMode(gin.TestMode)
	r := gin.New()

	promMw := middleware.NewPrometheusMiddleware("test")
	r.Use(promMw.Handler())

	r.GET("/test", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	r.GET("/error", func(c *gin.Context) {
		c.JSON(500, gin.H{"error": "test error"})
	})

	// Успешный запрос
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)

	// Запрос с ошибкой
	w2 := httptest.NewRecorder()
	req2, _ := http.NewRequest("GET", "/error", nil)
	r.ServeHTTP(w2, req2)
	assert.Equal(t, 500, w2.Code)

	// Проверяем метрики
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	var foundDuration, foundErrors bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "test_http_request_duration_seconds":
			foundDuration = true
			assert.NotEmpty(t, mf.GetMetric())
		case "test_http_request_errors_total":
			foundErrors = true
			require.NotEmpty(t, mf.GetMetric())
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, foundDuration, "метрика длительности не зарегистрирована")
	assert.True(t, foundErrors, "метрика ошибок не зарегистрирована")
}

func TestRequestLogger_TraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	loggerMw := middleware.NewRequestLogger()
	r.Use(loggerMw.Handler())

	var traceID string
	r.GET("/traced", func(c *gin.Context) {
		v, exists := c.Get("trace_id")
		require.True(t, exists, "trace_id не установлен")
		traceID = v.(string)
		c.JSON(200, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/traced", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.NotEmpty(t, traceID)
}
