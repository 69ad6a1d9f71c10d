package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfiling_LabelsRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got map[string]string
	r := gin.New()
	r.Use(Profiling(ProfilingConfig{Enabled: true, SkipPaths: []string{"/health"}}))
	capture := func(c *gin.Context) {
		got = map[string]string{}
		pprof.ForLabels(c.Request.Context(), func(key, value string) bool {
			got[key] = value
			return true
		})
		c.Status(http.StatusOK)
	}
	r.GET("/api/v1/order-sync/runs", capture)
	r.GET("/health", capture)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/order-sync/runs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{
		"method":     "GET",
		"route":      "/api/v1/order-sync/runs",
		"controller": "order-sync",
	}, got)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, got)
}

func TestProfiling_Disabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	labelled := false
	r := gin.New()
	r.Use(Profiling(ProfilingConfig{Enabled: false}))
	r.GET("/test", func(c *gin.Context) {
		_, labelled = pprof.Label(c.Request.Context(), "route")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.False(t, labelled)
}

func TestControllerFromRoute(t *testing.T) {
	tests := []struct {
		route string
		want  string
	}{
		{"/api/v1/order-sync/runs", "order-sync"},
		{"/api/v1/orders", "orders"},
		{"/api/naver/sync", "naver"},
		{"/api/v2/scheduler/jobs/:id", "scheduler"},
		{"/health", "health"},
		{"/", "root"},
		{"unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			assert.Equal(t, tt.want, controllerFromRoute(tt.route))
		})
	}
}

func TestIsVersionSegment(t *testing.T) {
	assert.True(t, isVersionSegment("v1"))
	assert.True(t, isVersionSegment("V12"))
	assert.False(t, isVersionSegment("v"))
	assert.False(t, isVersionSegment("version"))
	assert.False(t, isVersionSegment("orders"))
}
