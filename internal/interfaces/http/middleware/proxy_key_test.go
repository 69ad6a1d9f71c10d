package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautyops/backend/internal/infrastructure/relay"
)

func TestProxyAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{name: "matching key", configured: "relay-secret", header: "relay-secret", wantStatus: http.StatusOK},
		{name: "wrong key", configured: "relay-secret", header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing header", configured: "relay-secret", header: "", wantStatus: http.StatusUnauthorized},
		{name: "prefix of key", configured: "relay-secret", header: "relay", wantStatus: http.StatusUnauthorized},
		{name: "unconfigured key rejects all", configured: "", header: "", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.Use(ProxyAPIKey(tt.configured))
			r.POST(relay.TestPath, func(c *gin.Context) {
				c.JSON(http.StatusOK, relay.Response{Success: true})
			})

			req := httptest.NewRequest(http.MethodPost, relay.TestPath, nil)
			if tt.header != "" {
				req.Header.Set(relay.HeaderAPIKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			var resp relay.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.wantStatus == http.StatusOK {
				assert.True(t, resp.Success)
			} else {
				assert.False(t, resp.Success)
				assert.Equal(t, "invalid proxy api key", resp.Error)
			}
		})
	}
}
