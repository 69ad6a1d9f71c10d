package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/beautyops/backend/internal/infrastructure/relay"
)

// ProxyAPIKey rejects relay requests whose x-proxy-api-key header does not
// match apiKey. An empty apiKey rejects everything. The body uses the relay
// envelope so relay clients can surface the message.
func ProxyAPIKey(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(relay.HeaderAPIKey))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, relay.Response{
				Success: false,
				Error:   "invalid proxy api key",
			})
			return
		}
		c.Next()
	}
}
