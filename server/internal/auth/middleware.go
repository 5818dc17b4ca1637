package auth

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKey returns a gin middleware that enforces API key authentication on
// every request it guards.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests are allowed (pass-through).
//   - OPTIONS requests are allowed so CORS preflight keeps working.
//   - Otherwise the value of header is compared to key in constant time.
//   - A missing, empty, or incorrect key aborts with 401.
func APIKey(mode, header, key string) gin.HandlerFunc {
	if mode != "apikey" || key == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := []byte(key)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		got := c.GetHeader(header)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			slog.Warn("auth: rejected request", "path", c.FullPath(), "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}
