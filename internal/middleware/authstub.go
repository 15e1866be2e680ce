package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthStub stands in for the HTTP authentication middleware, which is an
// external collaborator here: requests must carry a bearer token, and
// whatever issued and validated that token lives outside this system. This stub only checks
// presence and forwards the raw token under "bearerToken" in the Gin
// context for downstream handlers that want to log or forward it; it does
// not verify signature, expiry, or claims.
func AuthStub() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or malformed bearer token"})
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}
		c.Set("bearerToken", token)
		c.Next()
	}
}
