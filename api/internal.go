package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// InternalTokenHeader carries the shared secret of internal callers.
const InternalTokenHeader = "X-Internal-Token"

// RequireInternalToken rejects requests that do not present token.
func RequireInternalToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(InternalTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid " + InternalTokenHeader + " header"})
			return
		}
		c.Next()
	}
}
