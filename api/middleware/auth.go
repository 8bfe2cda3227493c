package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/abdulrahman305/spider/models"
)

// Auth returns API-key authentication middleware. The key is read from the
// Authorization header ("Bearer <key>") or the X-API-Key header.
func Auth(apiKeys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				key = strings.TrimPrefix(header, "Bearer ")
			}
		}

		for _, valid := range apiKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
				c.Set("api_key", key)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": models.ErrorDetail{
				Code:    models.ErrCodeUnauthorized,
				Message: "missing or invalid API key",
			},
		})
	}
}
