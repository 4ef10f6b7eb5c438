package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminMiddleware admits requests whose X-Admin-Key header equals secret.
// Bearer tokens play no part in the decision.
func AdminMiddleware(secret string) gin.HandlerFunc {
	expected := []byte(secret)

	return func(c *gin.Context) {
		provided := []byte(c.GetHeader(AdminKeyHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(provided, expected) != 1 {
			logrus.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"client_ip": c.ClientIP(),
			}).Warn("Rejected admin request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Next()
	}
}
