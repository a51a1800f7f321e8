package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pybox/internal/metrics"
)

// BodySizeLimit rejects requests whose body exceeds maxBytes with a 413
// before any handler work happens.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			metrics.RequestsRejected.WithLabelValues("body_too_large").Inc()
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body too large",
			})
			return
		}

		// ContentLength can be -1 for chunked bodies, so the actual read
		// is capped as well.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
