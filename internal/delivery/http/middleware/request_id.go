package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key the request id is stored under; the
// request logger reads it back for correlation.
const requestIDKey = "request_id"

// RequestID tags each request with an id for log correlation. A caller's
// X-Request-ID header is honored so ids stay stable across proxies;
// otherwise a time-ordered UUID is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			generated, err := uuid.NewV7()
			if err != nil {
				generated = uuid.New()
			}
			id = generated.String()
		}

		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
