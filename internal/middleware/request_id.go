package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"portfolio/internal/audit"
	"portfolio/internal/httpx"
)

const maxRequestIDLength = 128

// RequestID propagates or mints the request id and stamps the audit metadata
// (request id, client ip, user agent) onto the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(httpx.RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		c.Set(httpx.RequestIDHeader, requestID)
		c.Writer.Header().Set(httpx.RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(audit.WithMeta(c.Request.Context(), audit.Meta{
			RequestID: requestID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))

		c.Next()
	}
}
