package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"

	ContextKeyTenantID  = "tenant_id"
	ContextKeyRequestID = "request_id"
)

// Identity extracts the calling tenant from X-Tenant-ID and makes sure every
// request carries an X-Request-ID.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenant := c.GetHeader(HeaderTenantID); tenant != "" {
			c.Set(ContextKeyTenantID, tenant)
		}

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}
