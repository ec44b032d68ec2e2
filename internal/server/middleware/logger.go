package middleware

import (
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger logs request details using Zap. Probe endpoints are skipped.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return ginzap.GinzapWithConfig(logger, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health", "/metrics"},
		Context: func(c *gin.Context) []zap.Field {
			var fields []zap.Field
			if id := c.GetString(ContextKeyRequestID); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			if tenant := c.GetString(ContextKeyTenantID); tenant != "" {
				fields = append(fields, zap.String("tenant_id", tenant))
			}
			return fields
		},
	})
}

// Recovery turns panics into 500 responses and logs them with a stack trace.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return ginzap.RecoveryWithZap(logger, true)
}
