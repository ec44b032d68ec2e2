package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/route-engine/internal/analytics"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/core/services"
	"github.com/nulzo/route-engine/internal/server/middleware"
	"github.com/nulzo/route-engine/internal/server/validator"
)

// Handler serves the decision API on top of the engine.
type Handler struct {
	engine    *services.Engine
	analytics analytics.Service
	validator *validator.Validator
}

func NewHandler(engine *services.Engine, analytics analytics.Service, v *validator.Validator) *Handler {
	return &Handler{
		engine:    engine,
		analytics: analytics,
		validator: v,
	}
}

// bind decodes the JSON body into dst, pushing a validation problem on failure.
func (h *Handler) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(domain.ValidationError(h.validator.ParseError(err)))
		return false
	}
	return true
}

// tenantFrom prefers an explicit tenant id over the X-Tenant-ID header.
func tenantFrom(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return c.GetString(middleware.ContextKeyTenantID)
}
