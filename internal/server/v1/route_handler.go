package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/pkg/api"
)

// Route classifies the wrapped chat request and returns a routing decision.
//
// POST /v1/route
func (h *Handler) Route(c *gin.Context) {
	var req api.RouteRequest
	if !h.bind(c, &req) {
		return
	}

	tenant := domain.TenantContext{
		TenantID:        tenantFrom(c, req.TenantID),
		InstalledSkills: req.InstalledSkills,
	}
	res := h.engine.Route(c.Request.Context(), req.Request, req.Hint, tenant, req.Model)

	c.JSON(http.StatusOK, res)
}

// ParseCapabilities returns the requirements a chat request implies.
//
// POST /v1/capabilities/parse
func (h *Handler) ParseCapabilities(c *gin.Context) {
	var req api.ParseCapabilitiesRequest
	if !h.bind(c, &req) {
		return
	}

	c.JSON(http.StatusOK, api.List(h.engine.ParseCapabilityRequirements(req.Request, req.Hint)))
}

// ListCapabilities returns the active requirement table.
//
// GET /v1/capabilities
func (h *Handler) ListCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, api.List(h.engine.Requirements()))
}
