package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/pkg/api"
)

// resolveOptions reads resolution options from the query string.
func resolveOptions(c *gin.Context) (domain.ResolveOptions, *domain.Problem) {
	opts := domain.ResolveOptions{
		PreferredVendor:  c.Query("preferred_vendor"),
		RequiredProtocol: domain.Protocol(c.Query("required_protocol")),
	}

	if opts.RequiredProtocol != "" && !opts.RequiredProtocol.Valid() {
		return opts, domain.ValidationError(map[string]string{
			"required_protocol": "must be one of [openai, anthropic, google]",
		})
	}

	if raw := c.Query("min_health"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			return opts, domain.ValidationError(map[string]string{
				"min_health": "must be an integer between 0 and 100",
			})
		}
		opts.MinHealthScore = n
	}

	if raw := c.Query("exclude"); raw != "" {
		opts.ExcludeProviderKeyIDs = make(map[string]struct{})
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.ExcludeProviderKeyIDs[id] = struct{}{}
			}
		}
	}
	return opts, nil
}

// Candidates lists every eligible provider instance for a model, best first.
//
// GET /v1/models/:model/candidates
func (h *Handler) Candidates(c *gin.Context) {
	opts, problem := resolveOptions(c)
	if problem != nil {
		_ = c.Error(problem)
		return
	}

	candidates, err := h.engine.ResolveAll(c.Request.Context(), c.Param("model"), opts)
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to resolve model", err))
		return
	}

	c.JSON(http.StatusOK, api.List(candidates))
}

// Resolve returns the best provider instance for a model.
//
// GET /v1/models/:model/resolve
func (h *Handler) Resolve(c *gin.Context) {
	opts, problem := resolveOptions(c)
	if problem != nil {
		_ = c.Error(problem)
		return
	}

	model := c.Param("model")
	best, err := h.engine.Resolve(c.Request.Context(), model, opts)
	if errors.Is(err, domain.ErrNoCandidate) {
		_ = c.Error(domain.UnavailableError("No provider instance can serve model "+model,
			domain.WithExtension("model", model)))
		return
	}
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to resolve model", err))
		return
	}

	c.JSON(http.StatusOK, best)
}

// ReportHealth folds one call outcome into the provider's health score.
//
// POST /v1/health-reports
func (h *Handler) ReportHealth(c *gin.Context) {
	var req api.HealthReport
	if !h.bind(c, &req) {
		return
	}

	if err := h.engine.UpdateHealthScore(c.Request.Context(), req.ProviderKeyID, req.Model, *req.Success); err != nil {
		_ = c.Error(domain.InternalError("Failed to update health score", err))
		return
	}

	c.Status(http.StatusNoContent)
}

// InvalidateCache drops cached credential metadata.
//
// POST /v1/cache/invalidate
func (h *Handler) InvalidateCache(c *gin.Context) {
	var req api.InvalidateCacheRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}

	if err := h.engine.InvalidateCache(c.Request.Context(), req.Model); err != nil {
		_ = c.Error(domain.InternalError("Failed to invalidate cache", err))
		return
	}

	c.Status(http.StatusNoContent)
}
