package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/pkg/api"
)

// CreateContext starts tracking a request on a chain.
//
// POST /v1/fallback/contexts
func (h *Handler) CreateContext(c *gin.Context) {
	var req api.CreateContextRequest
	if !h.bind(c, &req) {
		return
	}

	fc, err := h.engine.CreateContext(c.Request.Context(), req.RequestID, req.ChainID)
	if errors.Is(err, domain.ErrChainNotFound) {
		_ = c.Error(domain.NotFoundError("Fallback chain not found", domain.WithExtension("chain_id", req.ChainID)))
		return
	}
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to create fallback context", err))
		return
	}

	c.JSON(http.StatusCreated, fc)
}

// GetContext returns the traversal stats of a request.
//
// GET /v1/fallback/contexts/:requestId
func (h *Handler) GetContext(c *gin.Context) {
	stats, ok := h.engine.GetFallbackStats(c.Request.Context(), c.Param("requestId"))
	if !ok {
		_ = c.Error(domain.NotFoundError("No active fallback context"))
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ClearContext releases a request's context.
//
// DELETE /v1/fallback/contexts/:requestId
func (h *Handler) ClearContext(c *gin.Context) {
	if !h.engine.ClearContext(c.Param("requestId")) {
		_ = c.Error(domain.NotFoundError("No active fallback context"))
		return
	}

	c.Status(http.StatusNoContent)
}

// NextFallback reports a failure and returns what to try next. Unknown
// contexts and exhausted chains are normal answers, not errors.
//
// POST /v1/fallback/contexts/:requestId/next
func (h *Handler) NextFallback(c *gin.Context) {
	var req api.FailureReport
	if !h.bind(c, &req) {
		return
	}

	c.JSON(http.StatusOK, h.engine.GetNextFallback(c.Request.Context(), c.Param("requestId"), req.Signal()))
}

// ListChains returns every registered chain.
//
// GET /v1/fallback/chains
func (h *Handler) ListChains(c *gin.Context) {
	c.JSON(http.StatusOK, api.List(h.engine.GetAllFallbackChains()))
}

// GetChain returns one chain, loading it from the store if needed.
//
// GET /v1/fallback/chains/:chainId
func (h *Handler) GetChain(c *gin.Context) {
	chainID := c.Param("chainId")

	chain, err := h.engine.GetFallbackChainAsync(c.Request.Context(), chainID)
	if errors.Is(err, domain.ErrChainNotFound) {
		_ = c.Error(domain.NotFoundError("Fallback chain not found", domain.WithExtension("chain_id", chainID)))
		return
	}
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to load fallback chain", err))
		return
	}

	c.JSON(http.StatusOK, chain)
}

// EvaluateChain answers whether a failure would trigger fallback on a chain.
//
// POST /v1/fallback/chains/:chainId/evaluate
func (h *Handler) EvaluateChain(c *gin.Context) {
	var req api.FailureReport
	if !h.bind(c, &req) {
		return
	}

	chainID := c.Param("chainId")
	c.JSON(http.StatusOK, api.EvaluateResponse{
		ChainID:       chainID,
		ShouldTrigger: h.engine.ShouldTriggerFallback(c.Request.Context(), chainID, req.Signal()),
	})
}

// BuildDynamicChain builds, and optionally registers, a tenant chain.
//
// POST /v1/fallback/chains/dynamic
func (h *Handler) BuildDynamicChain(c *gin.Context) {
	var req api.DynamicChainRequest
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var (
		chain *domain.FallbackChain
		err   error
	)
	if req.Register {
		chain, err = h.engine.RegisterBotFallbackChain(ctx, req.TenantID, req.Models)
	} else {
		chain, err = h.engine.BuildDynamicFallbackChain(ctx, req.TenantID, req.Models, req.ChainID)
	}
	if errors.Is(err, domain.ErrEmptyChain) {
		_ = c.Error(domain.BadRequestError("At least one model is required"))
		return
	}
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to build fallback chain", err))
		return
	}

	status := http.StatusOK
	if req.Register {
		status = http.StatusCreated
	}
	c.JSON(status, chain)
}

// ReloadChains overlays stored capability tags and chains onto the defaults.
//
// POST /v1/fallback/chains/reload
func (h *Handler) ReloadChains(c *gin.Context) {
	h.engine.ReloadConfig(c.Request.Context())

	c.JSON(http.StatusOK, api.List(h.engine.GetAllFallbackChains()))
}

// ClearChainCache drops cached chain definitions.
//
// DELETE /v1/fallback/chains/cache
func (h *Handler) ClearChainCache(c *gin.Context) {
	if err := h.engine.ClearChainCache(c.Request.Context()); err != nil {
		_ = c.Error(domain.InternalError("Failed to clear chain cache", err))
		return
	}

	c.Status(http.StatusNoContent)
}

// ChainEvents returns the most recent fallback transitions of a chain.
//
// GET /v1/fallback/chains/:chainId/events
func (h *Handler) ChainEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.analytics.RecentEvents(c.Request.Context(), c.Param("chainId"), limit)
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to load fallback events", err))
		return
	}

	c.JSON(http.StatusOK, api.List(events))
}

// ChainSummary aggregates the recent fallback transitions of a chain.
//
// GET /v1/fallback/chains/:chainId/summary
func (h *Handler) ChainSummary(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))

	summary, err := h.analytics.ChainSummary(c.Request.Context(), c.Param("chainId"), limit)
	if err != nil {
		_ = c.Error(domain.InternalError("Failed to summarize fallback events", err))
		return
	}

	c.JSON(http.StatusOK, summary)
}
