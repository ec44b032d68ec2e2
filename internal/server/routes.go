package server

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/route-engine/internal/server/middleware"
	v1 "github.com/nulzo/route-engine/internal/server/v1"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) SetupRoutes() {
	if s.config.Tracing.Enabled {
		s.router.Use(middleware.Tracing(s.config.Tracing.ServiceName))
	}
	s.router.Use(middleware.Identity())
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.ErrorHandler(s.logger))

	h := v1.NewHandler(s.engine, s.analytics, s.validator)

	s.router.GET("/health", h.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/v1")
	api.Use(s.limiter.Middleware())
	{
		api.POST("/route", h.Route)
		api.GET("/capabilities", h.ListCapabilities)
		api.POST("/capabilities/parse", h.ParseCapabilities)

		api.GET("/models/:model/candidates", h.Candidates)
		api.GET("/models/:model/resolve", h.Resolve)
		api.POST("/health-reports", h.ReportHealth)
		api.POST("/cache/invalidate", h.InvalidateCache)

		fb := api.Group("/fallback")
		fb.POST("/contexts", h.CreateContext)
		fb.GET("/contexts/:requestId", h.GetContext)
		fb.DELETE("/contexts/:requestId", h.ClearContext)
		fb.POST("/contexts/:requestId/next", h.NextFallback)

		fb.GET("/chains", h.ListChains)
		fb.POST("/chains/dynamic", h.BuildDynamicChain)
		fb.POST("/chains/reload", h.ReloadChains)
		fb.DELETE("/chains/cache", h.ClearChainCache)
		fb.GET("/chains/:chainId", h.GetChain)
		fb.GET("/chains/:chainId/events", h.ChainEvents)
		fb.GET("/chains/:chainId/summary", h.ChainSummary)
		fb.POST("/chains/:chainId/evaluate", h.EvaluateChain)
	}
}
