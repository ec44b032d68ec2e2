package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/route-engine/internal/analytics"
	"github.com/nulzo/route-engine/internal/config"
	"github.com/nulzo/route-engine/internal/core/services"
	"github.com/nulzo/route-engine/internal/server/middleware"
	"github.com/nulzo/route-engine/internal/server/validator"
	"go.uber.org/zap"
)

type Server struct {
	router    *gin.Engine
	config    *config.Config
	logger    *zap.Logger
	engine    *services.Engine
	analytics analytics.Service
	limiter   *middleware.RateLimiter
	validator *validator.Validator
}

func New(cfg *config.Config, logger *zap.Logger, engine *services.Engine, analytics analytics.Service) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))

	s := &Server{
		router:    router,
		config:    cfg,
		logger:    logger,
		engine:    engine,
		analytics: analytics,
		limiter:   middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger),
		validator: validator.New(),
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// RateLimiter exposes the limiter so idle clients can be pruned.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.limiter
}
