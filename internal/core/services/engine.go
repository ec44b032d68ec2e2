// Package services wires the classifier, selector, resolver and fallback
// engine into the single decision engine the executors call into.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/core/ports"
	"github.com/nulzo/route-engine/internal/core/services/capability"
	"github.com/nulzo/route-engine/internal/core/services/fallback"
	"github.com/nulzo/route-engine/internal/core/services/route"
	"github.com/nulzo/route-engine/internal/core/services/vendor"
	"github.com/nulzo/route-engine/internal/platform/metrics"
	"github.com/nulzo/route-engine/internal/store"
	"github.com/nulzo/route-engine/pkg/api"
	"go.uber.org/zap"
)

type EngineConfig struct {
	DefaultModel       string
	CredentialCacheTTL time.Duration
	ChainCacheTTL      time.Duration
	SweepInterval      time.Duration
	// ContextTTL evicts fallback contexts idle for longer. Zero disables it.
	ContextTTL time.Duration
}

// Engine is the routing, resolution and failover facade. Resolver and
// fallback operations are promoted from the embedded components.
type Engine struct {
	*vendor.Resolver
	*fallback.Engine

	classifier *capability.Classifier
	selector   *route.Selector

	repo  store.Repository
	cache ports.CacheService
	cfg   EngineConfig
	log   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewEngine(repo store.Repository, cache ports.CacheService, sink ports.EventSink, cfg EngineConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return &Engine{
		Resolver: vendor.NewResolver(repo.Availability(), repo.Credentials(), cache, cfg.CredentialCacheTTL, log),
		Engine: fallback.NewEngine(repo.Chains(), cache, fallback.Config{
			ChainCacheTTL: cfg.ChainCacheTTL,
			Sink:          sink,
			Logger:        log,
		}),
		classifier: capability.NewClassifier(nil),
		selector:   route.NewSelector(cfg.DefaultModel, log),
		repo:       repo,
		cache:      cache,
		cfg:        cfg,
		log:        log.Named("engine"),
	}
}

// Start loads externally stored configuration and starts the cache sweep.
// Configuration load failures keep the built-in defaults.
func (e *Engine) Start(ctx context.Context) {
	e.ReloadConfig(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.stopped = make(chan struct{})
	go e.sweepLoop(sweepCtx, e.stopped)
}

// Close stops the sweep and waits for it to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	cancel, stopped := e.cancel, e.stopped
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (e *Engine) sweepLoop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Sweep removes expired cache entries and stale fallback contexts.
func (e *Engine) Sweep() {
	if s, ok := e.cache.(ports.Sweeper); ok {
		if n := s.Sweep(); n > 0 {
			metrics.CacheSweeps.WithLabelValues("cache").Add(float64(n))
			e.log.Debug("expired cache entries removed", zap.Int("count", n))
		}
	}
	if n := e.EvictStale(e.cfg.ContextTTL); n > 0 {
		metrics.CacheSweeps.WithLabelValues("fallback_context").Add(float64(n))
	}
}

// ReloadConfig overlays stored capability tags and fallback chains onto the
// built-in defaults and drops cached chain definitions.
func (e *Engine) ReloadConfig(ctx context.Context) {
	tags, err := e.repo.Capabilities().ListActive(ctx)
	if err != nil {
		e.log.Warn("capability tags unavailable, keeping current table", zap.Error(err))
	} else if len(tags) > 0 {
		e.classifier.Reload(append(capability.DefaultRequirements(), tags...))
		e.log.Info("capability tags loaded", zap.Int("count", len(tags)))
	}

	if _, err := e.LoadFallbackChainsFromDB(ctx); err != nil {
		e.log.Warn("fallback chains unavailable, keeping current chains", zap.Error(err))
	}
	if err := e.ClearChainCache(ctx); err != nil {
		e.log.Warn("failed to clear chain cache", zap.Error(err))
	}
}

// ParseCapabilityRequirements classifies a raw request body.
func (e *Engine) ParseCapabilityRequirements(body []byte, hint string) []domain.CapabilityRequirement {
	return e.classifier.ParseRaw(body, hint)
}

// Requirements returns the active capability table.
func (e *Engine) Requirements() []domain.CapabilityRequirement {
	return e.classifier.Requirements()
}

// SelectRoute picks a route. A tenant without a routing config gets it looked
// up from the store; a store failure routes without it.
func (e *Engine) SelectRoute(ctx context.Context, requirements []domain.CapabilityRequirement, tenant domain.TenantContext, requestedModel string) domain.RouteDecision {
	if tenant.RoutingConfig == nil && tenant.TenantID != "" {
		cfg, err := e.repo.RoutingConfigs().GetByTenant(ctx, tenant.TenantID)
		switch {
		case err == nil:
			tenant.RoutingConfig = cfg
		case errors.Is(err, domain.ErrNotFound):
		default:
			e.log.Warn("routing config unavailable", zap.String("tenant_id", tenant.TenantID), zap.Error(err))
		}
	}
	return e.selector.SelectRoute(requirements, tenant, requestedModel)
}

// RouteResult is a decision together with the requirements that drove it.
type RouteResult struct {
	Decision     domain.RouteDecision           `json:"decision"`
	Requirements []domain.CapabilityRequirement `json:"requirements"`
}

// Route classifies the body and selects a route in one call. The requested
// model is taken from the body when it is not given.
func (e *Engine) Route(ctx context.Context, body []byte, hint string, tenant domain.TenantContext, requestedModel string) RouteResult {
	var req api.ChatRequest
	var reqs []domain.CapabilityRequirement
	if err := json.Unmarshal(body, &req); err != nil {
		e.log.Debug("request body not decodable, taking default route", zap.Error(err))
		reqs = e.classifier.Parse(nil, hint)
	} else {
		reqs = e.classifier.Parse(&req, hint)
		if requestedModel == "" {
			requestedModel = req.Model
		}
	}
	if reqs == nil {
		reqs = []domain.CapabilityRequirement{}
	}

	return RouteResult{
		Decision:     e.SelectRoute(ctx, reqs, tenant, requestedModel),
		Requirements: reqs,
	}
}
