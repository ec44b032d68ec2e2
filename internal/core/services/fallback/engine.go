// Package fallback owns named fallback chains and walks in-flight requests
// through them when upstream calls fail.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/core/ports"
	"github.com/nulzo/route-engine/internal/platform/metrics"
	"github.com/nulzo/route-engine/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ChainKeyPrefix namespaces chain definitions in the shared cache.
const ChainKeyPrefix = "chain:"

const DefaultChainTTL = 5 * time.Minute

// Decision reasons.
const (
	ReasonNoContext     = "No active fallback context"
	ReasonChainNotFound = "Fallback chain not found"
	ReasonMaxRetries    = "Max retries exceeded"
	ReasonExhausted     = "All fallback models exhausted"
)

type Config struct {
	// ChainCacheTTL bounds how long a chain loaded from the store is reused.
	ChainCacheTTL time.Duration
	// Sink receives every fallback transition. Defaults to ports.NopSink.
	Sink   ports.EventSink
	Logger *zap.Logger
}

// Engine is safe for concurrent use. Contexts are keyed by the caller's
// request id and live until cleared, released or evicted as stale.
type Engine struct {
	chains   store.ChainRepository
	cache    ports.CacheService
	chainTTL time.Duration
	sink     ports.EventSink

	mu       sync.RWMutex
	registry map[string]*domain.FallbackChain
	contexts map[string]*domain.FallbackContext

	tracer trace.Tracer
	log    *zap.Logger
	now    func() time.Time
}

func NewEngine(chains store.ChainRepository, cache ports.CacheService, cfg Config) *Engine {
	if cfg.ChainCacheTTL <= 0 {
		cfg.ChainCacheTTL = DefaultChainTTL
	}
	if cfg.Sink == nil {
		cfg.Sink = ports.NopSink{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	e := &Engine{
		chains:   chains,
		cache:    cache,
		chainTTL: cfg.ChainCacheTTL,
		sink:     cfg.Sink,
		registry: make(map[string]*domain.FallbackChain),
		contexts: make(map[string]*domain.FallbackContext),
		tracer:   otel.Tracer("route-engine/fallback"),
		log:      cfg.Logger.Named("fallback"),
		now:      time.Now,
	}
	for _, c := range DefaultChains() {
		e.registry[c.ChainID] = c.Clone()
	}
	return e
}

// RegisterChain adds or replaces a chain in the registry.
func (e *Engine) RegisterChain(chain *domain.FallbackChain) error {
	if chain == nil {
		return domain.ErrEmptyChain
	}
	if err := chain.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.registry[chain.ChainID] = chain.Clone()
	e.mu.Unlock()
	return nil
}

// GetFallbackChain returns a chain from the registry or the chain cache. It
// never touches the store, but the chain cache is the shared cache service,
// so with Redis configured a registry miss costs one round trip.
func (e *Engine) GetFallbackChain(ctx context.Context, chainID string) (*domain.FallbackChain, bool) {
	e.mu.RLock()
	c, ok := e.registry[chainID]
	e.mu.RUnlock()
	if ok {
		return c.Clone(), true
	}

	var cached domain.FallbackChain
	if err := e.cache.Get(ctx, ChainKeyPrefix+chainID, &cached); err == nil {
		return &cached, true
	}
	return nil, false
}

// GetFallbackChainAsync is GetFallbackChain followed by a store lookup whose
// result is cached. Unknown ids return domain.ErrChainNotFound.
func (e *Engine) GetFallbackChainAsync(ctx context.Context, chainID string) (*domain.FallbackChain, error) {
	if c, ok := e.GetFallbackChain(ctx, chainID); ok {
		return c, nil
	}

	c, err := e.chains.Get(ctx, chainID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("chain %q: %w", chainID, domain.ErrChainNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load chain %q: %w", chainID, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("chain %q: %w", chainID, domain.ErrChainNotFound)
	}

	if err := e.cache.Set(ctx, ChainKeyPrefix+chainID, c, e.chainTTL); err != nil {
		e.log.Debug("chain cache write failed", zap.String("chain_id", chainID), zap.Error(err))
	}
	return c, nil
}

// lookup resolves a chain for the state machine, logging store failures.
func (e *Engine) lookup(ctx context.Context, chainID string) (*domain.FallbackChain, bool) {
	c, err := e.GetFallbackChainAsync(ctx, chainID)
	if err != nil {
		if !errors.Is(err, domain.ErrChainNotFound) {
			e.log.Warn("fallback chain lookup failed", zap.String("chain_id", chainID), zap.Error(err))
		}
		return nil, false
	}
	return c, true
}

// GetAllFallbackChains returns every registered chain ordered by id.
func (e *Engine) GetAllFallbackChains() []domain.FallbackChain {
	e.mu.RLock()
	out := make([]domain.FallbackChain, 0, len(e.registry))
	for _, c := range e.registry {
		out = append(out, *c.Clone())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// LoadFallbackChainsFromDB overlays every active stored chain onto the
// registry and returns how many were registered. Invalid chains are skipped.
func (e *Engine) LoadFallbackChainsFromDB(ctx context.Context) (int, error) {
	chains, err := e.chains.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list fallback chains: %w", err)
	}

	loaded := 0
	for i := range chains {
		if err := e.RegisterChain(&chains[i]); err != nil {
			e.log.Warn("skipping invalid fallback chain", zap.String("chain_id", chains[i].ChainID), zap.Error(err))
			continue
		}
		loaded++
	}
	e.log.Info("fallback chains loaded", zap.Int("count", loaded))
	return loaded, nil
}

// ClearChainCache drops every cached chain definition.
func (e *Engine) ClearChainCache(ctx context.Context) error {
	return e.cache.DeletePrefix(ctx, ChainKeyPrefix)
}

// BuildDynamicFallbackChain builds a tenant chain from the models it has
// available. chainID defaults to BotChainID(tenantID).
func (e *Engine) BuildDynamicFallbackChain(ctx context.Context, tenantID string, available []domain.CandidateModel, chainID string) (*domain.FallbackChain, error) {
	template, ok := e.GetFallbackChain(ctx, ChainDefault)
	if !ok {
		template = DefaultChains()[0].Clone()
	}
	return buildDynamicChain(tenantID, chainID, available, template)
}

// RegisterBotFallbackChain builds the tenant's dynamic chain and registers it,
// replacing any previous chain with the same id.
func (e *Engine) RegisterBotFallbackChain(ctx context.Context, tenantID string, available []domain.CandidateModel) (*domain.FallbackChain, error) {
	chain, err := e.BuildDynamicFallbackChain(ctx, tenantID, available, "")
	if err != nil {
		return nil, err
	}
	if err := e.RegisterChain(chain); err != nil {
		return nil, err
	}
	if err := e.cache.Delete(ctx, ChainKeyPrefix+chain.ChainID); err != nil {
		e.log.Debug("chain cache delete failed", zap.String("chain_id", chain.ChainID), zap.Error(err))
	}
	e.log.Info("bot fallback chain registered",
		zap.String("tenant_id", tenantID),
		zap.String("chain_id", chain.ChainID),
		zap.Int("models", len(chain.Models)),
	)
	return chain, nil
}

// ShouldTriggerFallback reports whether the failure matches any trigger of the
// chain. Unknown chains and empty signals never trigger.
func (e *Engine) ShouldTriggerFallback(ctx context.Context, chainID string, signal domain.FailureSignal) bool {
	chain, ok := e.lookup(ctx, chainID)
	if !ok {
		return false
	}
	return triggers(chain, signal)
}

func triggers(chain *domain.FallbackChain, s domain.FailureSignal) bool {
	if s.StatusCode != 0 && chain.TriggersOnStatus(s.StatusCode) {
		return true
	}
	if s.ErrorType != "" && chain.TriggersOnErrorType(s.ErrorType) {
		return true
	}
	return chain.TriggerTimeoutMs > 0 && s.ResponseTimeMs > chain.TriggerTimeoutMs
}

// CreateContext starts tracking requestID on chainID. An existing context for
// the same request is replaced.
func (e *Engine) CreateContext(ctx context.Context, requestID, chainID string) (*domain.FallbackContext, error) {
	if _, ok := e.lookup(ctx, chainID); !ok {
		return nil, fmt.Errorf("chain %q: %w", chainID, domain.ErrChainNotFound)
	}

	now := e.now()
	fc := &domain.FallbackContext{
		RequestID: requestID,
		ChainID:   chainID,
		Errors:    []domain.FallbackError{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.mu.Lock()
	if _, replaced := e.contexts[requestID]; replaced {
		e.log.Debug("replacing fallback context", zap.String("request_id", requestID))
	}
	e.contexts[requestID] = fc
	active := len(e.contexts)
	e.mu.Unlock()

	metrics.ActiveFallbackContexts.Set(float64(active))
	return fc.Clone(), nil
}

// GetContext returns a copy of the request's context.
func (e *Engine) GetContext(requestID string) (*domain.FallbackContext, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fc, ok := e.contexts[requestID]
	if !ok {
		return nil, false
	}
	return fc.Clone(), true
}

// ClearContext releases the request's context. It reports whether one existed.
func (e *Engine) ClearContext(requestID string) bool {
	e.mu.Lock()
	_, ok := e.contexts[requestID]
	delete(e.contexts, requestID)
	active := len(e.contexts)
	e.mu.Unlock()

	metrics.ActiveFallbackContexts.Set(float64(active))
	return ok
}

// ActiveContexts returns how many contexts are held.
func (e *Engine) ActiveContexts() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.contexts)
}

// EvictStale removes contexts untouched for longer than ttl and returns how
// many were removed.
func (e *Engine) EvictStale(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := e.now().Add(-ttl)

	e.mu.Lock()
	removed := 0
	for id, fc := range e.contexts {
		if fc.UpdatedAt.Before(cutoff) {
			delete(e.contexts, id)
			removed++
		}
	}
	active := len(e.contexts)
	e.mu.Unlock()

	if removed > 0 {
		metrics.ActiveFallbackContexts.Set(float64(active))
		e.log.Warn("evicted stale fallback contexts", zap.Int("count", removed), zap.Duration("ttl", ttl))
	}
	return removed
}

// GetNextFallback records the failure on the request's context and decides
// which model to try next. Indices and retry counts only ever grow.
func (e *Engine) GetNextFallback(ctx context.Context, requestID string, signal domain.FailureSignal) domain.FallbackDecision {
	ctx, span := e.tracer.Start(ctx, "fallback.GetNextFallback", trace.WithAttributes(
		attribute.String("request_id", requestID),
		attribute.Int("status_code", signal.StatusCode),
		attribute.String("error_type", signal.ErrorType),
	))
	defer span.End()

	e.mu.RLock()
	fc, ok := e.contexts[requestID]
	var chainID string
	if ok {
		chainID = fc.ChainID
	}
	e.mu.RUnlock()
	if !ok {
		metrics.FallbackOutcomes.WithLabelValues("", "no_context").Inc()
		return domain.FallbackDecision{Reason: ReasonNoContext}
	}

	chain, found := e.lookup(ctx, chainID)
	if !found {
		metrics.FallbackOutcomes.WithLabelValues(chainID, "chain_not_found").Inc()
		return domain.FallbackDecision{Reason: ReasonChainNotFound}
	}
	span.SetAttributes(attribute.String("chain_id", chainID))

	e.mu.Lock()
	fc, ok = e.contexts[requestID]
	if !ok {
		e.mu.Unlock()
		metrics.FallbackOutcomes.WithLabelValues(chainID, "no_context").Inc()
		return domain.FallbackDecision{Reason: ReasonNoContext}
	}

	now := e.now()
	from := modelAt(chain, fc.CurrentIndex)
	fc.Errors = append(fc.Errors, domain.FallbackError{
		Model:      from,
		StatusCode: signal.StatusCode,
		ErrorType:  signal.ErrorType,
		Message:    signal.Message,
		Timestamp:  now,
	})
	fc.UpdatedAt = now

	var decision domain.FallbackDecision
	switch next := nextIndex(chain, fc.CurrentIndex); {
	case fc.RetryCount >= chain.MaxRetries:
		decision = domain.FallbackDecision{Exhausted: true, Reason: ReasonMaxRetries}
	case next >= len(chain.Models):
		decision = domain.FallbackDecision{Exhausted: true, Reason: ReasonExhausted}
	default:
		fc.CurrentIndex = next
		fc.RetryCount++
		m := chain.Models[next]
		decision = domain.FallbackDecision{ShouldFallback: true, NextModel: &m, NextIndex: next}
	}
	retries := fc.RetryCount
	e.mu.Unlock()

	event := &domain.FallbackEvent{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		ChainID:    chainID,
		FromModel:  from,
		StatusCode: signal.StatusCode,
		ErrorType:  signal.ErrorType,
		Exhausted:  decision.Exhausted,
		Reason:     decision.Reason,
		CreatedAt:  now,
	}
	if decision.NextModel != nil {
		event.ToModel = decision.NextModel.Model
	}
	e.sink.Record(event)

	result := "advanced"
	if decision.Exhausted {
		result = "exhausted"
		e.log.Warn("fallback chain exhausted",
			zap.String("request_id", requestID),
			zap.String("chain_id", chainID),
			zap.String("reason", decision.Reason),
			zap.Int("retry_count", retries),
		)
	} else {
		e.log.Info("falling back",
			zap.String("request_id", requestID),
			zap.String("chain_id", chainID),
			zap.String("from_model", from),
			zap.String("to_model", event.ToModel),
			zap.Int("retry_count", retries),
		)
	}
	metrics.FallbackOutcomes.WithLabelValues(chainID, result).Inc()
	span.SetAttributes(attribute.String("result", result))
	return decision
}

// nextIndex returns the index after current. Chains that preserve protocol
// skip models speaking a different protocol than the chain head.
func nextIndex(chain *domain.FallbackChain, current int) int {
	next := current + 1
	if !chain.PreserveProtocol || len(chain.Models) == 0 {
		return next
	}
	head := chain.Models[0].Protocol
	for next < len(chain.Models) && chain.Models[next].Protocol != head {
		next++
	}
	return next
}

func modelAt(chain *domain.FallbackChain, i int) string {
	if i < 0 || i >= len(chain.Models) {
		return ""
	}
	return chain.Models[i].Model
}

// GetCurrentModel returns the model the request is currently on.
func (e *Engine) GetCurrentModel(ctx context.Context, requestID string) (*domain.FallbackModel, bool) {
	fc, ok := e.GetContext(requestID)
	if !ok {
		return nil, false
	}
	chain, ok := e.lookup(ctx, fc.ChainID)
	if !ok || fc.CurrentIndex >= len(chain.Models) {
		return nil, false
	}
	m := chain.Models[fc.CurrentIndex]
	return &m, true
}

// GetFallbackStats summarizes the request's traversal so far.
func (e *Engine) GetFallbackStats(ctx context.Context, requestID string) (*domain.FallbackStats, bool) {
	fc, ok := e.GetContext(requestID)
	if !ok {
		return nil, false
	}
	stats := &domain.FallbackStats{
		RequestID:    fc.RequestID,
		ChainID:      fc.ChainID,
		CurrentIndex: fc.CurrentIndex,
		RetryCount:   fc.RetryCount,
		TotalErrors:  len(fc.Errors),
		Errors:       fc.Errors,
		Duration:     e.now().Sub(fc.CreatedAt),
	}
	if m, ok := e.GetCurrentModel(ctx, requestID); ok {
		stats.CurrentModel = m
	}
	return stats, true
}

// Session scopes a fallback context to one request. Release must be called
// when the request concludes.
type Session struct {
	engine    *Engine
	requestID string
	once      sync.Once
}

// Begin creates a context and returns a handle that clears it on Release.
func (e *Engine) Begin(ctx context.Context, requestID, chainID string) (*Session, error) {
	if _, err := e.CreateContext(ctx, requestID, chainID); err != nil {
		return nil, err
	}
	return &Session{engine: e, requestID: requestID}, nil
}

func (s *Session) RequestID() string { return s.requestID }

// Next reports a failure and returns the next decision.
func (s *Session) Next(ctx context.Context, signal domain.FailureSignal) domain.FallbackDecision {
	return s.engine.GetNextFallback(ctx, s.requestID, signal)
}

// Current returns the model the request is on.
func (s *Session) Current(ctx context.Context) (*domain.FallbackModel, bool) {
	return s.engine.GetCurrentModel(ctx, s.requestID)
}

// Release clears the context. It is safe to call more than once.
func (s *Session) Release() {
	s.once.Do(func() { s.engine.ClearContext(s.requestID) })
}
