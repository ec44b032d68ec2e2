// Package memory is the in-process Repository used when no database is
// configured. It is also the store of choice in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/store"
)

type pairKey struct {
	providerKeyID string
	model         string
}

// DefaultEventRetention bounds the fallback events kept in memory.
const DefaultEventRetention = 10000

// Option configures a Repository.
type Option func(*Repository)

// WithEventRetention keeps at most n fallback events, oldest dropped first.
func WithEventRetention(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.eventRetention = n
		}
	}
}

// Repository implements store.Repository on maps.
type Repository struct {
	mu           sync.RWMutex
	availability map[pairKey]domain.ModelAvailability
	credentials  map[string]domain.ProviderCredential
	chains       map[string]domain.FallbackChain
	capabilities map[string]domain.CapabilityRequirement
	configs      map[string]domain.RoutingConfig
	events       []domain.FallbackEvent

	eventRetention int
}

func New(opts ...Option) *Repository {
	r := &Repository{
		availability: make(map[pairKey]domain.ModelAvailability),
		credentials:  make(map[string]domain.ProviderCredential),
		chains:       make(map[string]domain.FallbackChain),
		capabilities: make(map[string]domain.CapabilityRequirement),
		configs:      make(map[string]domain.RoutingConfig),

		eventRetention: DefaultEventRetention,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) Availability() store.AvailabilityRepository { return availabilityRepo{r} }
func (r *Repository) Credentials() store.CredentialRepository { return credentialRepo{r} }
func (r *Repository) Chains() store.ChainRepository { return chainRepo{r} }
func (r *Repository) Capabilities() store.CapabilityRepository { return capabilityRepo{r} }
func (r *Repository) RoutingConfigs() store.RoutingConfigRepository { return routingConfigRepo{r} }
func (r *Repository) FallbackEvents() store.FallbackEventRepository { return fallbackEventRepo{r} }
func (r *Repository) Close() error { return nil }

// WithTx runs fn against the same repository; map writes are individually atomic.
func (r *Repository) WithTx(_ context.Context, fn func(repo store.Repository) error) error {
	return fn(r)
}

type availabilityRepo struct{ r *Repository }

func (a availabilityRepo) ListAvailable(_ context.Context, model string) ([]domain.ModelAvailability, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()

	var out []domain.ModelAvailability
	for k, v := range a.r.availability {
		if k.model == model && v.IsAvailable {
			out = append(out, v)
		}
	}
	// map iteration order is random; keep listings deterministic
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a availabilityRepo) Get(_ context.Context, providerKeyID, model string) (*domain.ModelAvailability, error) {
	a.r.mu.RLock()
	defer a.r.mu.RUnlock()

	v, ok := a.r.availability[pairKey{providerKeyID, model}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (a availabilityRepo) UpdateHealthScore(_ context.Context, providerKeyID, model string, score int) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()

	k := pairKey{providerKeyID, model}
	v, ok := a.r.availability[k]
	if !ok {
		return domain.ErrNotFound
	}
	v.HealthScore = score
	v.UpdatedAt = time.Now()
	a.r.availability[k] = v
	return nil
}

func (a availabilityRepo) Upsert(_ context.Context, v *domain.ModelAvailability) error {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()

	rec := *v
	rec.UpdatedAt = time.Now()
	a.r.availability[pairKey{v.ProviderKeyID, v.Model}] = rec
	return nil
}

type credentialRepo struct{ r *Repository }

func (c credentialRepo) ListByIDs(_ context.Context, ids []string) ([]domain.ProviderCredential, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()

	out := make([]domain.ProviderCredential, 0, len(ids))
	for _, id := range ids {
		if v, ok := c.r.credentials[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c credentialRepo) Upsert(_ context.Context, v *domain.ProviderCredential) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.credentials[v.ID] = *v
	return nil
}

type chainRepo struct{ r *Repository }

func (c chainRepo) Get(_ context.Context, chainID string) (*domain.FallbackChain, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()

	v, ok := c.r.chains[chainID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v.Clone(), nil
}

func (c chainRepo) ListActive(_ context.Context) ([]domain.FallbackChain, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()

	out := make([]domain.FallbackChain, 0, len(c.r.chains))
	for _, v := range c.r.chains {
		out = append(out, *v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out, nil
}

func (c chainRepo) Upsert(_ context.Context, v *domain.FallbackChain) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.chains[v.ChainID] = *v.Clone()
	return nil
}

type capabilityRepo struct{ r *Repository }

func (c capabilityRepo) ListActive(_ context.Context) ([]domain.CapabilityRequirement, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()

	out := make([]domain.CapabilityRequirement, 0, len(c.r.capabilities))
	for _, v := range c.r.capabilities {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (c capabilityRepo) Upsert(_ context.Context, v *domain.CapabilityRequirement) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.capabilities[v.TagID] = *v
	return nil
}

type routingConfigRepo struct{ r *Repository }

func (c routingConfigRepo) GetByTenant(_ context.Context, tenantID string) (*domain.RoutingConfig, error) {
	c.r.mu.RLock()
	defer c.r.mu.RUnlock()

	v, ok := c.r.configs[tenantID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (c routingConfigRepo) Upsert(_ context.Context, v *domain.RoutingConfig) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.configs[v.TenantID] = *v
	return nil
}

type fallbackEventRepo struct{ r *Repository }

func (f fallbackEventRepo) Log(_ context.Context, e *domain.FallbackEvent) error {
	f.r.mu.Lock()
	defer f.r.mu.Unlock()
	f.r.events = append(f.r.events, *e)
	if n := len(f.r.events) - f.r.eventRetention; n > 0 {
		f.r.events = f.r.events[n:]
	}
	return nil
}

func (f fallbackEventRepo) GetRecent(_ context.Context, chainID string, limit int) ([]domain.FallbackEvent, error) {
	f.r.mu.RLock()
	defer f.r.mu.RUnlock()

	var out []domain.FallbackEvent
	for i := len(f.r.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if f.r.events[i].ChainID == chainID {
			out = append(out, f.r.events[i])
		}
	}
	return out, nil
}
