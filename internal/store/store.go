package store

import (
	"context"

	"github.com/nulzo/route-engine/internal/core/domain"
)

// Repository is the main contract for the data layer.
type Repository interface {
	Availability() AvailabilityRepository
	Credentials() CredentialRepository
	Chains() ChainRepository
	Capabilities() CapabilityRepository
	RoutingConfigs() RoutingConfigRepository
	FallbackEvents() FallbackEventRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type AvailabilityRepository interface {
	// ListAvailable returns every record for model with is_available set.
	ListAvailable(ctx context.Context, model string) ([]domain.ModelAvailability, error)
	// Get returns the record for a (provider key, model) pair or domain.ErrNotFound.
	Get(ctx context.Context, providerKeyID, model string) (*domain.ModelAvailability, error)
	// UpdateHealthScore persists a new score for the pair.
	UpdateHealthScore(ctx context.Context, providerKeyID, model string, score int) error
	// Upsert creates or replaces a record.
	Upsert(ctx context.Context, a *domain.ModelAvailability) error
}

type CredentialRepository interface {
	// ListByIDs fetches the static metadata of many credentials in one round trip.
	// Unknown ids are silently skipped.
	ListByIDs(ctx context.Context, ids []string) ([]domain.ProviderCredential, error)
	Upsert(ctx context.Context, c *domain.ProviderCredential) error
}

type ChainRepository interface {
	// Get returns an active chain or domain.ErrNotFound.
	Get(ctx context.Context, chainID string) (*domain.FallbackChain, error)
	// ListActive returns every active chain.
	ListActive(ctx context.Context) ([]domain.FallbackChain, error)
	Upsert(ctx context.Context, c *domain.FallbackChain) error
}

type CapabilityRepository interface {
	// ListActive returns the externally configured capability tags.
	ListActive(ctx context.Context) ([]domain.CapabilityRequirement, error)
	Upsert(ctx context.Context, r *domain.CapabilityRequirement) error
}

type RoutingConfigRepository interface {
	// GetByTenant returns the tenant's routing config or domain.ErrNotFound.
	GetByTenant(ctx context.Context, tenantID string) (*domain.RoutingConfig, error)
	Upsert(ctx context.Context, c *domain.RoutingConfig) error
}

type FallbackEventRepository interface {
	// Log stores a fallback transition.
	Log(ctx context.Context, event *domain.FallbackEvent) error
	// GetRecent returns the last N events of a chain, newest first.
	GetRecent(ctx context.Context, chainID string, limit int) ([]domain.FallbackEvent, error)
}
