package domain

import (
	"strings"
	"time"
)

// Protocol is the wire protocol an executor speaks to a provider.
type Protocol string

const (
	// ProtocolOpenAI is the generic, cross-vendor chat completions protocol.
	ProtocolOpenAI Protocol = "openai"
	// ProtocolAnthropic is the vendor-native messages protocol. It is the only
	// protocol that carries extended thinking and cache control directives.
	ProtocolAnthropic Protocol = "anthropic"
	ProtocolGoogle    Protocol = "google"
)

// Valid reports whether p is one of the known protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolOpenAI, ProtocolAnthropic, ProtocolGoogle:
		return true
	}
	return false
}

// Feature flags carried on a RouteDecision.
const (
	FeatureExtendedThinking = "extendedThinking"
	FeatureCacheControl     = "cacheControl"
	FeatureVision           = "vision"
)

// CapabilityRequirement is a tagged need a request may imply.
type CapabilityRequirement struct {
	TagID                    string   `json:"tag_id" yaml:"tag_id"`
	Name                     string   `json:"name" yaml:"name"`
	Category                 string   `json:"category" yaml:"category"`
	Priority                 int      `json:"priority" yaml:"priority"`
	RequiredProtocol         Protocol `json:"required_protocol,omitempty" yaml:"required_protocol"`
	RequiredSkills           []string `json:"required_skills,omitempty" yaml:"required_skills"`
	RequiredModels           []string `json:"required_models,omitempty" yaml:"required_models"`
	RequiresExtendedThinking bool     `json:"requires_extended_thinking" yaml:"requires_extended_thinking"`
	RequiresCacheControl     bool     `json:"requires_cache_control" yaml:"requires_cache_control"`
	RequiresVision           bool     `json:"requires_vision" yaml:"requires_vision"`
}

// RouteDecision is the outcome of route selection. It is produced per request
// and never persisted.
type RouteDecision struct {
	Protocol        Protocol        `json:"protocol"`
	Vendor          string          `json:"vendor"`
	Model           string          `json:"model"`
	Features        map[string]bool `json:"features"`
	FallbackChainID string          `json:"fallback_chain_id,omitempty"`
	CostStrategyID  string          `json:"cost_strategy_id,omitempty"`
}

// RoutingConfig is the per-tenant routing configuration.
type RoutingConfig struct {
	TenantID        string `json:"tenant_id"`
	DefaultModel    string `json:"default_model,omitempty"`
	FallbackChainID string `json:"fallback_chain_id,omitempty"`
	CostStrategyID  string `json:"cost_strategy_id,omitempty"`
}

// TenantContext carries what route selection needs to know about the caller.
type TenantContext struct {
	TenantID        string
	InstalledSkills []string
	RoutingConfig   *RoutingConfig
}

// HasSkill reports whether the tenant has the named skill installed.
func (t TenantContext) HasSkill(skill string) bool {
	for _, s := range t.InstalledSkills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}

// ModelAvailability pairs a model with a provider credential that can serve it.
type ModelAvailability struct {
	ID             string    `json:"id"`
	ProviderKeyID  string    `json:"provider_key_id"`
	Model          string    `json:"model"`
	IsAvailable    bool      `json:"is_available"`
	VendorPriority int       `json:"vendor_priority"`
	HealthScore    int       `json:"health_score"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProviderCredential is the static part of a stored provider key.
type ProviderCredential struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Vendor  string   `json:"vendor"`
	APIType Protocol `json:"api_type"`
	BaseURL string   `json:"base_url"`
}

// ResolvedModel is a concrete provider instance able to serve a model.
type ResolvedModel struct {
	AvailabilityID string   `json:"availability_id"`
	ProviderKeyID  string   `json:"provider_key_id"`
	Model          string   `json:"model"`
	Vendor         string   `json:"vendor"`
	APIType        Protocol `json:"api_type"`
	BaseURL        string   `json:"base_url"`
	VendorPriority int      `json:"vendor_priority"`
	HealthScore    int      `json:"health_score"`
}

// ResolveOptions narrows vendor resolution.
type ResolveOptions struct {
	PreferredVendor       string
	RequiredProtocol      Protocol
	ExcludeProviderKeyIDs map[string]struct{}
	MinHealthScore        int
}

// Excludes reports whether the provider key is excluded.
func (o ResolveOptions) Excludes(providerKeyID string) bool {
	_, ok := o.ExcludeProviderKeyIDs[providerKeyID]
	return ok
}
