package model

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/nulzo/route-engine/internal/core/domain"
)

// ProviderCredential is a stored upstream API key and endpoint.
type ProviderCredential struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Vendor    string    `db:"vendor" json:"vendor"`
	APIType   string    `db:"api_type" json:"api_type"`
	BaseURL   string    `db:"base_url" json:"base_url"`
	APIKeyEnc string    `db:"api_key_enc" json:"-"` // Encrypted, never read by the engine
	IsEnabled bool      `db:"is_enabled" json:"is_enabled"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (c ProviderCredential) ToDomain() domain.ProviderCredential {
	return domain.ProviderCredential{
		ID:      c.ID,
		Name:    c.Name,
		Vendor:  c.Vendor,
		APIType: domain.Protocol(c.APIType),
		BaseURL: c.BaseURL,
	}
}

// ModelAvailability marks a (credential, model) pair as usable and carries its health.
type ModelAvailability struct {
	ID             string    `db:"id" json:"id"`
	ProviderKeyID  string    `db:"provider_key_id" json:"provider_key_id"`
	Model          string    `db:"model" json:"model"`
	IsAvailable    bool      `db:"is_available" json:"is_available"`
	VendorPriority int       `db:"vendor_priority" json:"vendor_priority"`
	HealthScore    int       `db:"health_score" json:"health_score"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

func (a ModelAvailability) ToDomain() domain.ModelAvailability {
	return domain.ModelAvailability{
		ID:             a.ID,
		ProviderKeyID:  a.ProviderKeyID,
		Model:          a.Model,
		IsAvailable:    a.IsAvailable,
		VendorPriority: a.VendorPriority,
		HealthScore:    a.HealthScore,
		UpdatedAt:      a.UpdatedAt,
	}
}

// FallbackChain stores list-valued columns as JSON text.
type FallbackChain struct {
	ChainID            string    `db:"chain_id" json:"chain_id"`
	Name               string    `db:"name" json:"name"`
	ModelsJSON         string    `db:"models_json" json:"models_json"`
	TriggerStatusJSON  string    `db:"trigger_status_codes_json" json:"trigger_status_codes_json"`
	TriggerErrorsJSON  string    `db:"trigger_error_types_json" json:"trigger_error_types_json"`
	TriggerTimeoutMs   int       `db:"trigger_timeout_ms" json:"trigger_timeout_ms"`
	MaxRetries         int       `db:"max_retries" json:"max_retries"`
	RetryDelayMs       int       `db:"retry_delay_ms" json:"retry_delay_ms"`
	PreserveProtocol   bool      `db:"preserve_protocol" json:"preserve_protocol"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

func (c FallbackChain) ToDomain() (domain.FallbackChain, error) {
	out := domain.FallbackChain{
		ChainID:          c.ChainID,
		Name:             c.Name,
		TriggerTimeoutMs: c.TriggerTimeoutMs,
		MaxRetries:       c.MaxRetries,
		RetryDelayMs:     c.RetryDelayMs,
		PreserveProtocol: c.PreserveProtocol,
	}
	if err := unmarshalList(c.ModelsJSON, &out.Models); err != nil {
		return out, err
	}
	if err := unmarshalList(c.TriggerStatusJSON, &out.TriggerStatusCodes); err != nil {
		return out, err
	}
	if err := unmarshalList(c.TriggerErrorsJSON, &out.TriggerErrorTypes); err != nil {
		return out, err
	}
	return out, nil
}

func FallbackChainFromDomain(c *domain.FallbackChain) (FallbackChain, error) {
	models, err := json.Marshal(c.Models)
	if err != nil {
		return FallbackChain{}, err
	}
	codes, err := json.Marshal(c.TriggerStatusCodes)
	if err != nil {
		return FallbackChain{}, err
	}
	types, err := json.Marshal(c.TriggerErrorTypes)
	if err != nil {
		return FallbackChain{}, err
	}
	now := time.Now()
	return FallbackChain{
		ChainID:           c.ChainID,
		Name:              c.Name,
		ModelsJSON:        string(models),
		TriggerStatusJSON: string(codes),
		TriggerErrorsJSON: string(types),
		TriggerTimeoutMs:  c.TriggerTimeoutMs,
		MaxRetries:        c.MaxRetries,
		RetryDelayMs:      c.RetryDelayMs,
		PreserveProtocol:  c.PreserveProtocol,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CapabilityTag is an externally configured capability requirement.
type CapabilityTag struct {
	TagID                    string `db:"tag_id" json:"tag_id"`
	Name                     string `db:"name" json:"name"`
	Category                 string `db:"category" json:"category"`
	Priority                 int    `db:"priority" json:"priority"`
	RequiredProtocol         string `db:"required_protocol" json:"required_protocol"`
	RequiredSkillsJSON       string `db:"required_skills_json" json:"required_skills_json"`
	RequiredModelsJSON       string `db:"required_models_json" json:"required_models_json"`
	RequiresExtendedThinking bool   `db:"requires_extended_thinking" json:"requires_extended_thinking"`
	RequiresCacheControl     bool   `db:"requires_cache_control" json:"requires_cache_control"`
	RequiresVision           bool   `db:"requires_vision" json:"requires_vision"`
	IsActive                 bool   `db:"is_active" json:"is_active"`
}

func (t CapabilityTag) ToDomain() (domain.CapabilityRequirement, error) {
	out := domain.CapabilityRequirement{
		TagID:                    t.TagID,
		Name:                     t.Name,
		Category:                 t.Category,
		Priority:                 t.Priority,
		RequiredProtocol:         domain.Protocol(t.RequiredProtocol),
		RequiresExtendedThinking: t.RequiresExtendedThinking,
		RequiresCacheControl:     t.RequiresCacheControl,
		RequiresVision:           t.RequiresVision,
	}
	if err := unmarshalList(t.RequiredSkillsJSON, &out.RequiredSkills); err != nil {
		return out, err
	}
	if err := unmarshalList(t.RequiredModelsJSON, &out.RequiredModels); err != nil {
		return out, err
	}
	return out, nil
}

func CapabilityTagFromDomain(r *domain.CapabilityRequirement) (CapabilityTag, error) {
	skills, err := json.Marshal(r.RequiredSkills)
	if err != nil {
		return CapabilityTag{}, err
	}
	models, err := json.Marshal(r.RequiredModels)
	if err != nil {
		return CapabilityTag{}, err
	}
	return CapabilityTag{
		TagID:                    r.TagID,
		Name:                     r.Name,
		Category:                 r.Category,
		Priority:                 r.Priority,
		RequiredProtocol:         string(r.RequiredProtocol),
		RequiredSkillsJSON:       string(skills),
		RequiredModelsJSON:       string(models),
		RequiresExtendedThinking: r.RequiresExtendedThinking,
		RequiresCacheControl:     r.RequiresCacheControl,
		RequiresVision:           r.RequiresVision,
		IsActive:                 true,
	}, nil
}

// RoutingConfig is the tenant-level routing configuration row.
type RoutingConfig struct {
	TenantID        string         `db:"tenant_id" json:"tenant_id"`
	DefaultModel    sql.NullString `db:"default_model" json:"default_model,omitempty"`
	FallbackChainID sql.NullString `db:"fallback_chain_id" json:"fallback_chain_id,omitempty"`
	CostStrategyID  sql.NullString `db:"cost_strategy_id" json:"cost_strategy_id,omitempty"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

func (c RoutingConfig) ToDomain() domain.RoutingConfig {
	return domain.RoutingConfig{
		TenantID:        c.TenantID,
		DefaultModel:    c.DefaultModel.String,
		FallbackChainID: c.FallbackChainID.String,
		CostStrategyID:  c.CostStrategyID.String,
	}
}

func RoutingConfigFromDomain(c *domain.RoutingConfig) RoutingConfig {
	return RoutingConfig{
		TenantID:        c.TenantID,
		DefaultModel:    nullString(c.DefaultModel),
		FallbackChainID: nullString(c.FallbackChainID),
		CostStrategyID:  nullString(c.CostStrategyID),
		UpdatedAt:       time.Now(),
	}
}

// FallbackEvent is one persisted fallback transition.
type FallbackEvent struct {
	ID         string         `db:"id" json:"id"`
	RequestID  string         `db:"request_id" json:"request_id"`
	ChainID    string         `db:"chain_id" json:"chain_id"`
	FromModel  string         `db:"from_model" json:"from_model"`
	ToModel    sql.NullString `db:"to_model" json:"to_model,omitempty"`
	StatusCode sql.NullInt64  `db:"status_code" json:"status_code,omitempty"`
	ErrorType  sql.NullString `db:"error_type" json:"error_type,omitempty"`
	Exhausted  bool           `db:"exhausted" json:"exhausted"`
	Reason     sql.NullString `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

func (e FallbackEvent) ToDomain() domain.FallbackEvent {
	return domain.FallbackEvent{
		ID:         e.ID,
		RequestID:  e.RequestID,
		ChainID:    e.ChainID,
		FromModel:  e.FromModel,
		ToModel:    e.ToModel.String,
		StatusCode: int(e.StatusCode.Int64),
		ErrorType:  e.ErrorType.String,
		Exhausted:  e.Exhausted,
		Reason:     e.Reason.String,
		CreatedAt:  e.CreatedAt,
	}
}

func FallbackEventFromDomain(e *domain.FallbackEvent) FallbackEvent {
	out := FallbackEvent{
		ID:        e.ID,
		RequestID: e.RequestID,
		ChainID:   e.ChainID,
		FromModel: e.FromModel,
		ToModel:   nullString(e.ToModel),
		ErrorType: nullString(e.ErrorType),
		Exhausted: e.Exhausted,
		Reason:    nullString(e.Reason),
		CreatedAt: e.CreatedAt,
	}
	if e.StatusCode != 0 {
		out.StatusCode = sql.NullInt64{Int64: int64(e.StatusCode), Valid: true}
	}
	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func unmarshalList(raw string, dest interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}
