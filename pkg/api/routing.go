package api

import (
	"encoding/json"

	"github.com/nulzo/route-engine/internal/core/domain"
)

// RouteRequest asks the engine for a routing decision. Request carries the
// chat body exactly as the client sent it.
type RouteRequest struct {
	TenantID        string          `json:"tenant_id,omitempty"`
	InstalledSkills []string        `json:"installed_skills,omitempty"`
	Hint            string          `json:"hint,omitempty"`
	Model           string          `json:"model,omitempty"`
	Request         json.RawMessage `json:"request" binding:"required"`
}

type ParseCapabilitiesRequest struct {
	Hint    string          `json:"hint,omitempty"`
	Request json.RawMessage `json:"request" binding:"required"`
}

// HealthReport is the outcome of one upstream call.
type HealthReport struct {
	ProviderKeyID string `json:"provider_key_id" binding:"required"`
	Model         string `json:"model" binding:"required"`
	Success       *bool  `json:"success" binding:"required"`
}

type InvalidateCacheRequest struct {
	// Model limits invalidation to credentials serving it. Empty clears all.
	Model string `json:"model,omitempty"`
}

type CreateContextRequest struct {
	RequestID string `json:"request_id" binding:"required,max=256"`
	ChainID   string `json:"chain_id" binding:"required"`
}

// FailureReport describes a failed call. Zero values mean "not reported".
type FailureReport struct {
	StatusCode     int    `json:"status_code,omitempty" binding:"omitempty,min=100,max=599"`
	ErrorType      string `json:"error_type,omitempty"`
	Message        string `json:"message,omitempty" binding:"max=2048"`
	ResponseTimeMs int    `json:"response_time_ms,omitempty" binding:"min=0"`
}

func (f FailureReport) Signal() domain.FailureSignal {
	return domain.FailureSignal{
		StatusCode:     f.StatusCode,
		ErrorType:      f.ErrorType,
		Message:        f.Message,
		ResponseTimeMs: f.ResponseTimeMs,
	}
}

type DynamicChainRequest struct {
	TenantID string                  `json:"tenant_id" binding:"required"`
	ChainID  string                  `json:"chain_id,omitempty"`
	Models   []domain.CandidateModel `json:"models" binding:"required,min=1,dive"`
	// Register stores the chain under bot-<tenant_id> instead of only building it.
	Register bool `json:"register,omitempty"`
}

type EvaluateResponse struct {
	ChainID       string `json:"chain_id"`
	ShouldTrigger bool   `json:"should_trigger"`
}

type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

func List[T any](data []T) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Object: "list", Data: data}
}
