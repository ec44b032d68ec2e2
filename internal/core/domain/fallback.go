package domain

import (
	"fmt"
	"time"
)

// FallbackModel is one candidate in a fallback chain.
type FallbackModel struct {
	Vendor      string          `json:"vendor" yaml:"vendor"`
	Model       string          `json:"model" yaml:"model"`
	Protocol    Protocol        `json:"protocol" yaml:"protocol"`
	Features    map[string]bool `json:"features,omitempty" yaml:"features"`
	CatalogRef  string          `json:"catalog_ref,omitempty" yaml:"catalog_ref"`
	DisplayName string          `json:"display_name,omitempty" yaml:"display_name"`
}

// FallbackChain is an ordered list of candidates tried in sequence on failure.
type FallbackChain struct {
	ChainID            string          `json:"chain_id" yaml:"chain_id"`
	Name               string          `json:"name" yaml:"name"`
	Models             []FallbackModel `json:"models" yaml:"models"`
	TriggerStatusCodes []int           `json:"trigger_status_codes" yaml:"trigger_status_codes"`
	TriggerErrorTypes  []string        `json:"trigger_error_types" yaml:"trigger_error_types"`
	TriggerTimeoutMs   int             `json:"trigger_timeout_ms" yaml:"trigger_timeout_ms"`
	MaxRetries         int             `json:"max_retries" yaml:"max_retries"`
	RetryDelayMs       int             `json:"retry_delay_ms" yaml:"retry_delay_ms"`
	PreserveProtocol   bool            `json:"preserve_protocol" yaml:"preserve_protocol"`
}

// Validate checks the structural invariants of a chain.
func (c *FallbackChain) Validate() error {
	if c.ChainID == "" {
		return fmt.Errorf("fallback chain: empty chain id")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("fallback chain %q: %w", c.ChainID, ErrEmptyChain)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("fallback chain %q: negative max retries", c.ChainID)
	}
	return nil
}

// TriggersOnStatus reports whether code is one of the chain's trigger codes.
func (c *FallbackChain) TriggersOnStatus(code int) bool {
	for _, s := range c.TriggerStatusCodes {
		if s == code {
			return true
		}
	}
	return false
}

// TriggersOnErrorType reports whether errType is one of the chain's trigger types.
func (c *FallbackChain) TriggersOnErrorType(errType string) bool {
	for _, t := range c.TriggerErrorTypes {
		if t == errType {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can never mutate registry state.
func (c *FallbackChain) Clone() *FallbackChain {
	if c == nil {
		return nil
	}
	out := *c
	out.Models = make([]FallbackModel, len(c.Models))
	for i, m := range c.Models {
		out.Models[i] = m.clone()
	}
	out.TriggerStatusCodes = append([]int(nil), c.TriggerStatusCodes...)
	out.TriggerErrorTypes = append([]string(nil), c.TriggerErrorTypes...)
	return &out
}

func (m FallbackModel) clone() FallbackModel {
	if m.Features != nil {
		f := make(map[string]bool, len(m.Features))
		for k, v := range m.Features {
			f[k] = v
		}
		m.Features = f
	}
	return m
}

// FailureSignal describes a failed upstream call as reported by the executor.
// Zero values mean "not reported".
type FailureSignal struct {
	StatusCode     int    `json:"status_code,omitempty"`
	ErrorType      string `json:"error_type,omitempty"`
	Message        string `json:"message,omitempty"`
	ResponseTimeMs int    `json:"response_time_ms,omitempty"`
}

// FallbackError is one entry of a context's error history.
type FallbackError struct {
	Model      string    `json:"model"`
	StatusCode int       `json:"status_code,omitempty"`
	ErrorType  string    `json:"error_type,omitempty"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// FallbackContext is the per-request traversal state of a chain.
type FallbackContext struct {
	RequestID    string          `json:"request_id"`
	ChainID      string          `json:"chain_id"`
	CurrentIndex int             `json:"current_index"`
	RetryCount   int             `json:"retry_count"`
	Errors       []FallbackError `json:"errors"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone returns a copy with its own error slice.
func (c *FallbackContext) Clone() *FallbackContext {
	if c == nil {
		return nil
	}
	out := *c
	out.Errors = append([]FallbackError(nil), c.Errors...)
	return &out
}

// FallbackDecision is the answer to "what should I try next".
type FallbackDecision struct {
	ShouldFallback bool           `json:"should_fallback"`
	NextModel      *FallbackModel `json:"next_model,omitempty"`
	NextIndex      int            `json:"next_index,omitempty"`
	Exhausted      bool           `json:"exhausted,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

// FallbackStats is a read-only summary of a context.
type FallbackStats struct {
	RequestID    string          `json:"request_id"`
	ChainID      string          `json:"chain_id"`
	CurrentIndex int             `json:"current_index"`
	RetryCount   int             `json:"retry_count"`
	TotalErrors  int             `json:"total_errors"`
	Errors       []FallbackError `json:"errors"`
	CurrentModel *FallbackModel  `json:"current_model,omitempty"`
	Duration     time.Duration   `json:"duration"`
}

// CandidateModel is an input to dynamic chain construction.
type CandidateModel struct {
	Model     string   `json:"model" binding:"required"`
	Vendor    string   `json:"vendor" binding:"required"`
	Protocol  Protocol `json:"protocol,omitempty" binding:"protocol"`
	IsPrimary bool     `json:"is_primary,omitempty"`
}

// FallbackEvent records one fallback transition for later analysis.
type FallbackEvent struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	ChainID    string    `json:"chain_id"`
	FromModel  string    `json:"from_model"`
	ToModel    string    `json:"to_model,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	ErrorType  string    `json:"error_type,omitempty"`
	Exhausted  bool      `json:"exhausted"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
