package fallback

import "github.com/nulzo/route-engine/internal/core/domain"

// Built-in chain ids.
const (
	ChainDefault          = "default"
	ChainCostOptimized    = "cost-optimized"
	ChainHighAvailability = "high-availability"
	ChainAnthropicNative  = "anthropic-native"
)

var (
	defaultTriggerStatusCodes = []int{429, 500, 502, 503, 504}
	defaultTriggerErrorTypes  = []string{"timeout", "rate_limit_error", "overloaded_error", "api_error", "connection_error"}
)

func model(vendor, name string, protocol domain.Protocol) domain.FallbackModel {
	return domain.FallbackModel{Vendor: vendor, Model: name, Protocol: protocol}
}

// DefaultChains returns the chains every engine starts with.
func DefaultChains() []domain.FallbackChain {
	return []domain.FallbackChain{
		{
			ChainID: ChainDefault,
			Name:    "Default",
			Models: []domain.FallbackModel{
				model("anthropic", "claude-sonnet-4-20250514", domain.ProtocolAnthropic),
				model("openai", "gpt-4o", domain.ProtocolOpenAI),
				model("google", "gemini-2.0-flash", domain.ProtocolGoogle),
				model("deepseek", "deepseek-chat", domain.ProtocolOpenAI),
			},
			TriggerStatusCodes: defaultTriggerStatusCodes,
			TriggerErrorTypes:  defaultTriggerErrorTypes,
			TriggerTimeoutMs:   60000,
			MaxRetries:         3,
			RetryDelayMs:       1000,
		},
		{
			ChainID: ChainCostOptimized,
			Name:    "Cost Optimized",
			Models: []domain.FallbackModel{
				model("deepseek", "deepseek-chat", domain.ProtocolOpenAI),
				model("openai", "gpt-4o-mini", domain.ProtocolOpenAI),
				model("google", "gemini-2.0-flash", domain.ProtocolGoogle),
			},
			TriggerStatusCodes: defaultTriggerStatusCodes,
			TriggerErrorTypes:  defaultTriggerErrorTypes,
			TriggerTimeoutMs:   30000,
			MaxRetries:         3,
			RetryDelayMs:       500,
		},
		{
			ChainID: ChainHighAvailability,
			Name:    "High Availability",
			Models: []domain.FallbackModel{
				model("openai", "gpt-4o", domain.ProtocolOpenAI),
				model("anthropic", "claude-sonnet-4-20250514", domain.ProtocolAnthropic),
				model("google", "gemini-2.0-flash", domain.ProtocolGoogle),
				model("deepseek", "deepseek-chat", domain.ProtocolOpenAI),
				model("dashscope", "qwen-max", domain.ProtocolOpenAI),
			},
			TriggerStatusCodes: []int{408, 429, 500, 502, 503, 504},
			TriggerErrorTypes:  defaultTriggerErrorTypes,
			TriggerTimeoutMs:   30000,
			MaxRetries:         4,
			RetryDelayMs:       200,
		},
		{
			ChainID: ChainAnthropicNative,
			Name:    "Anthropic Native",
			Models: []domain.FallbackModel{
				model("anthropic", "claude-sonnet-4-20250514", domain.ProtocolAnthropic),
				model("anthropic", "claude-3-7-sonnet-20250219", domain.ProtocolAnthropic),
				model("anthropic", "claude-3-5-haiku-20241022", domain.ProtocolAnthropic),
			},
			TriggerStatusCodes: defaultTriggerStatusCodes,
			TriggerErrorTypes:  defaultTriggerErrorTypes,
			TriggerTimeoutMs:   90000,
			MaxRetries:         2,
			RetryDelayMs:       1000,
			PreserveProtocol:   true,
		},
	}
}
