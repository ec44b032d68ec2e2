package capability

import "github.com/nulzo/route-engine/internal/core/domain"

// Tag ids of the built-in requirements.
const (
	TagDeepReasoning = "deep-reasoning"
	TagWebSearch     = "web-search"
	TagCodeExecution = "code-execution"
	TagCostOptimized = "cost-optimized"
	TagVision        = "vision"
)

// DefaultRequirements returns the built-in requirement table. A fresh slice is
// returned on every call.
func DefaultRequirements() []domain.CapabilityRequirement {
	return []domain.CapabilityRequirement{
		{
			TagID:                    TagDeepReasoning,
			Name:                     "Deep Reasoning",
			Category:                 "reasoning",
			Priority:                 100,
			RequiredProtocol:         domain.ProtocolAnthropic,
			RequiredModels:           []string{"claude-sonnet-4-20250514", "claude-opus-4-20250514", "claude-3-7-sonnet-20250219"},
			RequiresExtendedThinking: true,
		},
		{
			TagID:          TagWebSearch,
			Name:           "Web Search",
			Category:       "tool",
			Priority:       80,
			RequiredSkills: []string{"web-search"},
		},
		{
			TagID:          TagCodeExecution,
			Name:           "Code Execution",
			Category:       "tool",
			Priority:       70,
			RequiredSkills: []string{"code-execution"},
		},
		{
			TagID:                TagCostOptimized,
			Name:                 "Cost Optimized",
			Category:             "cost",
			Priority:             60,
			RequiredProtocol:     domain.ProtocolAnthropic,
			RequiresCacheControl: true,
		},
		{
			TagID:          TagVision,
			Name:           "Vision",
			Category:       "modality",
			Priority:       50,
			RequiredModels: []string{"gpt-4o", "claude-sonnet-4-20250514", "gemini-2.0-flash"},
			RequiresVision: true,
		},
	}
}
