// Package route turns capability requirements into a routing decision.
package route

import (
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/platform/metrics"
	"go.uber.org/zap"
)

// NativeVendor is the vendor whose native protocol carries extended thinking
// and cache control.
const NativeVendor = "anthropic"

type Selector struct {
	defaultModel string
	log          *zap.Logger
}

func NewSelector(defaultModel string, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Selector{defaultModel: defaultModel, log: log.Named("route")}
}

// SelectRoute combines requirements, the tenant and the requested model into a
// decision. requirements is expected highest priority first.
func (s *Selector) SelectRoute(requirements []domain.CapabilityRequirement, tenant domain.TenantContext, requestedModel string) domain.RouteDecision {
	decision := domain.RouteDecision{
		Protocol: domain.ProtocolOpenAI,
		Model:    s.fallbackModel(tenant, requestedModel),
		Features: map[string]bool{},
	}
	capability := "none"

	if len(requirements) > 0 {
		primary := requirements[0]
		capability = primary.TagID

		switch {
		case primary.RequiresExtendedThinking:
			decision.Protocol = domain.ProtocolAnthropic
			decision.Vendor = NativeVendor
			decision.Features[domain.FeatureExtendedThinking] = true
			if requestedModel == "" && len(primary.RequiredModels) > 0 {
				decision.Model = primary.RequiredModels[0]
			}
		case primary.RequiresCacheControl:
			decision.Protocol = domain.ProtocolAnthropic
			decision.Vendor = NativeVendor
			decision.Features[domain.FeatureCacheControl] = true
		case primary.RequiredProtocol != "":
			decision.Protocol = primary.RequiredProtocol
		}

		for _, r := range requirements {
			if r.RequiresVision {
				decision.Features[domain.FeatureVision] = true
				if requestedModel == "" && decision.Vendor == "" && len(r.RequiredModels) > 0 {
					decision.Model = r.RequiredModels[0]
				}
				break
			}
		}

		s.checkSkills(requirements, tenant)
	}

	if decision.Vendor == "" {
		decision.Vendor = InferVendor(decision.Model)
	}

	if cfg := tenant.RoutingConfig; cfg != nil {
		decision.FallbackChainID = cfg.FallbackChainID
		decision.CostStrategyID = cfg.CostStrategyID
	}

	metrics.RouteDecisions.WithLabelValues(string(decision.Protocol), decision.Vendor, capability).Inc()
	s.log.Debug("route selected",
		zap.String("tenant_id", tenant.TenantID),
		zap.String("capability", capability),
		zap.String("protocol", string(decision.Protocol)),
		zap.String("vendor", decision.Vendor),
		zap.String("model", decision.Model),
	)
	return decision
}

// fallbackModel picks the model used when no requirement chooses one.
func (s *Selector) fallbackModel(tenant domain.TenantContext, requestedModel string) string {
	if requestedModel != "" {
		return requestedModel
	}
	if cfg := tenant.RoutingConfig; cfg != nil && cfg.DefaultModel != "" {
		return cfg.DefaultModel
	}
	return s.defaultModel
}

// checkSkills records skills the tenant lacks. It never blocks routing.
func (s *Selector) checkSkills(requirements []domain.CapabilityRequirement, tenant domain.TenantContext) {
	for _, r := range requirements {
		var missing []string
		for _, skill := range r.RequiredSkills {
			if !tenant.HasSkill(skill) {
				missing = append(missing, skill)
				metrics.UnsatisfiedSkills.WithLabelValues(r.TagID, skill).Inc()
			}
		}
		if len(missing) > 0 {
			s.log.Warn("capability skills not installed",
				zap.String("tenant_id", tenant.TenantID),
				zap.String("capability", r.TagID),
				zap.Strings("missing_skills", missing),
			)
		}
	}
}
