package fallback

import (
	"fmt"
	"strings"

	"github.com/nulzo/route-engine/internal/core/domain"
)

const (
	// DynamicChainCap is the most models a tenant chain holds.
	DynamicChainCap = 4
	// DynamicMaxRetries caps retries on a tenant chain.
	DynamicMaxRetries = 3
)

// BotChainID is the id under which a tenant's dynamic chain is registered.
func BotChainID(tenantID string) string {
	return "bot-" + tenantID
}

// protocolFor guesses the wire protocol of a vendor when the caller gave none.
func protocolFor(vendor string) domain.Protocol {
	switch strings.ToLower(vendor) {
	case "anthropic":
		return domain.ProtocolAnthropic
	case "google":
		return domain.ProtocolGoogle
	default:
		return domain.ProtocolOpenAI
	}
}

// buildDynamicChain orders available models into a chain: the primary first,
// then one model per vendor not yet present, then whatever is left. template
// supplies the trigger configuration.
func buildDynamicChain(tenantID, chainID string, available []domain.CandidateModel, template *domain.FallbackChain) (*domain.FallbackChain, error) {
	if len(available) == 0 {
		return nil, fmt.Errorf("tenant %q: %w", tenantID, domain.ErrEmptyChain)
	}
	if chainID == "" {
		chainID = BotChainID(tenantID)
	}

	primary := 0
	for i, m := range available {
		if m.IsPrimary {
			primary = i
			break
		}
	}

	picked := make([]bool, len(available))
	usedModels := make(map[string]struct{})
	usedVendors := make(map[string]struct{})
	var models []domain.FallbackModel

	take := func(i int) {
		m := available[i]
		picked[i] = true
		usedModels[m.Vendor+"/"+m.Model] = struct{}{}
		usedVendors[strings.ToLower(m.Vendor)] = struct{}{}

		protocol := m.Protocol
		if protocol == "" {
			protocol = protocolFor(m.Vendor)
		}
		models = append(models, domain.FallbackModel{Vendor: m.Vendor, Model: m.Model, Protocol: protocol})
	}
	duplicate := func(i int) bool {
		_, ok := usedModels[available[i].Vendor+"/"+available[i].Model]
		return ok
	}

	take(primary)

	for i, m := range available {
		if len(models) >= DynamicChainCap {
			break
		}
		if picked[i] || duplicate(i) {
			continue
		}
		if _, used := usedVendors[strings.ToLower(m.Vendor)]; used {
			continue
		}
		take(i)
	}

	for i := range available {
		if len(models) >= DynamicChainCap {
			break
		}
		if picked[i] || duplicate(i) {
			continue
		}
		take(i)
	}

	chain := &domain.FallbackChain{
		ChainID:    chainID,
		Name:       fmt.Sprintf("Bot %s fallback", tenantID),
		Models:     models,
		MaxRetries: min(len(models), DynamicMaxRetries),
	}
	if template != nil {
		chain.TriggerStatusCodes = append([]int(nil), template.TriggerStatusCodes...)
		chain.TriggerErrorTypes = append([]string(nil), template.TriggerErrorTypes...)
		chain.TriggerTimeoutMs = template.TriggerTimeoutMs
		chain.RetryDelayMs = template.RetryDelayMs
	}
	return chain, nil
}
