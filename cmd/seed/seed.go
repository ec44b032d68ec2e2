package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/platform/logger"
	"github.com/nulzo/route-engine/internal/store"
	"github.com/nulzo/route-engine/internal/store/sqlite"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Credentials []struct {
		ID      string          `yaml:"id"`
		Name    string          `yaml:"name"`
		Vendor  string          `yaml:"vendor"`
		APIType domain.Protocol `yaml:"api_type"`
		BaseURL string          `yaml:"base_url"`
		Models  []struct {
			Model          string `yaml:"model"`
			VendorPriority int    `yaml:"vendor_priority"`
			HealthScore    *int   `yaml:"health_score"`
			Disabled       bool   `yaml:"disabled"`
		} `yaml:"models"`
	} `yaml:"credentials"`
	Chains       []domain.FallbackChain         `yaml:"chains"`
	Capabilities []domain.CapabilityRequirement `yaml:"capabilities"`
	Tenants      []struct {
		TenantID        string `yaml:"tenant_id"`
		DefaultModel    string `yaml:"default_model"`
		FallbackChainID string `yaml:"fallback_chain_id"`
		CostStrategyID  string `yaml:"cost_strategy_id"`
	} `yaml:"tenants"`
}

func parseSeed(data []byte) (*seedFile, error) {
	var s seedFile
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	for i := range s.Chains {
		if err := s.Chains[i].Validate(); err != nil {
			return nil, fmt.Errorf("chain %q: %w", s.Chains[i].ChainID, err)
		}
	}
	return &s, nil
}

// apply writes the seed in one transaction. Credentials without an id get a
// fresh one so the same file can be replayed against a new database.
func apply(ctx context.Context, repo store.Repository, s *seedFile) error {
	now := time.Now().UTC()

	return repo.WithTx(ctx, func(tx store.Repository) error {
		for _, c := range s.Credentials {
			id := c.ID
			if id == "" {
				id = uuid.NewString()
			}
			if err := tx.Credentials().Upsert(ctx, &domain.ProviderCredential{
				ID:      id,
				Name:    c.Name,
				Vendor:  c.Vendor,
				APIType: c.APIType,
				BaseURL: c.BaseURL,
			}); err != nil {
				return fmt.Errorf("credential %s: %w", c.Name, err)
			}

			for _, m := range c.Models {
				health := 100
				if m.HealthScore != nil {
					health = *m.HealthScore
				}
				if err := tx.Availability().Upsert(ctx, &domain.ModelAvailability{
					ID:             uuid.NewString(),
					ProviderKeyID:  id,
					Model:          m.Model,
					IsAvailable:    !m.Disabled,
					VendorPriority: m.VendorPriority,
					HealthScore:    health,
					UpdatedAt:      now,
				}); err != nil {
					return fmt.Errorf("availability %s/%s: %w", c.Name, m.Model, err)
				}
			}
		}

		for i := range s.Chains {
			if err := tx.Chains().Upsert(ctx, &s.Chains[i]); err != nil {
				return fmt.Errorf("chain %s: %w", s.Chains[i].ChainID, err)
			}
		}

		for i := range s.Capabilities {
			if err := tx.Capabilities().Upsert(ctx, &s.Capabilities[i]); err != nil {
				return fmt.Errorf("capability %s: %w", s.Capabilities[i].TagID, err)
			}
		}

		for _, t := range s.Tenants {
			if err := tx.RoutingConfigs().Upsert(ctx, &domain.RoutingConfig{
				TenantID:        t.TenantID,
				DefaultModel:    t.DefaultModel,
				FallbackChainID: t.FallbackChainID,
				CostStrategyID:  t.CostStrategyID,
			}); err != nil {
				return fmt.Errorf("tenant %s: %w", t.TenantID, err)
			}
		}
		return nil
	})
}

func main() {
	dsn := flag.String("dsn", "file:routing.db?_foreign_keys=on", "sqlite DSN to seed")
	file := flag.String("file", "", "seed YAML file (defaults to the built-in catalog)")
	flag.Parse()

	log := logger.Initialize(logger.DefaultConfig())
	defer logger.Sync()

	data := defaultSeed
	if *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			log.Fatal("failed to read seed file", zap.String("file", *file), zap.Error(err))
		}
		data = b
	}

	seed, err := parseSeed(data)
	if err != nil {
		log.Fatal("invalid seed", zap.Error(err))
	}

	repo, err := sqlite.NewSQLiteStorage(*dsn, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer func() {
		_ = repo.Close()
	}()

	if err := apply(context.Background(), repo, seed); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	log.Info("seed applied",
		zap.Int("credentials", len(seed.Credentials)),
		zap.Int("chains", len(seed.Chains)),
		zap.Int("capabilities", len(seed.Capabilities)),
		zap.Int("tenants", len(seed.Tenants)),
	)
}
