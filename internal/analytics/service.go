package analytics

import (
	"context"
	"sort"
	"strconv"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/store"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Service answers questions about persisted fallback transitions.
type Service interface {
	RecentEvents(ctx context.Context, chainID string, limit int) ([]domain.FallbackEvent, error)
	ChainSummary(ctx context.Context, chainID string, limit int) (*ChainSummary, error)
}

// ModelFailures counts transitions away from one model.
type ModelFailures struct {
	Model    string `json:"model"`
	Failures int    `json:"failures"`
}

// ChainSummary aggregates the most recent transitions of a chain.
type ChainSummary struct {
	ChainID     string          `json:"chain_id"`
	Events      int             `json:"events"`
	Advanced    int             `json:"advanced"`
	Exhausted   int             `json:"exhausted"`
	ByStatus    map[string]int  `json:"by_status"`
	ByErrorType map[string]int  `json:"by_error_type"`
	FailingFrom []ModelFailures `json:"failing_from"`
}

type service struct {
	repo store.Repository
}

func NewService(repo store.Repository) Service {
	return &service{
		repo: repo,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxRecentLimit {
		return defaultRecentLimit
	}
	return limit
}

func (s *service) RecentEvents(ctx context.Context, chainID string, limit int) ([]domain.FallbackEvent, error) {
	return s.repo.FallbackEvents().GetRecent(ctx, chainID, clampLimit(limit))
}

func (s *service) ChainSummary(ctx context.Context, chainID string, limit int) (*ChainSummary, error) {
	events, err := s.repo.FallbackEvents().GetRecent(ctx, chainID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return summarize(chainID, events), nil
}

func summarize(chainID string, events []domain.FallbackEvent) *ChainSummary {
	sum := &ChainSummary{
		ChainID:     chainID,
		Events:      len(events),
		ByStatus:    make(map[string]int),
		ByErrorType: make(map[string]int),
	}

	failures := make(map[string]int)
	for _, e := range events {
		if e.Exhausted {
			sum.Exhausted++
		} else {
			sum.Advanced++
		}
		if e.StatusCode != 0 {
			sum.ByStatus[strconv.Itoa(e.StatusCode)]++
		}
		if e.ErrorType != "" {
			sum.ByErrorType[e.ErrorType]++
		}
		if e.FromModel != "" {
			failures[e.FromModel]++
		}
	}

	sum.FailingFrom = make([]ModelFailures, 0, len(failures))
	for m, n := range failures {
		sum.FailingFrom = append(sum.FailingFrom, ModelFailures{Model: m, Failures: n})
	}
	sort.Slice(sum.FailingFrom, func(i, j int) bool {
		if sum.FailingFrom[i].Failures != sum.FailingFrom[j].Failures {
			return sum.FailingFrom[i].Failures > sum.FailingFrom[j].Failures
		}
		return sum.FailingFrom[i].Model < sum.FailingFrom[j].Model
	})
	return sum
}
