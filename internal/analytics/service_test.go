package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/nulzo/route-engine/internal/core/domain"
	memstore "github.com/nulzo/route-engine/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainSummary(t *testing.T) {
	repo := memstore.New()
	ctx := context.Background()
	base := time.Unix(1000, 0)

	events := []domain.FallbackEvent{
		{ID: "1", ChainID: "default", FromModel: "claude-sonnet-4", ToModel: "gpt-4o", StatusCode: 529, ErrorType: "overloaded"},
		{ID: "2", ChainID: "default", FromModel: "gpt-4o", ToModel: "gemini-2.0-flash", StatusCode: 429, ErrorType: "rate_limit"},
		{ID: "3", ChainID: "default", FromModel: "claude-sonnet-4", ToModel: "gpt-4o", StatusCode: 529},
		{ID: "4", ChainID: "default", FromModel: "gemini-2.0-flash", Exhausted: true, Reason: "All fallback models exhausted"},
		{ID: "5", ChainID: "other", FromModel: "x"},
	}
	for i := range events {
		events[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.FallbackEvents().Log(ctx, &events[i]))
	}

	sum, err := NewService(repo).ChainSummary(ctx, "default", 0)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Events)
	assert.Equal(t, 3, sum.Advanced)
	assert.Equal(t, 1, sum.Exhausted)
	assert.Equal(t, 2, sum.ByStatus["529"])
	assert.Equal(t, 1, sum.ByErrorType["rate_limit"])
	require.Len(t, sum.FailingFrom, 3)
	assert.Equal(t, ModelFailures{Model: "claude-sonnet-4", Failures: 2}, sum.FailingFrom[0])
	assert.Equal(t, "gemini-2.0-flash", sum.FailingFrom[1].Model)
}

func TestRecentEvents_ClampsLimit(t *testing.T) {
	assert.Equal(t, defaultRecentLimit, clampLimit(0))
	assert.Equal(t, defaultRecentLimit, clampLimit(maxRecentLimit+1))
	assert.Equal(t, 10, clampLimit(10))
}
