package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackEvents_RetentionDropsOldest(t *testing.T) {
	repo := New(WithEventRetention(3))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.FallbackEvents().Log(ctx, &domain.FallbackEvent{
			ID:      fmt.Sprintf("evt-%d", i),
			ChainID: "default",
		}))
	}

	got, err := repo.FallbackEvents().GetRecent(ctx, "default", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "evt-4", got[0].ID)
	assert.Equal(t, "evt-2", got[2].ID)
	assert.Len(t, repo.events, 3)
}

func TestNew_DefaultRetention(t *testing.T) {
	assert.Equal(t, DefaultEventRetention, New().eventRetention)
	assert.Equal(t, DefaultEventRetention, New(WithEventRetention(0)).eventRetention)
}
