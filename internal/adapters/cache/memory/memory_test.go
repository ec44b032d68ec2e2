package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_ExpiryAndSweep(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "cred:pk-1", domain.ProviderCredential{ID: "pk-1", Vendor: "openai"}, time.Minute))
	require.NoError(t, c.Set(ctx, "chain:default", domain.FallbackChain{ChainID: "default"}, time.Hour))

	var cred domain.ProviderCredential
	require.NoError(t, c.Get(ctx, "cred:pk-1", &cred))
	assert.Equal(t, "openai", cred.Vendor)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "cred:pk-1", &cred), ports.ErrCacheMiss)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	chain := domain.FallbackChain{ChainID: "c", Models: []domain.FallbackModel{{Model: "a"}}}
	require.NoError(t, c.Set(ctx, "chain:c", chain, time.Minute))
	chain.Models[0].Model = "mutated"

	var got domain.FallbackChain
	require.NoError(t, c.Get(ctx, "chain:c", &got))
	assert.Equal(t, "a", got.Models[0].Model)
}

func TestMemoryCache_DeletePrefix(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	for _, k := range []string{"cred:a", "cred:b", "chain:x"} {
		require.NoError(t, c.Set(ctx, k, 1, time.Minute))
	}
	require.NoError(t, c.DeletePrefix(ctx, "cred:"))
	require.NoError(t, c.Delete(ctx, "missing"))

	var v int
	assert.ErrorIs(t, c.Get(ctx, "cred:a", &v), ports.ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "chain:x", &v))
}
