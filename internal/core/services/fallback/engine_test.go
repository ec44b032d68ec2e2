package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nulzo/route-engine/internal/adapters/cache/memory"
	"github.com/nulzo/route-engine/internal/core/domain"
	memstore "github.com/nulzo/route-engine/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []domain.FallbackEvent
}

func (s *captureSink) Record(e *domain.FallbackEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
}

// MockChains implements store.ChainRepository for testing
type MockChains struct {
	mock.Mock
}

func (m *MockChains) Get(ctx context.Context, chainID string) (*domain.FallbackChain, error) {
	args := m.Called(ctx, chainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FallbackChain), args.Error(1)
}

func (m *MockChains) ListActive(ctx context.Context) ([]domain.FallbackChain, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.FallbackChain), args.Error(1)
}

func (m *MockChains) Upsert(ctx context.Context, c *domain.FallbackChain) error {
	return m.Called(ctx, c).Error(0)
}

func newEngine(t *testing.T) (*Engine, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	e := NewEngine(memstore.New().Chains(), memory.NewMemoryCache(), Config{Sink: sink})
	return e, sink
}

var serverError = domain.FailureSignal{StatusCode: 503, ErrorType: "overloaded_error", Message: "upstream busy"}

func TestCostOptimizedChainExhaustsOnThirdFailure(t *testing.T) {
	e, sink := newEngine(t)
	ctx := context.Background()

	fc, err := e.CreateContext(ctx, "req-1", ChainCostOptimized)
	require.NoError(t, err)
	assert.Equal(t, 0, fc.CurrentIndex)

	d := e.GetNextFallback(ctx, "req-1", serverError)
	assert.True(t, d.ShouldFallback)
	assert.Equal(t, 1, d.NextIndex)
	assert.Equal(t, "gpt-4o-mini", d.NextModel.Model)

	d = e.GetNextFallback(ctx, "req-1", serverError)
	assert.True(t, d.ShouldFallback)
	assert.Equal(t, 2, d.NextIndex)
	assert.Equal(t, "gemini-2.0-flash", d.NextModel.Model)

	d = e.GetNextFallback(ctx, "req-1", serverError)
	assert.False(t, d.ShouldFallback)
	assert.True(t, d.Exhausted)
	assert.Equal(t, ReasonExhausted, d.Reason)

	stats, ok := e.GetFallbackStats(ctx, "req-1")
	require.True(t, ok)
	assert.Equal(t, 3, stats.TotalErrors)
	assert.Equal(t, []string{"deepseek-chat", "gpt-4o-mini", "gemini-2.0-flash"},
		[]string{stats.Errors[0].Model, stats.Errors[1].Model, stats.Errors[2].Model})
	assert.Equal(t, "gemini-2.0-flash", stats.CurrentModel.Model)

	require.Len(t, sink.events, 3)
	assert.Equal(t, "deepseek-chat", sink.events[0].FromModel)
	assert.Equal(t, "gpt-4o-mini", sink.events[0].ToModel)
	assert.True(t, sink.events[2].Exhausted)
	assert.NotEmpty(t, sink.events[2].ID)
}

func TestMaxRetriesExceeded(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.RegisterChain(&domain.FallbackChain{
		ChainID:    "tight",
		Models:     []domain.FallbackModel{{Model: "a"}, {Model: "b"}, {Model: "c"}},
		MaxRetries: 1,
	}))

	_, err := e.CreateContext(ctx, "req", "tight")
	require.NoError(t, err)

	assert.True(t, e.GetNextFallback(ctx, "req", serverError).ShouldFallback)

	d := e.GetNextFallback(ctx, "req", serverError)
	assert.True(t, d.Exhausted)
	assert.Equal(t, ReasonMaxRetries, d.Reason)
}

func TestExhaustionIsMonotonic(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	_, err := e.CreateContext(ctx, "req", ChainHighAvailability)
	require.NoError(t, err)

	lastIndex, lastRetries := 0, 0
	exhausted := false
	for i := 0; i < 10; i++ {
		d := e.GetNextFallback(ctx, "req", serverError)
		fc, ok := e.GetContext("req")
		require.True(t, ok)

		assert.GreaterOrEqual(t, fc.CurrentIndex, lastIndex)
		assert.GreaterOrEqual(t, fc.RetryCount, lastRetries)
		if exhausted {
			assert.False(t, d.ShouldFallback)
			assert.True(t, d.Exhausted)
			assert.Equal(t, lastIndex, fc.CurrentIndex)
		}
		exhausted = exhausted || d.Exhausted
		lastIndex, lastRetries = fc.CurrentIndex, fc.RetryCount
	}
	assert.True(t, exhausted)
}

func TestGetNextFallback_Reasons(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	d := e.GetNextFallback(ctx, "missing", serverError)
	assert.False(t, d.ShouldFallback)
	assert.Equal(t, ReasonNoContext, d.Reason)

	require.NoError(t, e.RegisterChain(&domain.FallbackChain{ChainID: "temp", Models: []domain.FallbackModel{{Model: "a"}}, MaxRetries: 1}))
	_, err := e.CreateContext(ctx, "req", "temp")
	require.NoError(t, err)

	e.mu.Lock()
	delete(e.registry, "temp")
	e.mu.Unlock()

	d = e.GetNextFallback(ctx, "req", serverError)
	assert.False(t, d.ShouldFallback)
	assert.Equal(t, ReasonChainNotFound, d.Reason)
}

func TestCreateContext_UnknownChain(t *testing.T) {
	e, _ := newEngine(t)

	fc, err := e.CreateContext(context.Background(), "req", "nope")
	assert.Nil(t, fc)
	assert.ErrorIs(t, err, domain.ErrChainNotFound)
	assert.Equal(t, 0, e.ActiveContexts())
}

func TestShouldTriggerFallback(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	assert.True(t, e.ShouldTriggerFallback(ctx, ChainDefault, domain.FailureSignal{StatusCode: 429}))
	assert.True(t, e.ShouldTriggerFallback(ctx, ChainDefault, domain.FailureSignal{ErrorType: "rate_limit_error"}))
	assert.True(t, e.ShouldTriggerFallback(ctx, ChainDefault, domain.FailureSignal{ResponseTimeMs: 90000}))
	assert.False(t, e.ShouldTriggerFallback(ctx, ChainDefault, domain.FailureSignal{ResponseTimeMs: 60000}))
	assert.False(t, e.ShouldTriggerFallback(ctx, ChainDefault, domain.FailureSignal{StatusCode: 400}))
	assert.False(t, e.ShouldTriggerFallback(ctx, ChainDefault, domain.FailureSignal{}))
	assert.False(t, e.ShouldTriggerFallback(ctx, "unknown", domain.FailureSignal{StatusCode: 429}))

	for _, c := range e.GetAllFallbackChains() {
		if c.TriggersOnStatus(429) {
			assert.True(t, e.ShouldTriggerFallback(ctx, c.ChainID, domain.FailureSignal{StatusCode: 429}), c.ChainID)
		}
	}
}

func TestShouldTriggerFallback_ZeroTimeoutNeverTriggers(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.RegisterChain(&domain.FallbackChain{ChainID: "no-timeout", Models: []domain.FallbackModel{{Model: "a"}}}))

	assert.False(t, e.ShouldTriggerFallback(context.Background(), "no-timeout", domain.FailureSignal{ResponseTimeMs: 1}))
}

func TestShouldTriggerFallback_TimeoutIsExclusive(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.RegisterChain(&domain.FallbackChain{
		ChainID:          "slow",
		Models:           []domain.FallbackModel{{Model: "a"}},
		TriggerTimeoutMs: 1000,
	}))

	assert.False(t, e.ShouldTriggerFallback(ctx, "slow", domain.FailureSignal{ResponseTimeMs: 1000}))
	assert.True(t, e.ShouldTriggerFallback(ctx, "slow", domain.FailureSignal{ResponseTimeMs: 1001}))
}

func TestPreserveProtocolSkipsForeignModels(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.RegisterChain(&domain.FallbackChain{
		ChainID: "native",
		Models: []domain.FallbackModel{
			{Vendor: "anthropic", Model: "claude-sonnet-4", Protocol: domain.ProtocolAnthropic},
			{Vendor: "openai", Model: "gpt-4o", Protocol: domain.ProtocolOpenAI},
			{Vendor: "anthropic", Model: "claude-3-5-haiku", Protocol: domain.ProtocolAnthropic},
		},
		MaxRetries:       3,
		PreserveProtocol: true,
	}))

	_, err := e.CreateContext(ctx, "req", "native")
	require.NoError(t, err)

	d := e.GetNextFallback(ctx, "req", serverError)
	require.True(t, d.ShouldFallback)
	assert.Equal(t, 2, d.NextIndex)
	assert.Equal(t, "claude-3-5-haiku", d.NextModel.Model)

	d = e.GetNextFallback(ctx, "req", serverError)
	assert.True(t, d.Exhausted)
}

func TestGetFallbackChainAsync_LoadsAndCaches(t *testing.T) {
	chains := new(MockChains)
	stored := &domain.FallbackChain{
		ChainID:            "tenant-42",
		Models:             []domain.FallbackModel{{Vendor: "openai", Model: "gpt-4o"}, {Vendor: "google", Model: "gemini-2.0-flash"}},
		TriggerStatusCodes: []int{500},
		MaxRetries:         1,
	}
	chains.On("Get", mock.Anything, "tenant-42").Return(stored, nil).Once()
	chains.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	e := NewEngine(chains, memory.NewMemoryCache(), Config{})
	ctx := context.Background()

	_, ok := e.GetFallbackChain(ctx, "tenant-42")
	assert.False(t, ok)

	c, err := e.GetFallbackChainAsync(ctx, "tenant-42")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c.Models[0].Model)

	// served from the chain cache from now on
	c, ok = e.GetFallbackChain(ctx, "tenant-42")
	require.True(t, ok)
	assert.Equal(t, []int{500}, c.TriggerStatusCodes)
	_, err = e.GetFallbackChainAsync(ctx, "tenant-42")
	require.NoError(t, err)

	_, err = e.GetFallbackChainAsync(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrChainNotFound)

	require.NoError(t, e.ClearChainCache(ctx))
	_, ok = e.GetFallbackChain(ctx, "tenant-42")
	assert.False(t, ok)

	chains.AssertExpectations(t)
}

func TestGetFallbackChain_ReadsSharedCacheNotStore(t *testing.T) {
	chains := new(MockChains)
	cache := memory.NewMemoryCache()
	e := NewEngine(chains, cache, Config{})
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, ChainKeyPrefix+"peer-loaded", domain.FallbackChain{
		ChainID: "peer-loaded",
		Models:  []domain.FallbackModel{{Vendor: "openai", Model: "gpt-4o"}},
	}, time.Minute))

	c, ok := e.GetFallbackChain(ctx, "peer-loaded")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", c.Models[0].Model)

	_, ok = e.GetFallbackChain(ctx, "absent")
	assert.False(t, ok)
	chains.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestGetFallbackChainAsync_StoreFailure(t *testing.T) {
	chains := new(MockChains)
	chains.On("Get", mock.Anything, "tenant-42").Return(nil, errors.New("connection refused"))

	e := NewEngine(chains, memory.NewMemoryCache(), Config{})

	_, err := e.GetFallbackChainAsync(context.Background(), "tenant-42")
	assert.ErrorContains(t, err, "connection refused")
	assert.NotErrorIs(t, err, domain.ErrChainNotFound)

	// a failing store still leaves built-in chains usable
	assert.True(t, e.ShouldTriggerFallback(context.Background(), ChainDefault, domain.FailureSignal{StatusCode: 502}))
}

func TestLoadFallbackChainsFromDB(t *testing.T) {
	chains := new(MockChains)
	chains.On("ListActive", mock.Anything).Return([]domain.FallbackChain{
		{ChainID: ChainDefault, Models: []domain.FallbackModel{{Model: "only-one"}}, MaxRetries: 0},
		{ChainID: "broken"},
		{ChainID: "extra", Models: []domain.FallbackModel{{Model: "x"}, {Model: "y"}}, MaxRetries: 1},
	}, nil)

	e := NewEngine(chains, memory.NewMemoryCache(), Config{})
	n, err := e.LoadFallbackChainsFromDB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c, ok := e.GetFallbackChain(context.Background(), ChainDefault)
	require.True(t, ok)
	assert.Len(t, c.Models, 1)

	_, ok = e.GetFallbackChain(context.Background(), "broken")
	assert.False(t, ok)
	assert.Len(t, e.GetAllFallbackChains(), 5)
}

func TestBuildDynamicFallbackChain_Shape(t *testing.T) {
	e, _ := newEngine(t)
	available := []domain.CandidateModel{
		{Model: "gpt-4o-mini", Vendor: "openai"},
		{Model: "gpt-4o", Vendor: "openai"},
		{Model: "claude-sonnet-4", Vendor: "anthropic", IsPrimary: true},
		{Model: "claude-3-5-haiku", Vendor: "anthropic"},
		{Model: "gemini-2.0-flash", Vendor: "google"},
	}

	c, err := e.BuildDynamicFallbackChain(context.Background(), "t1", available, "")
	require.NoError(t, err)

	assert.Equal(t, "bot-t1", c.ChainID)
	require.LessOrEqual(t, len(c.Models), DynamicChainCap)
	require.Len(t, c.Models, 4)
	assert.Equal(t, "claude-sonnet-4", c.Models[0].Model)
	assert.Equal(t, domain.ProtocolAnthropic, c.Models[0].Protocol)

	// vendor-distinct before any repeat
	assert.Equal(t, "openai", c.Models[1].Vendor)
	assert.Equal(t, "google", c.Models[2].Vendor)
	assert.Equal(t, domain.ProtocolGoogle, c.Models[2].Protocol)
	assert.Equal(t, "gpt-4o", c.Models[3].Model)

	assert.Equal(t, 3, c.MaxRetries)
	def, _ := e.GetFallbackChain(context.Background(), ChainDefault)
	assert.Equal(t, def.TriggerStatusCodes, c.TriggerStatusCodes)
	assert.Equal(t, def.TriggerTimeoutMs, c.TriggerTimeoutMs)
}

func TestBuildDynamicFallbackChain_SmallAndDuplicates(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	c, err := e.BuildDynamicFallbackChain(ctx, "t2", []domain.CandidateModel{
		{Model: "deepseek-chat", Vendor: "deepseek"},
		{Model: "deepseek-chat", Vendor: "deepseek"},
	}, "custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", c.ChainID)
	assert.Len(t, c.Models, 1)
	assert.Equal(t, 1, c.MaxRetries)

	_, err = e.BuildDynamicFallbackChain(ctx, "t3", nil, "")
	assert.ErrorIs(t, err, domain.ErrEmptyChain)
}

func TestRegisterBotFallbackChain_Replaces(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.RegisterBotFallbackChain(ctx, "t1", []domain.CandidateModel{{Model: "gpt-4o", Vendor: "openai"}})
	require.NoError(t, err)

	_, err = e.RegisterBotFallbackChain(ctx, "t1", []domain.CandidateModel{
		{Model: "gpt-4o", Vendor: "openai"},
		{Model: "claude-sonnet-4", Vendor: "anthropic", IsPrimary: true},
	})
	require.NoError(t, err)

	c, ok := e.GetFallbackChain(ctx, BotChainID("t1"))
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4", c.Models[0].Model)
	assert.Len(t, c.Models, 2)
}

func TestSessionReleaseAndEviction(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	s, err := e.Begin(ctx, "req-s", ChainDefault)
	require.NoError(t, err)
	m, ok := s.Current(ctx)
	require.True(t, ok)
	assert.Equal(t, "claude-sonnet-4-20250514", m.Model)
	assert.True(t, s.Next(ctx, serverError).ShouldFallback)

	s.Release()
	s.Release()
	_, ok = e.GetContext("req-s")
	assert.False(t, ok)

	base := time.Now()
	e.now = func() time.Time { return base }
	_, err = e.CreateContext(ctx, "old", ChainDefault)
	require.NoError(t, err)
	e.now = func() time.Time { return base.Add(10 * time.Minute) }
	_, err = e.CreateContext(ctx, "fresh", ChainDefault)
	require.NoError(t, err)

	assert.Equal(t, 1, e.EvictStale(5*time.Minute))
	_, ok = e.GetContext("old")
	assert.False(t, ok)
	_, ok = e.GetContext("fresh")
	assert.True(t, ok)
	assert.Equal(t, 0, e.EvictStale(0))
}

func TestReturnedChainsAreCopies(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	c, ok := e.GetFallbackChain(ctx, ChainDefault)
	require.True(t, ok)
	c.Models[0].Model = "mutated"
	c.TriggerStatusCodes[0] = 999

	again, _ := e.GetFallbackChain(ctx, ChainDefault)
	assert.Equal(t, "claude-sonnet-4-20250514", again.Models[0].Model)
	assert.Equal(t, 429, again.TriggerStatusCodes[0])
}
