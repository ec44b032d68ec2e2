package capability

import (
	"testing"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagIDs(reqs []domain.CapabilityRequirement) []string {
	ids := make([]string, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.TagID)
	}
	return ids
}

func TestParse_ThinkingEnabled(t *testing.T) {
	c := NewClassifier(nil)

	body := []byte(`{"model":"claude-sonnet-4","thinking":{"type":"enabled","budget_tokens":2048},
		"messages":[{"role":"user","content":"prove it step by step"}]}`)

	reqs := c.ParseRaw(body, "")
	require.NotEmpty(t, reqs)
	assert.Equal(t, TagDeepReasoning, reqs[0].TagID)
	assert.True(t, reqs[0].RequiresExtendedThinking)
}

func TestParse_ReasoningEffort(t *testing.T) {
	c := NewClassifier(nil)

	reqs := c.ParseRaw([]byte(`{"reasoning_effort":"high","messages":[]}`), "")
	assert.Equal(t, []string{TagDeepReasoning}, tagIDs(reqs))

	reqs = c.ParseRaw([]byte(`{"reasoning_effort":"none","messages":[]}`), "")
	assert.Empty(t, reqs)
}

func TestParse_AllSignalsSortedByPriority(t *testing.T) {
	c := NewClassifier(nil)

	body := []byte(`{
		"thinking": {"type": "enabled"},
		"tools": [
			{"type": "code_execution_20250522", "name": "code_execution"},
			{"type": "web_search_20250305", "name": "web_search"}
		],
		"messages": [
			{"role": "user", "content": [
				{"type": "text", "text": "what is in this picture", "cache_control": {"type": "ephemeral"}},
				{"type": "image_url", "image_url": {"url": "https://example.com/cat.png"}}
			]}
		]
	}`)

	reqs := c.ParseRaw(body, "")
	assert.Equal(t,
		[]string{TagDeepReasoning, TagWebSearch, TagCodeExecution, TagCostOptimized, TagVision},
		tagIDs(reqs),
	)
}

func TestParse_FunctionToolsByName(t *testing.T) {
	c := NewClassifier(nil)

	body := []byte(`{"tools":[{"type":"function","function":{"name":"web_search","parameters":{}}}],
		"messages":[{"role":"user","content":"news?"}]}`)

	assert.Equal(t, []string{TagWebSearch}, tagIDs(c.ParseRaw(body, "")))
}

func TestParse_HintIsDeduplicated(t *testing.T) {
	c := NewClassifier(nil)

	body := []byte(`{"messages":[{"role":"user","content":[{"type":"image_url","image_url":{"url":"x"}}]}]}`)

	reqs := c.ParseRaw(body, TagVision)
	assert.Equal(t, []string{TagVision}, tagIDs(reqs))
}

func TestParse_HintByNameAndUnknownHint(t *testing.T) {
	c := NewClassifier(nil)

	reqs := c.ParseRaw([]byte(`{"messages":[]}`), "Web Search")
	assert.Equal(t, []string{TagWebSearch}, tagIDs(reqs))

	assert.Empty(t, c.ParseRaw([]byte(`{"messages":[]}`), "does-not-exist"))
}

func TestParse_HintWinsTies(t *testing.T) {
	c := NewClassifier([]domain.CapabilityRequirement{
		{TagID: TagVision, Priority: 10, RequiresVision: true},
		{TagID: "custom", Priority: 10},
	})

	body := []byte(`{"messages":[{"role":"user","content":[{"type":"image","source":{"type":"base64"}}]}]}`)

	assert.Equal(t, []string{"custom", TagVision}, tagIDs(c.ParseRaw(body, "custom")))
}

func TestParse_NoMatchAndBadBody(t *testing.T) {
	c := NewClassifier(nil)

	assert.Empty(t, c.ParseRaw([]byte(`{"messages":[{"role":"user","content":"hello"}]}`), ""))
	assert.Empty(t, c.ParseRaw([]byte(`not json`), ""))
	assert.Empty(t, c.Parse(nil, ""))
}

func TestParse_SystemCacheControl(t *testing.T) {
	c := NewClassifier(nil)

	body := []byte(`{"system":[{"type":"text","text":"long prompt","cache_control":{"type":"ephemeral"}}],
		"messages":[{"role":"user","content":"hi"}]}`)

	assert.Equal(t, []string{TagCostOptimized}, tagIDs(c.ParseRaw(body, "")))
}

func TestReload_ReplacesTable(t *testing.T) {
	c := NewClassifier(nil)
	c.Reload([]domain.CapabilityRequirement{{TagID: TagVision, Name: "Pictures", Priority: 5}})

	_, ok := c.Requirement(TagDeepReasoning)
	assert.False(t, ok)

	reqs := c.ParseRaw([]byte(`{"thinking":{"type":"enabled"}}`), "pictures")
	assert.Equal(t, []string{TagVision}, tagIDs(reqs))
	assert.Len(t, c.Requirements(), 1)
}
