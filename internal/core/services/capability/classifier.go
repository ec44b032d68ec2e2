// Package capability detects which capability requirements an inbound chat
// request implies.
package capability

import (
	"encoding/json"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/nulzo/route-engine/internal/core/domain"
	"github.com/nulzo/route-engine/pkg/api"
)

// Classifier maps request bodies to capability requirements. The requirement
// table can be swapped at runtime; Parse never blocks on a reload.
type Classifier struct {
	table atomic.Pointer[table]
}

type table struct {
	byID   map[string]domain.CapabilityRequirement
	byName map[string]string
}

func NewClassifier(reqs []domain.CapabilityRequirement) *Classifier {
	c := &Classifier{}
	if reqs == nil {
		reqs = DefaultRequirements()
	}
	c.Reload(reqs)
	return c
}

// Reload replaces the requirement table. Later entries win on duplicate tag ids.
func (c *Classifier) Reload(reqs []domain.CapabilityRequirement) {
	t := &table{
		byID:   make(map[string]domain.CapabilityRequirement, len(reqs)),
		byName: make(map[string]string, len(reqs)),
	}
	for _, r := range reqs {
		if r.TagID == "" {
			continue
		}
		t.byID[r.TagID] = r
		if r.Name != "" {
			t.byName[strings.ToLower(r.Name)] = r.TagID
		}
	}
	c.table.Store(t)
}

// Requirement looks a requirement up by tag id.
func (c *Classifier) Requirement(tagID string) (domain.CapabilityRequirement, bool) {
	r, ok := c.table.Load().byID[tagID]
	return r, ok
}

// Requirements returns the current table sorted by priority, highest first.
func (c *Classifier) Requirements() []domain.CapabilityRequirement {
	t := c.table.Load()
	out := make([]domain.CapabilityRequirement, 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].TagID < out[j].TagID
	})
	return out
}

// ParseRaw decodes a raw JSON body and classifies it. A body that does not
// decode yields no requirements beyond the hint.
func (c *Classifier) ParseRaw(body []byte, hint string) []domain.CapabilityRequirement {
	var req api.ChatRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return c.Parse(nil, hint)
		}
	}
	return c.Parse(&req, hint)
}

// Parse returns the matched requirements de-duplicated by tag id and sorted by
// priority descending. The hinted requirement is collected first, so it wins
// ties against requirements of equal priority.
func (c *Classifier) Parse(req *api.ChatRequest, hint string) []domain.CapabilityRequirement {
	t := c.table.Load()

	var matched []domain.CapabilityRequirement
	seen := make(map[string]struct{})
	add := func(tagID string) {
		if _, dup := seen[tagID]; dup {
			return
		}
		r, ok := t.byID[tagID]
		if !ok {
			return
		}
		seen[tagID] = struct{}{}
		matched = append(matched, r)
	}

	if hint != "" {
		add(t.resolveHint(hint))
	}

	if req != nil {
		if wantsExtendedThinking(req) {
			add(TagDeepReasoning)
		}
		if hasCacheControl(req) {
			add(TagCostOptimized)
		}
		if hasTool(req, isWebSearchTool) {
			add(TagWebSearch)
		}
		if hasTool(req, isCodeExecutionTool) {
			add(TagCodeExecution)
		}
		if hasImage(req) {
			add(TagVision)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}

func (t *table) resolveHint(hint string) string {
	if _, ok := t.byID[hint]; ok {
		return hint
	}
	lowered := strings.ToLower(strings.TrimSpace(hint))
	if _, ok := t.byID[lowered]; ok {
		return lowered
	}
	return t.byName[lowered]
}

func wantsExtendedThinking(req *api.ChatRequest) bool {
	if req.Thinking != nil && strings.EqualFold(req.Thinking.Type, "enabled") {
		return true
	}
	if req.ReasoningEffort != "" && !strings.EqualFold(req.ReasoningEffort, "none") {
		return true
	}
	if r := req.Reasoning; r != nil {
		if r.Enabled != nil {
			return *r.Enabled
		}
		return r.Effort != "" && !strings.EqualFold(r.Effort, "none")
	}
	return false
}

func hasCacheControl(req *api.ChatRequest) bool {
	if req.System != nil && partsCached(req.System.Parts) {
		return true
	}
	for _, m := range req.Messages {
		if m.CacheControl != nil || partsCached(m.Content.Parts) {
			return true
		}
	}
	return false
}

func partsCached(parts []api.ContentPart) bool {
	for _, p := range parts {
		if p.CacheControl != nil {
			return true
		}
	}
	return false
}

func hasTool(req *api.ChatRequest, match func(api.Tool) bool) bool {
	for _, tool := range req.Tools {
		if match(tool) {
			return true
		}
	}
	return false
}

func isWebSearchTool(t api.Tool) bool {
	typ := strings.ToLower(t.Type)
	if strings.HasPrefix(typ, "web_search") || typ == "google_search" {
		return true
	}
	switch strings.ToLower(t.ToolName()) {
	case "web_search", "websearch", "google_search", "search_web":
		return true
	}
	return false
}

func isCodeExecutionTool(t api.Tool) bool {
	typ := strings.ToLower(t.Type)
	if strings.HasPrefix(typ, "code_execution") || typ == "code_interpreter" {
		return true
	}
	switch strings.ToLower(t.ToolName()) {
	case "code_execution", "code_interpreter", "execute_code", "run_code":
		return true
	}
	return false
}

func hasImage(req *api.ChatRequest) bool {
	for _, m := range req.Messages {
		for _, p := range m.Content.Parts {
			switch p.Type {
			case "image_url", "image", "input_image":
				return true
			}
			if p.ImageURL != nil {
				return true
			}
		}
	}
	return false
}
