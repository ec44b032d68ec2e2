package api

import "encoding/json"

// ChatRequest is the part of an inbound chat/completion body the routing
// engine inspects. Unknown fields are ignored.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`

	// the model the caller asked for, may be empty
	Model string `json:"model,omitempty"`

	Stream bool `json:"stream,omitempty"`

	// Extended reasoning switches. Anthropic style `thinking` and OpenAI
	// style `reasoning_effort` / `reasoning` are all recognised.
	Thinking        *Thinking  `json:"thinking,omitempty"`
	ReasoningEffort string     `json:"reasoning_effort,omitempty"`
	Reasoning       *Reasoning `json:"reasoning,omitempty"`

	// System may carry cache_control blocks on the Anthropic protocol.
	System *Content `json:"system,omitempty"`

	// Tool calling
	Tools      []Tool      `json:"tools,omitempty"`
	ToolChoice interface{} `json:"tool_choice,omitempty"` // "none", "auto", or object

	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	User        string  `json:"user,omitempty"`
}

type Thinking struct {
	Type         string `json:"type"` // "enabled" | "disabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

type Reasoning struct {
	Effort  string `json:"effort,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

type ChatMessage struct {
	Role         string        `json:"role"`
	Content      Content       `json:"content"` // string or []ContentPart
	Name         string        `json:"name,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// Content handles the union type: string | []ContentPart
type Content struct {
	Text  string
	Parts []ContentPart
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &c.Text)
	}
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &c.Parts)
	}
	// null or other shapes carry nothing the router cares about
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

type ContentPart struct {
	Type         string        `json:"type"`
	Text         string        `json:"text,omitempty"`
	ImageURL     *ImageURL     `json:"image_url,omitempty"`
	Source       *ImageSource  `json:"source,omitempty"` // Anthropic image blocks
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// Tool covers both function tools and provider-hosted server tools such as
// `{"type": "web_search_20250305", "name": "web_search"}`.
type Tool struct {
	Type     string               `json:"type"`
	Name     string               `json:"name,omitempty"`
	Function *FunctionDescription `json:"function,omitempty"`
}

type FunctionDescription struct {
	Description string                 `json:"description,omitempty"`
	Name        string                 `json:"name"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"` // JSON Schema object
}

// ToolName returns the declared name of the tool, whichever shape it uses.
func (t Tool) ToolName() string {
	if t.Function != nil && t.Function.Name != "" {
		return t.Function.Name
	}
	return t.Name
}
