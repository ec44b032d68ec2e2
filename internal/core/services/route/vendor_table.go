package route

import "strings"

// DefaultVendor is used when no rule matches a model name.
const DefaultVendor = "openai"

// VendorRule maps a model-name substring to a vendor.
type VendorRule struct {
	Pattern string
	Vendor  string
}

// VendorRules is evaluated in order and the first match wins. Order matters:
// a name such as "claude-gpt-bridge" matches more than one pattern.
var VendorRules = []VendorRule{
	{Pattern: "claude", Vendor: "anthropic"},
	{Pattern: "gpt", Vendor: "openai"},
	{Pattern: "o1", Vendor: "openai"},
	{Pattern: "o3", Vendor: "openai"},
	{Pattern: "gemini", Vendor: "google"},
	{Pattern: "deepseek", Vendor: "deepseek"},
	{Pattern: "doubao", Vendor: "doubao"},
	{Pattern: "qwen", Vendor: "dashscope"},
	{Pattern: "glm", Vendor: "zhipu"},
	{Pattern: "llama", Vendor: "meta"},
	{Pattern: "mistral", Vendor: "mistral"},
}

// InferVendor returns the vendor for a model name using VendorRules.
func InferVendor(model string) string {
	return inferVendor(VendorRules, model)
}

func inferVendor(rules []VendorRule, model string) string {
	lowered := strings.ToLower(model)
	for _, r := range rules {
		if strings.Contains(lowered, r.Pattern) {
			return r.Vendor
		}
	}
	return DefaultVendor
}
