package translate

import (
	"sort"
	"strings"
	"time"

	"github.com/minios-linux/binloc/langmeta"
)

// Known provider IDs. Any other ID is treated as an OpenAI-compatible
// endpoint and needs a base URL.
const (
	ProviderGoogle       = "google"
	ProviderGroq         = "groq"
	ProviderCustomOpenAI = "custom-openai"
	ProviderOllama       = "ollama"
)

// ProviderConfig describes one translation endpoint.
type ProviderConfig struct {
	ID      string
	Name    string
	BaseURL string
	// APIKey is empty for local services.
	APIKey string
	Model  string
	// Proxy overrides HTTP_PROXY/HTTPS_PROXY when set.
	Proxy   string
	Timeout time.Duration
	// SystemPrompt replaces DefaultSystemPrompt when set.
	SystemPrompt string
}

var builtinProviders = []ProviderConfig{
	{ID: ProviderGoogle, Name: "Google AI (Gemini)", BaseURL: "https://generativelanguage.googleapis.com", Model: "gemini-2.5-flash", Timeout: 120 * time.Second},
	{ID: ProviderGroq, Name: "Groq", BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-versatile", Timeout: 60 * time.Second},
	{ID: ProviderCustomOpenAI, Name: "Custom OpenAI", Timeout: 60 * time.Second},
	{ID: ProviderOllama, Name: "Ollama", BaseURL: "http://localhost:11434/v1", Timeout: 120 * time.Second},
}

// DefaultProviders returns the built-in definitions keyed by ID.
func DefaultProviders() map[string]ProviderConfig {
	m := make(map[string]ProviderConfig, len(builtinProviders))
	for _, p := range builtinProviders {
		m[p.ID] = p
	}
	return m
}

// ProviderIDs returns the built-in IDs in sorted order.
func ProviderIDs() []string {
	ids := make([]string, 0, len(builtinProviders))
	for _, p := range builtinProviders {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}

// ResolveProvider starts from the built-in definition for id and applies
// every non-zero field of override.
func ResolveProvider(id string, override ProviderConfig) ProviderConfig {
	cfg, ok := DefaultProviders()[id]
	if !ok {
		cfg = ProviderConfig{ID: id, Name: id, Timeout: 60 * time.Second}
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.BaseURL, override.BaseURL)
	set(&cfg.APIKey, override.APIKey)
	set(&cfg.Model, override.Model)
	set(&cfg.Proxy, override.Proxy)
	set(&cfg.SystemPrompt, override.SystemPrompt)
	if override.Timeout > 0 {
		cfg.Timeout = override.Timeout
	}
	return cfg
}

// DefaultSystemPrompt is sent with every request. {{sourceLang}} and
// {{targetLang}} are replaced with language display names.
const DefaultSystemPrompt = `You are a professional video game translator. You are translating in-game text (dialogue, menus, item descriptions, system messages) extracted from a game's data files, from {{sourceLang}} to {{targetLang}}.

IMPORTANT TRANSLATION PRINCIPLES:
- Translate for NATURALNESS and FLUENCY in {{targetLang}}, not word-for-word
- Keep the tone of the original line: casual dialogue stays casual, menu labels stay short
- Keep character names, place names and proper nouns unchanged
- Keep the translation about as long as the original; the text is written back into a fixed layout

TECHNICAL REQUIREMENTS:
- Return ONLY the translated text, with no quotes, explanations or markdown code blocks.
- Preserve every control code exactly as-is ({NAME1}, {COLOR2}, {F1 3F}, etc.).
- Preserve leading/trailing whitespace and punctuation patterns.`

func resolvedPrompt(prompt, sourceLang, targetLang string) string {
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	return strings.NewReplacer(
		"{{sourceLang}}", langmeta.PromptName(sourceLang),
		"{{targetLang}}", langmeta.PromptName(targetLang),
	).Replace(prompt)
}
