// LLM Provider Factory - builder-first API for creating LLM providers.
//
// Quick Start:
//
//	// Defaults, API key from the environment
//	claude, err := llm.ProviderAnthropic.FromEnv()
//
//	// Full configuration, sharing a retrying HTTP client
//	provider, err := llm.ProviderGemini.
//	    Model("gemini-2.5-flash").
//	    MaxTokens(8192).
//	    ThinkingBudget(2048).
//	    HTTPClient(retry.NewClient(retry.DefaultPolicy(), logger)).
//	    FromEnv()

package llm

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// ErrUnknownProvider is returned for provider names outside the supported set.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrMissingAPIKey is returned when no API key is available for a provider.
var ErrMissingAPIKey = errors.New("missing API key")

// Settings are the generation settings shared by every provider.
type Settings struct {
	MaxTokens   uint32
	Temperature float32
	// ThinkingBudget enables extended thinking when non-zero.
	ThinkingBudget uint32
	// HTTPClient carries transport behaviour such as retries. Nil uses the SDK default.
	HTTPClient *http.Client
}

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI ProviderType = iota
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGemini:
		return "google"
	default:
		return "unknown"
	}
}

// EnvVar returns the environment variable name for this provider's API key.
func (p ProviderType) EnvVar() string {
	switch p {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// envVarAliases lists secondary variables consulted when EnvVar is unset.
func (p ProviderType) envVarAliases() []string {
	if p == ProviderGemini {
		return []string{"GOOGLE_API_KEY"}
	}
	return nil
}

// LookupAPIKey returns the provider's API key from the environment.
func (p ProviderType) LookupAPIKey() string {
	if key := os.Getenv(p.EnvVar()); key != "" {
		return key
	}
	for _, alias := range p.envVarAliases() {
		if key := os.Getenv(alias); key != "" {
			return key
		}
	}
	return ""
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return ModelOpenAIGPT41
	case ProviderAnthropic:
		return ModelAnthropicClaudeSonnet45
	case ProviderGemini:
		return ModelGeminiFlash25
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic":
		return ProviderAnthropic, nil
	case "google", "gemini":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// FromEnv creates a provider with defaults, reading API key from environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// APIKey creates a provider with an explicit API key (uses defaults for everything else).
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// ProviderBuilder is a builder for configuring LLM providers.
type ProviderBuilder struct {
	providerType   ProviderType
	model          string
	maxTokens      uint32
	temperature    *float32
	thinkingBudget uint32
	httpClient     *http.Client
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// ThinkingBudget enables extended thinking with the given token budget.
func (b *ProviderBuilder) ThinkingBudget(tokens uint32) *ProviderBuilder {
	b.thinkingBudget = tokens
	return b
}

// HTTPClient sets the client every provider request goes through.
func (b *ProviderBuilder) HTTPClient(client *http.Client) *ProviderBuilder {
	b.httpClient = client
	return b
}

// FromEnv builds the provider, reading API key from environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	apiKey := b.providerType.LookupAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s: %s environment variable not set",
			ErrMissingAPIKey, b.providerType, b.providerType.EnvVar())
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, b.providerType)
	}
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	settings := Settings{
		MaxTokens:      b.maxTokens,
		Temperature:    0.7,
		ThinkingBudget: b.thinkingBudget,
		HTTPClient:     b.httpClient,
	}
	if settings.MaxTokens == 0 {
		settings.MaxTokens = 4096
	}
	if b.temperature != nil {
		settings.Temperature = *b.temperature
	}
	// The thinking budget must stay below max_tokens on Anthropic.
	if settings.ThinkingBudget > 0 && settings.ThinkingBudget >= settings.MaxTokens {
		settings.MaxTokens = settings.ThinkingBudget + 1024
	}

	switch b.providerType {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model, settings), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, settings), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, settings), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownProvider, b.providerType)
	}
}

// Model identifier constants for all supported providers.

// OpenAI model identifiers
const (
	// ModelOpenAIGPT41 is GPT-4.1: general model with tool calling.
	ModelOpenAIGPT41 = "gpt-4.1"
	// ModelOpenAIGPT4o is GPT-4o.
	ModelOpenAIGPT4o = "gpt-4o"
	// ModelOpenAIO3Mini is O3-mini: efficient reasoning model.
	ModelOpenAIO3Mini = "o3-mini"
)

// Anthropic model identifiers
const (
	// ModelAnthropicClaudeSonnet45 is Claude Sonnet 4.5.
	ModelAnthropicClaudeSonnet45 = "claude-sonnet-4-5"
	// ModelAnthropicClaudeSonnet4 is Claude Sonnet 4.
	ModelAnthropicClaudeSonnet4 = "claude-sonnet-4-20250514"
)

// Gemini model identifiers
const (
	// ModelGeminiFlash25 is Gemini 2.5 Flash.
	ModelGeminiFlash25 = "gemini-2.5-flash"
	// ModelGeminiPro25 is Gemini 2.5 Pro.
	ModelGeminiPro25 = "gemini-2.5-pro"
)
