// Package config provides application settings loaded from environment
// variables and agent specs loaded from YAML files.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider API key lookup

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/richinex/quill/llm"
)

// Settings holds all application configuration.
type Settings struct {
	AgentsDir string
	OutputDir string
	LLM       LLMConfig
	Agent     AgentConfig
}

// LLMConfig holds defaults applied to every provider unless a spec overrides them.
type LLMConfig struct {
	MaxTokens   uint32
	Temperature float32
}

// AgentConfig holds agent execution configuration.
type AgentConfig struct {
	MaxIterations int
}

// New creates settings, loading values from environment variables.
// Returns an error if environment variables contain invalid values.
func New() (Settings, error) {
	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	maxIterations, err := getEnvInt("AGENT_MAX_ITERATIONS", 50)
	if err != nil {
		return Settings{}, err
	}
	if maxIterations < 1 {
		return Settings{}, configError(fmt.Errorf("AGENT_MAX_ITERATIONS must be positive, got %d", maxIterations))
	}

	return Settings{
		AgentsDir: getEnvString("QUILL_AGENTS_DIR", "agents"),
		OutputDir: getEnvString("QUILL_OUTPUT_DIR", "outputs"),
		LLM: LLMConfig{
			MaxTokens:   maxTokens,
			Temperature: float32(temperature),
		},
		Agent: AgentConfig{
			MaxIterations: maxIterations,
		},
	}, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	providerType, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", configError(err)
	}

	key := providerType.LookupAPIKey()
	if key == "" {
		return "", configError(fmt.Errorf("%w: %s environment variable not set",
			ErrMissingAPIKey, providerType.EnvVar()))
	}
	return key, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	return []string{
		llm.ProviderAnthropic.String(),
		llm.ProviderOpenAI.String(),
		llm.ProviderGemini.String(),
	}
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, configError(fmt.Errorf("invalid value for %s: %q: %w", key, val, err))
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, configError(fmt.Errorf("invalid value for %s: %q: %w", key, val, err))
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, configError(fmt.Errorf("invalid value for %s: %q: %w", key, val, err))
	}
	return f, nil
}
