package config

import (
	"errors"
	"fmt"

	"github.com/richinex/quill/llm"
)

// Sentinel errors for configuration loading and validation.
// Every configuration failure wraps ErrConfig.
var (
	// ErrConfig is the class of all configuration failures. They are fatal and
	// reported before any request is sent.
	ErrConfig = errors.New("configuration error")

	// ErrAgentNotFound is returned when no spec file exists for an agent name.
	ErrAgentNotFound = errors.New("agent spec not found")

	// ErrUnknownProvider is returned for a model identifier without a supported provider prefix.
	ErrUnknownProvider = llm.ErrUnknownProvider

	// ErrMissingAPIKey is returned when the provider's API key is not set.
	ErrMissingAPIKey = llm.ErrMissingAPIKey

	// ErrUnknownTool is returned when tools names an entry missing from the tool catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrUnknownBuiltinTool is returned for builtin_tools entries other than web_search.
	ErrUnknownBuiltinTool = errors.New("unknown builtin tool")

	// ErrInvalidSpec is returned when a spec file is malformed or incomplete.
	ErrInvalidSpec = errors.New("invalid agent spec")
)

// configError marks err as a configuration failure.
func configError(err error) error {
	if errors.Is(err, ErrConfig) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConfig, err)
}
