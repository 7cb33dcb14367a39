// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Mapping of the native stream onto StreamEvent values
//
// Retries are not handled here. Providers are built on an *http.Client whose
// transport applies the retry policy (see package retry).

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for streamed completions with tools.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Stream sends req and reports the response as it is generated.
	// Events are sent to the channel in arrival order; the channel is not
	// closed by the provider. The assembled response is returned once the
	// model has finished.
	Stream(ctx context.Context, req Request, events chan<- StreamEvent) (LLMResponse, error)
}

// emit sends ev unless ctx is done.
func emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
