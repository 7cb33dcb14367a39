// Agent configuration types.
//
// Information Hiding:
// - Default values hidden
// - Tool execution settings bundled with the agent

package agent

import (
	"time"

	"github.com/richinex/quill/llm"
	"github.com/richinex/quill/tools"
)

// DefaultMaxIterations bounds the model requests of a single run.
const DefaultMaxIterations = 50

// Config holds agent configuration.
type Config struct {
	// Name is a unique identifier for the agent.
	Name string

	// Description explains what this agent does (used when it is exposed as a tool).
	Description string

	// Instructions become the system message of every run.
	Instructions string

	// Tools available to this agent. Names must be unique.
	Tools []tools.Tool

	// Builtins are provider-side tools such as web search.
	Builtins []llm.BuiltinTool

	// MaxIterations bounds the model requests of one run. Zero means DefaultMaxIterations.
	MaxIterations int

	// RequestTimeout bounds each model request. Zero means no limit.
	RequestTimeout time.Duration

	// ToolConfig controls per-call timeout and retries of local tools.
	ToolConfig tools.ToolConfig
}

// DefaultConfig returns a basic agent configuration.
func DefaultConfig() Config {
	return Config{
		Name:          "agent",
		Description:   "A general-purpose agent",
		Instructions:  "You are a helpful assistant.",
		Tools:         []tools.Tool{},
		MaxIterations: DefaultMaxIterations,
		ToolConfig:    tools.DefaultToolConfig(),
	}
}

// HasTools returns true if the agent has tools configured.
func (c *Config) HasTools() bool {
	return len(c.Tools) > 0
}

func (c *Config) maxIterations() int {
	if c.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return c.MaxIterations
}
