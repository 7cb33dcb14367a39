// Agent builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"fmt"
	"time"

	"github.com/richinex/quill/llm"
	"github.com/richinex/quill/tools"
)

// Builder provides fluent configuration for creating agents.
// Usage: agent.NewBuilder("name") - no stutter.
type Builder struct {
	name           string
	description    string
	instructions   string
	tools          []tools.Tool
	builtins       []llm.BuiltinTool
	maxIterations  int
	requestTimeout time.Duration
	toolConfig     tools.ToolConfig
}

// NewBuilder creates a new agent builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		tools: []tools.Tool{},
	}
}

// Description sets the agent's description.
func (b *Builder) Description(description string) *Builder {
	b.description = description
	return b
}

// Instructions sets the agent's system instructions.
func (b *Builder) Instructions(instructions string) *Builder {
	b.instructions = instructions
	return b
}

// Tool adds a tool to the agent.
func (b *Builder) Tool(tool tools.Tool) *Builder {
	b.tools = append(b.tools, tool)
	return b
}

// Tools adds multiple tools at once.
func (b *Builder) Tools(toolList []tools.Tool) *Builder {
	b.tools = append(b.tools, toolList...)
	return b
}

// Builtins sets the provider-side tools.
func (b *Builder) Builtins(builtins ...llm.BuiltinTool) *Builder {
	b.builtins = append(b.builtins, builtins...)
	return b
}

// MaxIterations bounds the model requests of one run.
func (b *Builder) MaxIterations(n int) *Builder {
	b.maxIterations = n
	return b
}

// RequestTimeout bounds each model request.
func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.requestTimeout = d
	return b
}

// ToolConfig sets per-call timeout and retries for local tools.
func (b *Builder) ToolConfig(config tools.ToolConfig) *Builder {
	b.toolConfig = config
	return b
}

// Build creates the agent configuration.
func (b *Builder) Build() Config {
	description := b.description
	if description == "" {
		description = fmt.Sprintf("Agent: %s", b.name)
	}

	instructions := b.instructions
	if instructions == "" {
		instructions = fmt.Sprintf(
			"You are an agent named %s. Use available tools to complete tasks.",
			b.name,
		)
	}

	maxIterations := b.maxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return Config{
		Name:           b.name,
		Description:    description,
		Instructions:   instructions,
		Tools:          b.tools,
		Builtins:       b.builtins,
		MaxIterations:  maxIterations,
		RequestTimeout: b.requestTimeout,
		ToolConfig:     b.toolConfig,
	}
}

// Name returns the builder's agent name.
func (b *Builder) Name() string {
	return b.name
}

// ToolCount returns the number of tools registered.
func (b *Builder) ToolCount() int {
	return len(b.tools)
}
