package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/quill/tools"
)

// AgentTool exposes an agent as a tool taking a single query. Every call
// runs a fresh agent from build, so stateful tools start empty each time.
// The nested run's usage is added to the calling run's usage.
type AgentTool struct {
	build       func() (*Agent, error)
	name        string
	description string
}

// NewAgentTool exposes the agents made by build under name.
func NewAgentTool(name, description string, build func() (*Agent, error)) *AgentTool {
	return &AgentTool{build: build, name: name, description: description}
}

type agentToolArgs struct {
	Query string `json:"query"`
}

func (t *AgentTool) Metadata() tools.ToolMetadata {
	return tools.ToolMetadata{
		Name:        t.name,
		Description: t.description,
		Parameters: []tools.ToolParameter{
			{Name: "query", ParamType: "string", Description: "What the agent should do", Required: true},
		},
	}
}

func (t *AgentTool) Validate(args json.RawMessage) error {
	_, err := parseAgentToolArgs(args)
	return err
}

// ToolTimeout disables the executor's per-call timeout; the nested run is
// bounded by its own iteration ceiling and request timeout.
func (t *AgentTool) ToolTimeout() time.Duration {
	return 0
}

func (t *AgentTool) Execute(ctx context.Context, args json.RawMessage) (tools.ToolResult, error) {
	a, err := parseAgentToolArgs(args)
	if err != nil {
		return tools.FailureResult(err), nil
	}

	sub, err := t.build()
	if err != nil {
		return tools.FailureResult(fmt.Errorf("%s: %w", t.name, err)), nil
	}

	result, err := sub.Run(ctx, a.Query)
	if err != nil {
		if ctx.Err() != nil {
			return tools.ToolResult{}, ctx.Err()
		}
		return tools.FailureResult(fmt.Errorf("agent %s: %w", sub.Name(), err)), nil
	}

	if usage := UsageFromContext(ctx); usage != nil {
		usage.Merge(result.Usage, result.Requests)
	}
	return tools.SuccessResult(result.Output), nil
}

func parseAgentToolArgs(args json.RawMessage) (agentToolArgs, error) {
	var a agentToolArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return a, fmt.Errorf("invalid arguments: %w", err)
		}
	}
	if strings.TrimSpace(a.Query) == "" {
		return a, fmt.Errorf("query is required")
	}
	return a, nil
}
