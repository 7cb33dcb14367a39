// Agent: a model, its instructions and its tools.
//
// Information Hiding:
// - Tool registration and dispatch hidden
// - Provider communication hidden behind Run
// - Usage accounting hidden

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/richinex/quill/llm"
	"github.com/richinex/quill/tools"
)

// ErrMaxIterations is returned when a run needs more model requests than allowed.
var ErrMaxIterations = errors.New("max iterations reached")

// Agent executes queries against a provider with a fixed toolset.
// One Agent may serve several runs; each Run holds its own conversation.
type Agent struct {
	config   Config
	provider llm.Provider
	registry *tools.Registry
	executor *tools.Executor
	logger   *slog.Logger
}

// New creates an agent. Tool names must be unique.
func New(config Config, provider llm.Provider) (*Agent, error) {
	if provider == nil {
		return nil, errors.New("agent requires a provider")
	}

	registry := tools.NewRegistry()
	for _, tool := range config.Tools {
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("agent %s: %w", config.Name, err)
		}
	}

	return &Agent{
		config:   config,
		provider: provider,
		registry: registry,
		executor: tools.NewExecutor(config.ToolConfig),
		logger:   slog.Default(),
	}, nil
}

// WithExecutor replaces the tool executor, e.g. to observe tool calls.
func (a *Agent) WithExecutor(executor *tools.Executor) *Agent {
	a.executor = executor
	return a
}

// WithLogger sets the logger used for tool results.
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// Description returns the agent's description.
func (a *Agent) Description() string {
	return a.config.Description
}

// Provider returns the provider the agent talks to.
func (a *Agent) Provider() llm.Provider {
	return a.provider
}

// Tools returns the names of the agent's local tools.
func (a *Agent) Tools() []string {
	return a.registry.Names()
}

// Iter starts a run for query. Steps are produced by Run.Next.
func (a *Agent) Iter(query string) *Run {
	return &Run{
		agent: a,
		query: query,
		usage: &Usage{},
	}
}

// Run drives a run for query to completion without observing its steps.
func (a *Agent) Run(ctx context.Context, query string) (Result, error) {
	run := a.Iter(query)
	for {
		_, err := run.Next(ctx)
		if errors.Is(err, io.EOF) {
			return run.Result(), nil
		}
		if err != nil {
			return Result{}, err
		}
	}
}
