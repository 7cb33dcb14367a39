// Agent construction from specs, and the agents listing.
//
// Information Hiding:
// - Tool and sub-agent wiring hidden
// - Provider construction hidden behind ProviderFactory

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/richinex/quill/agent"
	"github.com/richinex/quill/config"
	"github.com/richinex/quill/metrics"
	"github.com/richinex/quill/tools"
)

// treeBuilder turns a loaded spec tree into agents.
type treeBuilder struct {
	settings    config.Settings
	opts        Options
	logger      *slog.Logger
	metrics     *metrics.Metrics
	client      *http.Client
	catalog     *tools.Catalog
	specs       map[string]*config.AgentSpec
	newProvider ProviderFactory
}

// checkProviders creates every provider of the tree once, so a missing API
// key anywhere fails the command before the first request.
func (b *treeBuilder) checkProviders() error {
	for _, spec := range b.specs {
		if _, err := b.newProvider(spec, b.settings, b.client); err != nil {
			return err
		}
	}
	return nil
}

// build creates the agent for spec. Sub-agents are created afresh for every
// call the parent makes to them.
func (b *treeBuilder) build(spec *config.AgentSpec) (*agent.Agent, error) {
	provider, err := b.newProvider(spec, b.settings, b.client)
	if err != nil {
		return nil, err
	}

	toolList, err := b.catalog.Tools(spec.Tools, tools.Deps{HTTPClient: b.client})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}

	for _, name := range spec.AgentTools {
		path, err := config.SpecPath(spec.Dir(), name)
		if err != nil {
			return nil, err
		}
		child, ok := b.specs[path]
		if !ok {
			return nil, fmt.Errorf("%s: agent_tools: %s was not loaded", spec.Name, path)
		}
		toolList = append(toolList, agent.NewAgentTool(
			child.ToolName(),
			child.ToolDescription(),
			func() (*agent.Agent, error) { return b.build(child) },
		))
	}

	builtins, err := spec.Builtins()
	if err != nil {
		return nil, err
	}

	toolConfig := tools.ToolConfig{MaxAttempts: b.opts.ToolRetries}
	cfg := agent.NewBuilder(spec.Name).
		Description(spec.Description).
		Instructions(string(spec.Instructions)).
		Tools(toolList).
		Builtins(builtins...).
		MaxIterations(b.settings.Agent.MaxIterations).
		RequestTimeout(spec.ModelSettings.RequestTimeout()).
		ToolConfig(toolConfig).
		Build()

	a, err := agent.New(cfg, provider)
	if err != nil {
		return nil, err
	}

	executor := tools.NewExecutor(toolConfig)
	executor.OnCall = b.metrics.RecordToolCall
	return a.WithExecutor(executor).WithLogger(b.logger), nil
}

// ListAgents prints the agent specs found in dir. Empty dir means the
// configured agents directory.
func ListAgents(w io.Writer, dir string) error {
	if dir == "" {
		settings, err := config.New()
		if err != nil {
			return err
		}
		dir = settings.AgentsDir
	}

	specs, failures, err := config.ListSpecs(dir)
	if err != nil {
		return err
	}

	if len(specs) == 0 && len(failures) == 0 {
		fmt.Fprintf(w, "No agents in %s\n", dir)
		return nil
	}

	fmt.Fprintf(w, "Agents in %s:\n", dir)
	fmt.Fprintln(w)
	for _, spec := range specs {
		fmt.Fprintf(w, "  %s\n", spec.Name)
		fmt.Fprintf(w, "    model: %s\n", spec.Model)
		if spec.Description != "" {
			fmt.Fprintf(w, "    %s\n", spec.Description)
		}
		if len(spec.AgentTools) > 0 {
			fmt.Fprintf(w, "    sub-agents: %v\n", spec.AgentTools)
		}
		fmt.Fprintln(w)
	}

	paths := make([]string, 0, len(failures))
	for path := range failures {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Fprintf(w, "  %s: %v\n", path, failures[path])
	}
	return nil
}

// ListTools prints the toolsets agent specs can name.
func ListTools(w io.Writer, verbose bool) {
	fmt.Fprintln(w, "Available toolsets:")
	fmt.Fprintln(w)

	for _, ts := range tools.DefaultCatalog().Toolsets() {
		fmt.Fprintf(w, "  %s\n", ts.Name)
		fmt.Fprintf(w, "    %s\n", ts.Description)

		if verbose {
			for _, tool := range ts.New(tools.Deps{}) {
				meta := tool.Metadata()
				fmt.Fprintf(w, "    - %s: %s\n", meta.Name, meta.Description)
				for _, param := range meta.Parameters {
					req := ""
					if param.Required {
						req = "*"
					}
					fmt.Fprintf(w, "        %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
				}
			}
		}
		fmt.Fprintln(w)
	}
}
