// Command execution for CLI commands.
//
// Information Hiding:
// - Agent tree construction hidden
// - Retry transport and metrics wiring hidden
// - Artifact and history persistence hidden

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/richinex/quill/agent"
	"github.com/richinex/quill/config"
	"github.com/richinex/quill/llm"
	"github.com/richinex/quill/metrics"
	"github.com/richinex/quill/retry"
	"github.com/richinex/quill/storage"
	"github.com/richinex/quill/tools"
)

// Options holds CLI execution options. Zero values fall back to settings.
type Options struct {
	AgentsDir   string
	OutputDir   string
	MaxIter     int
	ToolRetries uint32
	DBPath      string
	MetricsFile string

	// Out receives the final answer and artifact paths. Nil means stdout.
	Out io.Writer
	// Logger receives run events. Nil means slog.Default().
	Logger *slog.Logger
}

// ProviderFactory creates the provider for a spec. All requests must go
// through client.
type ProviderFactory func(spec *config.AgentSpec, settings config.Settings, client *http.Client) (llm.Provider, error)

// NewProvider is the ProviderFactory used by Run. It applies the spec's
// model settings over the environment defaults and requires the API key.
func NewProvider(spec *config.AgentSpec, settings config.Settings, client *http.Client) (llm.Provider, error) {
	providerType, model, err := spec.Provider()
	if err != nil {
		return nil, err
	}
	apiKey, err := config.APIKeyFor(providerType.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Name, err)
	}

	builder := providerType.Model(model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(settings.LLM.Temperature).
		HTTPClient(client)

	ms := spec.ModelSettings
	if ms.MaxTokens > 0 {
		builder.MaxTokens(ms.MaxTokens)
	}
	if ms.Temperature != nil {
		builder.Temperature(*ms.Temperature)
	}
	if ms.ThinkingBudget > 0 {
		builder.ThinkingBudget(ms.ThinkingBudget)
	}
	return builder.APIKey(apiKey)
}

// Run loads the agent spec called name, runs query against it while logging
// every step, and writes the answer and conversation to the output directory.
//
// Every configuration error, including missing API keys, is reported before
// any request is made.
func Run(ctx context.Context, name, query string, opts Options) error {
	return run(ctx, name, query, opts, NewProvider)
}

func run(ctx context.Context, name, query string, opts Options, newProvider ProviderFactory) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings, err := config.New()
	if err != nil {
		return err
	}
	if opts.AgentsDir != "" {
		settings.AgentsDir = opts.AgentsDir
	}
	if opts.OutputDir != "" {
		settings.OutputDir = opts.OutputDir
	}
	if opts.MaxIter > 0 {
		settings.Agent.MaxIterations = opts.MaxIter
	}

	catalog := tools.DefaultCatalog()
	root, specs, err := config.LoadTree(settings.AgentsDir, name, catalog)
	if err != nil {
		return err
	}

	m := metrics.New()
	transport := retry.NewTransport(nil, retry.DefaultPolicy(), logger)
	transport.OnRetry = m.RecordRetry
	client := &http.Client{Transport: transport}

	b := &treeBuilder{
		settings:    settings,
		opts:        opts,
		logger:      logger,
		metrics:     m,
		client:      client,
		catalog:     catalog,
		specs:       specs,
		newProvider: newProvider,
	}
	if err := b.checkProviders(); err != nil {
		return err
	}

	var store storage.RunStore
	if opts.DBPath != "" {
		db, err := storage.OpenSqlite(opts.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		store = db
	}

	if opts.MetricsFile != "" {
		defer func() {
			if err := m.WriteTextfile(opts.MetricsFile); err != nil {
				logger.Warn("metrics not written", "path", opts.MetricsFile, "error", err)
			}
		}()
	}

	a, err := b.build(root)
	if err != nil {
		return err
	}

	logger.Info("agent run starting",
		"agent", root.Name,
		"model", root.Model,
		"tools", a.Tools(),
	)

	start := time.Now()
	steps := a.Iter(query)
	_, err = agent.Observe(ctx, &countingSource{src: steps, record: m.RecordStep}, logger)
	usage := steps.Usage()
	if err != nil {
		m.RecordRun(root.Name, "error", time.Since(start), usage.PromptTokens, usage.CompletionTokens)
		return fmt.Errorf("agent %s: %w", root.Name, err)
	}

	result := steps.Result()
	m.RecordRun(root.Name, "ok", time.Since(start), result.Usage.PromptTokens, result.Usage.CompletionTokens)

	artifacts, err := storage.NewArtifactWriter(settings.OutputDir).
		Write(result.Output, root.OutputType == config.OutputJSON, result.Messages)
	if err != nil {
		return err
	}
	if artifacts.RawJSONFallback {
		logger.Warn("answer holds no JSON document, written as is", "path", artifacts.OutputPath)
	}

	if store != nil {
		record := storage.NewRunRecord(root.Name, root.Model, query)
		record.Output = result.Output
		record.Usage = result.Usage
		record.Requests = result.Requests
		if err := store.SaveRun(ctx, record, result.Messages); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		logger.Info("run recorded", "run_id", record.ID, "db", opts.DBPath)
	}

	logger.Info("usage",
		"requests", result.Requests,
		"input_tokens", result.Usage.PromptTokens,
		"output_tokens", result.Usage.CompletionTokens,
		"total_tokens", result.Usage.TotalTokens,
	)

	fmt.Fprintln(out, result.Output)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Output:   %s\n", artifacts.OutputPath)
	fmt.Fprintf(out, "Messages: %s\n", artifacts.MessagesPath)
	return nil
}

// countingSource reports the kind of every step it passes on.
type countingSource struct {
	src    agent.StepSource
	record func(kind string)
}

func (c *countingSource) Next(ctx context.Context) (agent.Step, error) {
	step, err := c.src.Next(ctx)
	if err == nil {
		c.record(string(step.Kind()))
	}
	return step, err
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
