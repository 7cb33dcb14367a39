// Package main provides the quill CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/richinex/quill/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	logJSON  bool
	logLevel string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Run LLM agents defined in YAML specs",
		Long: `Run LLM agents defined in YAML spec files.

Each run streams the agent's steps to the log, then writes the final answer
and the full conversation to the output directory. Agents may call other
agents named in their agent_tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := cli.SetupLogger(os.Stderr, logJSON, logLevel, verbose)
			return err
		},
	}

	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var (
		query string
		opts  cli.Options
	)

	cmd := &cobra.Command{
		Use:   "run <agent>",
		Short: "Run an agent on a query",
		Long: `Run the agent whose spec is <agent>.yml (or .yaml) in the agents directory.
<agent> may also be a path to a spec file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return cli.Run(ctx, args[0], query, opts)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Query for the agent")
	cmd.Flags().StringVar(&opts.AgentsDir, "agents-dir", "", "Agents directory (default $QUILL_AGENTS_DIR or ./agents)")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", "", "Output directory (default $QUILL_OUTPUT_DIR or ./outputs)")
	cmd.Flags().IntVarP(&opts.MaxIter, "max-iter", "m", 0, "Maximum model requests per run (default $AGENT_MAX_ITERATIONS or 50)")
	cmd.Flags().Uint32Var(&opts.ToolRetries, "tool-retries", 1, "Attempts per tool call")
	cmd.Flags().StringVar(&opts.DBPath, "db", cli.DefaultDBPath, "Record the run in this SQLite database (empty disables)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}

func agentsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agent specs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListAgents(os.Stdout, dir)
		},
	}

	cmd.Flags().StringVar(&dir, "agents-dir", "", "Agents directory (default $QUILL_AGENTS_DIR or ./agents)")
	return cmd
}

func toolsCmd() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List toolsets agent specs can use",
		Run: func(cmd *cobra.Command, args []string) {
			cli.ListTools(os.Stdout, detailed)
		},
	}

	cmd.Flags().BoolVarP(&detailed, "detailed", "V", false, "Show each tool and its parameters")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return cli.History(context.Background(), os.Stdout, dbPath, runID, limit)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", cli.DefaultDBPath, "SQLite database with recorded runs")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	return cmd
}
