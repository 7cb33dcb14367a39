package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/richinex/quill/storage"
)

// DefaultDBPath is where runs are recorded and history is read unless a
// database is named.
const DefaultDBPath = ".quill/runs.db"

const queryPreviewLen = 60

// History prints recorded runs from the database at dbPath. With a runID it
// prints that run's conversation, otherwise the newest runs up to limit.
func History(ctx context.Context, w io.Writer, dbPath, runID string, limit int) error {
	db, err := storage.OpenSqlite(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if runID != "" {
		return printRun(ctx, w, db, runID)
	}

	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs recorded in %s\n", dbPath)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAGENT\tMODEL\tCREATED\tTOKENS\tQUERY")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			run.ID,
			run.Agent,
			run.Model,
			run.CreatedAt.Local().Format(storage.TimestampLayout),
			run.Usage.TotalTokens,
			truncateString(run.Query, queryPreviewLen),
		)
	}
	return tw.Flush()
}

func printRun(ctx context.Context, w io.Writer, store storage.RunStore, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	messages, err := store.LoadMessages(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  agent:    %s (%s)\n", run.Agent, run.Model)
	fmt.Fprintf(w, "  created:  %s\n", run.CreatedAt.Local().Format(storage.TimestampLayout))
	fmt.Fprintf(w, "  requests: %d, tokens: %d in / %d out\n",
		run.Requests, run.Usage.PromptTokens, run.Usage.CompletionTokens)
	fmt.Fprintln(w)

	for i, msg := range messages {
		fmt.Fprintf(w, "[%d] %s\n", i, msg.Role)
		if msg.Content != "" {
			fmt.Fprintf(w, "  %s\n", msg.Content)
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(w, "  -> %s(%s)\n", call.Name, string(call.Arguments))
		}
	}
	return nil
}
