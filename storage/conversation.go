// Package storage persists what agent runs produce: output artifacts on
// disk and a history of runs with their conversations.
//
// Information Hiding:
// - Storage backend implementation details hidden behind RunStore
// - Allows swapping between memory and SQLite without API changes
// - Each storage implementation encapsulates its own data structures

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/quill/llm"
)

// ErrRunNotFound is returned when a run ID is not in the store.
var ErrRunNotFound = errors.New("run not found")

// RunRecord summarizes one finished agent run.
type RunRecord struct {
	ID        string         `json:"id"`
	Agent     string         `json:"agent"`
	Model     string         `json:"model"`
	Query     string         `json:"query"`
	Output    string         `json:"output"`
	Usage     llm.TokenUsage `json:"usage"`
	Requests  int            `json:"requests"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRunRecord creates a record with a fresh ID, stamped now.
func NewRunRecord(agent, model, query string) RunRecord {
	return RunRecord{
		ID:        uuid.New().String(),
		Agent:     agent,
		Model:     model,
		Query:     query,
		CreatedAt: time.Now().UTC(),
	}
}

// RunStore defines the interface for storing run history.
type RunStore interface {
	// SaveRun stores a run and its conversation, replacing any run with the same ID.
	SaveRun(ctx context.Context, run RunRecord, messages []llm.ChatMessage) error

	// GetRun returns the run with id, or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (RunRecord, error)

	// LoadMessages returns the conversation of a run, or ErrRunNotFound.
	LoadMessages(ctx context.Context, id string) ([]llm.ChatMessage, error)

	// ListRuns returns up to limit runs, newest first. A limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// DeleteRun removes a run and its conversation. Deleting a missing run is not an error.
	DeleteRun(ctx context.Context, id string) error
}
