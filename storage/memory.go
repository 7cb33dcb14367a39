// In-memory run history.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/richinex/quill/llm"
)

type storedRun struct {
	record   RunRecord
	messages []llm.ChatMessage
}

// InMemoryStorage implements RunStore using an in-memory map.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu   sync.RWMutex
	runs map[string]storedRun
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		runs: make(map[string]storedRun),
	}
}

// SaveRun stores a run and its conversation.
func (s *InMemoryStorage) SaveRun(ctx context.Context, run RunRecord, messages []llm.ChatMessage) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Make a copy to avoid external mutations
	copied := make([]llm.ChatMessage, len(messages))
	copy(copied, messages)
	s.runs[run.ID] = storedRun{record: run, messages: copied}
	return nil
}

// GetRun returns the run with id.
func (s *InMemoryStorage) GetRun(ctx context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.runs[id]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return stored.record, nil
}

// LoadMessages returns the conversation of a run.
func (s *InMemoryStorage) LoadMessages(ctx context.Context, id string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	// Return a copy to avoid external mutations
	copied := make([]llm.ChatMessage, len(stored.messages))
	copy(copied, stored.messages)
	return copied, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryStorage) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]RunRecord, 0, len(s.runs))
	for _, stored := range s.runs {
		runs = append(runs, stored.record)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// DeleteRun removes a run.
func (s *InMemoryStorage) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	return nil
}

// Verify InMemoryStorage implements RunStore
var _ RunStore = (*InMemoryStorage)(nil)
