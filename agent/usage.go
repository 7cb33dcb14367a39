package agent

import (
	"context"
	"sync"

	"github.com/richinex/quill/llm"
)

// Usage accumulates token usage across the model requests of a run,
// including those made by sub-agents it calls.
type Usage struct {
	mu       sync.Mutex
	tokens   llm.TokenUsage
	requests int
}

// AddRequest records one model request.
func (u *Usage) AddRequest(tokens *llm.TokenUsage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests++
	u.tokens.Add(tokens)
}

// Merge adds the totals of another run.
func (u *Usage) Merge(tokens llm.TokenUsage, requests int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests += requests
	u.tokens.Add(&tokens)
}

// Tokens returns the accumulated token counts.
func (u *Usage) Tokens() llm.TokenUsage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tokens
}

// Requests returns the number of model requests recorded.
func (u *Usage) Requests() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.requests
}

type usageKey struct{}

// ContextWithUsage returns a context carrying u, so tools that run nested
// agents can report their usage to the calling run.
func ContextWithUsage(ctx context.Context, u *Usage) context.Context {
	return context.WithValue(ctx, usageKey{}, u)
}

// UsageFromContext returns the Usage carried by ctx, or nil.
func UsageFromContext(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}
