package agent

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/richinex/quill/llm"
)

// emptyToolOutput replaces an empty tool result; some providers reject empty content.
const emptyToolOutput = "(empty result)"

// Result is the outcome of a finished run.
type Result struct {
	// Output is the text of the final model response.
	Output string
	// Messages is the whole conversation, system message first.
	Messages []llm.ChatMessage
	// Usage covers this run and every sub-agent it called.
	Usage llm.TokenUsage
	// Requests counts model requests, sub-agents included.
	Requests int
}

// Run is a single query execution. Steps come from Next in this order:
// a UserPromptStep, then a ModelRequestStep, then a ToolCallStep and another
// ModelRequestStep for as long as the model asks for tools.
//
// A Run is not safe for concurrent use.
type Run struct {
	agent *Agent
	query string

	messages []llm.ChatMessage
	usage    *Usage
	requests int
	last     Step
	output   string
	done     bool
	err      error
}

// Next advances the run and returns the next step. It returns io.EOF once
// the model has answered without tool calls. Any other error ends the run
// and is returned again by later calls.
func (r *Run) Next(ctx context.Context) (Step, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return nil, err
	}

	step, err := r.advance(ctx)
	if err == io.EOF {
		r.done = true
		return nil, io.EOF
	}
	if err != nil {
		r.err = err
		return nil, err
	}
	r.last = step
	return step, nil
}

func (r *Run) advance(ctx context.Context) (Step, error) {
	switch last := r.last.(type) {
	case nil:
		r.messages = []llm.ChatMessage{
			llm.SystemMessage(r.agent.config.Instructions),
			llm.UserMessage(r.query),
		}
		return UserPromptStep{Prompt: r.query}, nil

	case UserPromptStep:
		return r.request()

	case *ModelRequestStep:
		resp, err := last.response(ctx)
		if err != nil {
			return nil, fmt.Errorf("model request failed: %w", err)
		}
		r.messages = append(r.messages, resp.AssistantMessage())
		r.usage.AddRequest(resp.Usage)
		if len(resp.ToolCalls) == 0 {
			r.output = resp.Content
			return nil, io.EOF
		}
		return ToolCallStep{Calls: resp.ToolCalls}, nil

	case ToolCallStep:
		if err := r.dispatch(ctx, last.Calls); err != nil {
			return nil, err
		}
		return r.request()

	default:
		return nil, fmt.Errorf("cannot advance past %s step", last.Kind())
	}
}

// request builds the next model request from the conversation so far.
func (r *Run) request() (Step, error) {
	limit := r.agent.config.maxIterations()
	if r.requests >= limit {
		return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, limit)
	}
	r.requests++

	req := llm.Request{
		Messages: slices.Clone(r.messages),
		Tools:    r.agent.registry.Definitions(),
		Builtins: r.agent.config.Builtins,
	}
	provider := r.agent.provider
	timeout := r.agent.config.RequestTimeout

	return NewModelRequestStep(req, func(ctx context.Context, events chan<- llm.StreamEvent) (llm.LLMResponse, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return provider.Stream(ctx, req, events)
	}), nil
}

// dispatch runs the calls one after another and appends their results.
// Tool failures are reported to the model; only cancellation stops the run.
func (r *Run) dispatch(ctx context.Context, calls []llm.ToolCall) error {
	toolCtx := ContextWithUsage(ctx, r.usage)
	for _, call := range calls {
		result, err := r.agent.executor.Dispatch(toolCtx, r.agent.registry, call.Name, call.Arguments)
		if err != nil {
			return fmt.Errorf("tool %s: %w", call.Name, err)
		}

		content := result.Content()
		if content == "" {
			content = emptyToolOutput
		}
		r.agent.logger.Debug("tool result",
			"agent", r.agent.config.Name,
			"tool", call.Name,
			"success", result.Success(),
			"output", truncateString(content, maxTextLogLen),
		)
		r.messages = append(r.messages, llm.ToolResultMessage(call, content))
	}
	return nil
}

// Done reports whether the run finished with a final answer.
func (r *Run) Done() bool {
	return r.done
}

// Messages returns a copy of the conversation so far.
func (r *Run) Messages() []llm.ChatMessage {
	return slices.Clone(r.messages)
}

// Usage returns the accumulated usage so far.
func (r *Run) Usage() llm.TokenUsage {
	return r.usage.Tokens()
}

// Result returns the outcome of the run. Output is empty until Next has
// returned io.EOF.
func (r *Run) Result() Result {
	return Result{
		Output:   r.output,
		Messages: slices.Clone(r.messages),
		Usage:    r.usage.Tokens(),
		Requests: r.usage.Requests(),
	}
}
