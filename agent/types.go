// Package agent runs a model against a toolset and exposes the run as a
// sequence of steps.
//
// Contains the step types a run produces.
package agent

import (
	"context"
	"sync"

	"github.com/richinex/quill/llm"
)

// StepKind labels a Step for logging and metrics.
type StepKind string

const (
	KindUserPrompt   StepKind = "user-prompt"
	KindModelRequest StepKind = "model-request"
	KindToolCall     StepKind = "tool-call"
	KindUnknown      StepKind = "unknown"
)

// Step is one stage of a run. The concrete type is UserPromptStep,
// *ModelRequestStep, ToolCallStep or UnknownStep.
type Step interface {
	Kind() StepKind
	step()
}

// UserPromptStep opens a run with the query as given.
type UserPromptStep struct {
	Prompt string
}

// ToolCallStep holds the tool invocations the model asked for, in order.
type ToolCallStep struct {
	Calls []llm.ToolCall
}

// UnknownStep stands for a step this package cannot classify. Type is a
// label for diagnostics only.
type UnknownStep struct {
	Type string
}

// StreamFunc produces one model response, sending events as they arrive.
// It must not close events.
type StreamFunc func(ctx context.Context, events chan<- llm.StreamEvent) (llm.LLMResponse, error)

// ModelRequestStep is a single model request. Its events are read through
// Stream; a run that advances past an unopened step opens and drains it.
type ModelRequestStep struct {
	Request llm.Request

	produce StreamFunc

	mu     sync.Mutex
	stream *EventStream
}

// NewModelRequestStep creates a step whose response comes from produce.
func NewModelRequestStep(req llm.Request, produce StreamFunc) *ModelRequestStep {
	return &ModelRequestStep{Request: req, produce: produce}
}

// Stream opens the response stream. The request is made once; later calls
// return the same stream and ignore ctx.
func (s *ModelRequestStep) Stream(ctx context.Context) *EventStream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		s.stream = newEventStream(ctx, s.produce)
	}
	return s.stream
}

// response waits for the request to finish and returns its outcome.
func (s *ModelRequestStep) response(ctx context.Context) (llm.LLMResponse, error) {
	stream := s.Stream(ctx)
	stream.Close()
	return stream.resp, stream.Err()
}

func (UserPromptStep) Kind() StepKind    { return KindUserPrompt }
func (*ModelRequestStep) Kind() StepKind { return KindModelRequest }
func (ToolCallStep) Kind() StepKind      { return KindToolCall }
func (UnknownStep) Kind() StepKind       { return KindUnknown }

func (UserPromptStep) step()    {}
func (*ModelRequestStep) step() {}
func (ToolCallStep) step()      {}
func (UnknownStep) step()       {}
