// Stream events emitted while a model response is being generated.
//
// Every provider maps its native streaming protocol onto these few shapes so
// that callers can observe a response without knowing which SDK produced it.

package llm

// PartKind labels the kind of content a response part carries.
type PartKind string

const (
	PartText     PartKind = "text"
	PartThinking PartKind = "thinking"
	PartToolCall PartKind = "tool-call"
)

// StreamEvent is one increment of a streamed model response.
// The concrete type is PartStart or PartDelta.
type StreamEvent interface {
	streamEvent()
}

// PartStart announces that a new response part begins at Index.
type PartStart struct {
	Index int
	Kind  PartKind
	// ToolName is set for tool-call parts when the provider reports it up front.
	ToolName string
}

// PartDelta carries a fragment of the part at Index.
type PartDelta struct {
	Index int
	Delta Delta
}

func (PartStart) streamEvent() {}
func (PartDelta) streamEvent() {}

// Delta is the payload of a PartDelta.
// The concrete type is ThinkingDelta, TextDelta or ToolCallDelta.
type Delta interface {
	delta()
}

// ThinkingDelta is a fragment of model reasoning.
type ThinkingDelta struct {
	Text string
}

// TextDelta is a fragment of the visible answer.
type TextDelta struct {
	Text string
}

// ToolCallDelta is an opaque fragment of tool call arguments.
type ToolCallDelta struct {
	Fragment string
}

func (ThinkingDelta) delta() {}
func (TextDelta) delta()     {}
func (ToolCallDelta) delta() {}
