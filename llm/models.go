// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
	ToolName   string     `json:"tool_name,omitempty"`    // For tool result messages (Gemini matches on name)

	// Thinking carries reasoning content returned alongside an assistant turn.
	Thinking string `json:"thinking,omitempty"`
	// ThinkingSignature must be echoed back to Anthropic with the thinking block.
	ThinkingSignature string `json:"thinking_signature,omitempty"`
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// BuiltinTool is a capability executed by the model provider rather than locally.
type BuiltinTool string

// BuiltinWebSearch lets the provider search the web on the model's behalf.
const BuiltinWebSearch BuiltinTool = "web_search"

// ParseBuiltinTool validates a builtin tool name.
func ParseBuiltinTool(name string) (BuiltinTool, bool) {
	switch BuiltinTool(name) {
	case BuiltinWebSearch:
		return BuiltinWebSearch, true
	default:
		return "", false
	}
}

// Request is a single model request: the conversation so far plus what the
// model may call.
type Request struct {
	Messages []ChatMessage
	Tools    []ToolDefinition
	Builtins []BuiltinTool
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// ToolResultMessage creates a tool result message answering call.
func ToolResultMessage(call ToolCall, content string) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content           string
	Thinking          string
	ThinkingSignature string
	ToolCalls         []ToolCall // Tool calls requested by the LLM
	Usage             *TokenUsage
}

// AssistantMessage converts the response into the assistant turn that is
// appended to the conversation.
func (r LLMResponse) AssistantMessage() ChatMessage {
	return ChatMessage{
		Role:              RoleAssistant,
		Content:           r.Content,
		ToolCalls:         r.ToolCalls,
		Thinking:          r.Thinking,
		ThinkingSignature: r.ThinkingSignature,
	}
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// Add accumulates other into u. A nil other is ignored.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
