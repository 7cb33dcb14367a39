// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Streaming via official SDK, accumulated into a full Message

package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client         anthropic.Client
	model          string
	maxTokens      int64
	temperature    float64
	thinkingBudget int64
}

// NewAnthropicProvider creates a new Anthropic provider.
// The SDK's own retries are disabled; settings.HTTPClient carries the retry policy.
func NewAnthropicProvider(apiKey, model string, settings Settings) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if settings.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(settings.HTTPClient))
	}

	return &AnthropicProvider{
		client:         anthropic.NewClient(opts...),
		model:          model,
		maxTokens:      int64(settings.MaxTokens),
		temperature:    float64(settings.Temperature),
		thinkingBudget: int64(settings.ThinkingBudget),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Stream sends a streaming Messages request and maps SDK events onto StreamEvent.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request, events chan<- StreamEvent) (LLMResponse, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return LLMResponse{}, fmt.Errorf("stream accumulate failed: %w", err)
		}

		var out StreamEvent
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			out = PartStart{
				Index:    int(eventVariant.Index),
				Kind:     anthropicPartKind(eventVariant.ContentBlock.Type),
				ToolName: eventVariant.ContentBlock.Name,
			}
		case anthropic.ContentBlockDeltaEvent:
			index := int(eventVariant.Index)
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				out = PartDelta{Index: index, Delta: TextDelta{Text: deltaVariant.Text}}
			case anthropic.ThinkingDelta:
				out = PartDelta{Index: index, Delta: ThinkingDelta{Text: deltaVariant.Thinking}}
			case anthropic.InputJSONDelta:
				out = PartDelta{Index: index, Delta: ToolCallDelta{Fragment: deltaVariant.PartialJSON}}
			}
		}

		if out != nil {
			if err := emit(ctx, events, out); err != nil {
				return LLMResponse{}, err
			}
		}
	}

	if stream.Err() != nil {
		return LLMResponse{}, fmt.Errorf("stream error: %w", stream.Err())
	}

	return anthropicResponse(message), nil
}

func (p *AnthropicProvider) params(req Request) anthropic.MessageNewParams {
	anthropicMessages, systemPrompt := convertToAnthropicMessagesWithTools(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  anthropicMessages,
		Tools:     convertToAnthropicTools(req.Tools, req.Builtins),
	}

	// Extended thinking requires the default temperature.
	if p.thinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: p.thinkingBudget},
		}
	} else {
		params.Temperature = anthropic.Float(p.temperature)
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	return params
}

// anthropicResponse extracts content, thinking and tool calls from an accumulated message.
func anthropicResponse(message anthropic.Message) LLMResponse {
	var resp LLMResponse
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Content += variant.Text
		case anthropic.ThinkingBlock:
			resp.Thinking += variant.Thinking
			resp.ThinkingSignature = variant.Signature
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(variant.Input)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: inputJSON,
			})
		}
	}

	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		resp.Usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}
	return resp
}

func anthropicPartKind(blockType string) PartKind {
	switch blockType {
	case "text":
		return PartText
	case "thinking", "redacted_thinking":
		return PartThinking
	case "tool_use", "server_tool_use":
		return PartToolCall
	default:
		return PartKind(blockType)
	}
}

// convertToAnthropicMessagesWithTools handles tool calls and tool responses.
// Consecutive tool results are folded into a single user turn.
func convertToAnthropicMessagesWithTools(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string
	lastWasToolResult := false

	for _, msg := range messages {
		isToolResult := msg.Role == RoleTool
		switch msg.Role {
		case RoleSystem:
			systemPrompt = msg.Content
		case RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case RoleAssistant:
			content := anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
			}
			if msg.Thinking != "" && msg.ThinkingSignature != "" {
				content.Content = append(content.Content, anthropic.NewThinkingBlock(msg.ThinkingSignature, msg.Thinking))
			}
			if msg.Content != "" {
				content.Content = append(content.Content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				_ = json.Unmarshal(tc.Arguments, &input)
				content.Content = append(content.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			if len(content.Content) > 0 {
				anthropicMessages = append(anthropicMessages, content)
			}
		case RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			if lastWasToolResult {
				last := &anthropicMessages[len(anthropicMessages)-1]
				last.Content = append(last.Content, block)
			} else {
				anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(block))
			}
		}
		lastWasToolResult = isToolResult
	}

	return anthropicMessages, systemPrompt
}

// convertToAnthropicTools converts tool definitions to Anthropic format.
func convertToAnthropicTools(tools []ToolDefinition, builtins []BuiltinTool) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools)+len(builtins))
	for _, t := range tools {
		// Extract properties and required from the full schema
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		required, _ := t.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	for _, b := range builtins {
		if b == BuiltinWebSearch {
			result = append(result, anthropic.ToolUnionParam{
				OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{},
			})
		}
	}
	return result
}

// Verify AnthropicProvider implements Provider
var _ Provider = (*AnthropicProvider)(nil)
