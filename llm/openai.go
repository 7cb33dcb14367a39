// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Reassembly of streamed tool call fragments

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, settings Settings) *OpenAIProvider {
	return NewOpenAIProviderWithBaseURL(apiKey, model, "", settings)
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider talking to an
// OpenAI-compatible endpoint. An empty baseURL keeps the official API.
func NewOpenAIProviderWithBaseURL(apiKey, model, baseURL string, settings Settings) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if settings.HTTPClient != nil {
		config.HTTPClient = settings.HTTPClient
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(settings.MaxTokens),
		temperature: settings.Temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Stream sends a streaming chat completion request with tool definitions.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request, events chan<- StreamEvent) (LLMResponse, error) {
	if len(req.Builtins) > 0 {
		slog.Default().Warn("builtin tools are not supported by the chat completions API, ignoring",
			"provider", p.Name(), "builtins", req.Builtins)
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            convertToOpenAIMessagesWithTools(req.Messages),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
		Tools:               convertToOpenAITools(req.Tools),
		Stream:              true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, oaiReq)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var (
		resp     LLMResponse
		content  strings.Builder
		thinking strings.Builder
		parts    = newPartIndex()
		calls    []*openAIToolCall
	)

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return LLMResponse{}, fmt.Errorf("stream recv failed: %w", err)
		}

		// Capture token usage from final chunk
		if response.Usage != nil {
			resp.Usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		var out []StreamEvent
		if delta.ReasoningContent != "" {
			index, started := parts.get("thinking")
			if started {
				out = append(out, PartStart{Index: index, Kind: PartThinking})
			}
			thinking.WriteString(delta.ReasoningContent)
			out = append(out, PartDelta{Index: index, Delta: ThinkingDelta{Text: delta.ReasoningContent}})
		}
		if delta.Content != "" {
			index, started := parts.get("text")
			if started {
				out = append(out, PartStart{Index: index, Kind: PartText})
			}
			content.WriteString(delta.Content)
			out = append(out, PartDelta{Index: index, Delta: TextDelta{Text: delta.Content}})
		}
		for _, tc := range delta.ToolCalls {
			slot := 0
			if tc.Index != nil {
				slot = *tc.Index
			}
			for len(calls) <= slot {
				calls = append(calls, &openAIToolCall{})
			}
			call := calls[slot]
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name += tc.Function.Name
			}

			index, started := parts.get(fmt.Sprintf("tool:%d", slot))
			if started {
				out = append(out, PartStart{Index: index, Kind: PartToolCall, ToolName: call.name})
			}
			if tc.Function.Arguments != "" {
				call.arguments.WriteString(tc.Function.Arguments)
				out = append(out, PartDelta{Index: index, Delta: ToolCallDelta{Fragment: tc.Function.Arguments}})
			}
		}

		for _, ev := range out {
			if err := emit(ctx, events, ev); err != nil {
				return LLMResponse{}, err
			}
		}
	}

	resp.Content = content.String()
	resp.Thinking = thinking.String()
	for _, call := range calls {
		args := call.arguments.String()
		if args == "" {
			args = "{}"
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        call.id,
			Name:      call.name,
			Arguments: []byte(args),
		})
	}
	return resp, nil
}

// openAIToolCall collects the fragments of one streamed tool call.
type openAIToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

// partIndex hands out part indices in order of first appearance.
type partIndex struct {
	next    int
	indices map[string]int
}

func newPartIndex() *partIndex {
	return &partIndex{indices: make(map[string]int)}
}

// get returns the index for key and whether this call allocated it.
func (p *partIndex) get(key string) (int, bool) {
	if index, ok := p.indices[key]; ok {
		return index, false
	}
	index := p.next
	p.indices[key] = index
	p.next++
	return index, true
}

// convertToOpenAIMessagesWithTools handles tool calls and tool responses.
func convertToOpenAIMessagesWithTools(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		// Handle tool calls from assistant
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		// Handle tool response
		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		result[i] = oaiMsg
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
