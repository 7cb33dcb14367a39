// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Streaming via official SDK iterator

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client         *genai.Client
	model          string
	maxTokens      int32
	temperature    float32
	thinkingBudget int32
	initErr        error // Stores client initialization error for deferred reporting
}

// NewGeminiProvider creates a new Gemini provider.
// If client initialization fails, the error is stored and returned on first use.
func NewGeminiProvider(apiKey, model string, settings Settings) *GeminiProvider {
	p := &GeminiProvider{
		model:          model,
		maxTokens:      int32(settings.MaxTokens),
		temperature:    settings.Temperature,
		thinkingBudget: int32(settings.ThinkingBudget),
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: settings.HTTPClient,
	})
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "google"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Stream sends a streaming GenerateContent request with tool declarations.
func (p *GeminiProvider) Stream(ctx context.Context, req Request, events chan<- StreamEvent) (LLMResponse, error) {
	if p.initErr != nil {
		return LLMResponse{}, p.initErr
	}
	if p.client == nil {
		return LLMResponse{}, fmt.Errorf("gemini client not initialized")
	}

	contents, systemInstruction := convertToGeminiMessagesWithTools(req.Messages)

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
		Tools:           convertToGeminiTools(req.Tools, req.Builtins),
	}
	if p.thinkingBudget > 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  genai.Ptr(p.thinkingBudget),
		}
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	var (
		resp     LLMResponse
		content  strings.Builder
		thinking strings.Builder
		parts    = newPartIndex()
	)

	// GenerateContentStream returns iter.Seq2[*GenerateContentResponse, error]
	for response, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
		if err != nil {
			return LLMResponse{}, fmt.Errorf("stream error: %w", err)
		}

		if response.UsageMetadata != nil {
			resp.Usage = &TokenUsage{
				PromptTokens:     uint32(response.UsageMetadata.PromptTokenCount),
				CompletionTokens: uint32(response.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      uint32(response.UsageMetadata.TotalTokenCount),
			}
		}

		if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
			continue
		}

		var out []StreamEvent
		for _, part := range response.Candidates[0].Content.Parts {
			switch {
			case part.FunctionCall != nil:
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				id := part.FunctionCall.ID
				if id == "" {
					id = part.FunctionCall.Name // Gemini matches responses by name
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: argsJSON,
				})
				index, _ := parts.get(fmt.Sprintf("tool:%d", len(resp.ToolCalls)))
				out = append(out,
					PartStart{Index: index, Kind: PartToolCall, ToolName: part.FunctionCall.Name},
					PartDelta{Index: index, Delta: ToolCallDelta{Fragment: string(argsJSON)}},
				)
			case part.Thought && part.Text != "":
				index, started := parts.get("thinking")
				if started {
					out = append(out, PartStart{Index: index, Kind: PartThinking})
				}
				thinking.WriteString(part.Text)
				out = append(out, PartDelta{Index: index, Delta: ThinkingDelta{Text: part.Text}})
			case part.Text != "":
				index, started := parts.get("text")
				if started {
					out = append(out, PartStart{Index: index, Kind: PartText})
				}
				content.WriteString(part.Text)
				out = append(out, PartDelta{Index: index, Delta: TextDelta{Text: part.Text}})
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
	return resp, nil
}

// convertToGeminiMessagesWithTools handles tool calls and tool responses.
// Consecutive tool results are folded into a single user turn.
func convertToGeminiMessagesWithTools(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemInstruction string
	lastWasToolResult := false

	for _, msg := range messages {
		isToolResult := msg.Role == RoleTool
		switch msg.Role {
		case RoleSystem:
			systemInstruction = msg.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				content := &genai.Content{Role: genai.RoleModel}
				if msg.Content != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
				}
				for _, tc := range msg.ToolCalls {
					var args map[string]any
					_ = json.Unmarshal(tc.Arguments, &args)
					call := &genai.FunctionCall{Name: tc.Name, Args: args}
					if tc.ID != tc.Name {
						call.ID = tc.ID
					}
					content.Parts = append(content.Parts, &genai.Part{FunctionCall: call})
				}
				contents = append(contents, content)
			} else {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
			}
		case RoleTool:
			var result map[string]any
			_ = json.Unmarshal([]byte(msg.Content), &result)
			if result == nil {
				result = map[string]any{"result": msg.Content}
			}
			name := msg.ToolName
			if name == "" {
				name = msg.ToolCallID
			}
			fr := &genai.FunctionResponse{Name: name, Response: result}
			if msg.ToolCallID != name {
				fr.ID = msg.ToolCallID
			}
			part := &genai.Part{FunctionResponse: fr}
			if lastWasToolResult {
				last := contents[len(contents)-1]
				last.Parts = append(last.Parts, part)
			} else {
				contents = append(contents, &genai.Content{
					Role:  genai.RoleUser, // Gemini expects tool results as user
					Parts: []*genai.Part{part},
				})
			}
		}
		lastWasToolResult = isToolResult
	}

	return contents, systemInstruction
}

// convertToGeminiTools converts tool definitions and builtins to Gemini format.
func convertToGeminiTools(tools []ToolDefinition, builtins []BuiltinTool) []*genai.Tool {
	var result []*genai.Tool

	if len(tools) > 0 {
		var declarations []*genai.FunctionDeclaration
		for _, t := range tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  convertToGeminiSchema(t.Parameters),
			})
		}
		result = append(result, &genai.Tool{FunctionDeclarations: declarations})
	}

	for _, b := range builtins {
		if b == BuiltinWebSearch {
			result = append(result, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		}
	}
	return result
}

// convertToGeminiSchema recursively converts a parameter schema to Gemini format.
func convertToGeminiSchema(params map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{
		Type: genai.TypeObject,
	}

	if t, ok := params["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}

	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if props, ok := params["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			propMap, ok := prop.(map[string]interface{})
			if !ok {
				continue
			}
			schema.Properties[name] = convertPropertyToGeminiSchema(propMap)
		}
	}

	return schema
}

// convertPropertyToGeminiSchema converts a single property to Gemini schema.
func convertPropertyToGeminiSchema(prop map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := prop["type"].(string); ok {
		schema.Type = mapToGeminiType(t)
	}
	if d, ok := prop["description"].(string); ok {
		schema.Description = d
	}

	// Gemini requires 'items' for arrays
	if schema.Type == genai.TypeArray {
		if items, ok := prop["items"].(map[string]interface{}); ok {
			schema.Items = convertPropertyToGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	}

	if schema.Type == genai.TypeObject {
		if props, ok := prop["properties"].(map[string]interface{}); ok {
			schema.Properties = make(map[string]*genai.Schema)
			for name, p := range props {
				if pMap, ok := p.(map[string]interface{}); ok {
					schema.Properties[name] = convertPropertyToGeminiSchema(pMap)
				}
			}
		}
	}

	return schema
}

// mapToGeminiType maps JSON schema type to Gemini type.
func mapToGeminiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// Verify GeminiProvider implements Provider
var _ Provider = (*GeminiProvider)(nil)
