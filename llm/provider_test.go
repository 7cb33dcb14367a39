package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// redirectTransport sends every request to target, keeping path and query.
type redirectTransport struct {
	target *url.URL
}

func (t redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	req.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func redirectClient(t *testing.T, server *httptest.Server) *http.Client {
	t.Helper()
	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Transport: redirectTransport{target: target}}
}

func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func unauthorizedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key","type":"authentication_error"}}`)
	}))
	t.Cleanup(server.Close)
	return server
}

// collect runs Stream and returns the events it emitted.
func collect(t *testing.T, p Provider, req Request) ([]StreamEvent, LLMResponse, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan StreamEvent, 64)
	resp, err := p.Stream(ctx, req, events)
	close(events)

	var got []StreamEvent
	for ev := range events {
		got = append(got, ev)
	}
	return got, resp, err
}

func userRequest() Request {
	return Request{Messages: []ChatMessage{UserMessage("test")}}
}

// TestOpenAIErrorNoAPIKeyLeak verifies OpenAI errors don't contain API keys
func TestOpenAIErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-test-invalid-key-12345xyz"
	server := unauthorizedServer(t)
	provider := NewOpenAIProviderWithBaseURL(testKey, "gpt-4o", server.URL+"/v1", Settings{MaxTokens: 100})

	_, _, err := collect(t, provider, userRequest())
	if err == nil {
		t.Fatal("expected error with invalid API key")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("OpenAI error message leaked API key: %v", errStr)
	}
	if strings.Contains(errStr, "Authorization:") {
		t.Errorf("OpenAI error exposed Authorization header: %v", errStr)
	}
}

// TestAnthropicErrorNoAPIKeyLeak verifies Anthropic errors don't contain API keys
func TestAnthropicErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-ant-REDACTED"
	server := unauthorizedServer(t)
	provider := NewAnthropicProvider(testKey, ModelAnthropicClaudeSonnet4, Settings{
		MaxTokens:  100,
		HTTPClient: redirectClient(t, server),
	})

	_, _, err := collect(t, provider, userRequest())
	if err == nil {
		t.Fatal("expected error with invalid API key")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Anthropic error message leaked API key: %v", errStr)
	}
	if strings.Contains(errStr, "x-api-key:") || strings.Contains(errStr, "X-API-Key:") {
		t.Errorf("Anthropic error exposed API key header: %v", errStr)
	}
}

// TestGeminiErrorNoAPIKeyLeak verifies Gemini errors don't contain API keys
func TestGeminiErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "test-invalid-key-12345xyz"
	server := unauthorizedServer(t)
	provider := NewGeminiProvider(testKey, ModelGeminiFlash25, Settings{
		MaxTokens:  100,
		HTTPClient: redirectClient(t, server),
	})

	_, _, err := collect(t, provider, userRequest())
	if err == nil {
		t.Fatal("expected error with invalid API key")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Gemini error message leaked API key: %v", errStr)
	}
	// Gemini uses x-goog-api-key header
	if strings.Contains(errStr, "x-goog-api-key:") {
		t.Errorf("Gemini error exposed API key header: %v", errStr)
	}
}

// TestGeminiInitErrorPreserved verifies Gemini returns initialization errors
func TestGeminiInitErrorPreserved(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	provider := NewGeminiProvider("", ModelGeminiFlash25, Settings{MaxTokens: 100})

	_, _, err := collect(t, provider, userRequest())
	if err == nil {
		t.Fatal("expected initialization error to be returned, got nil")
	}
	if !strings.Contains(err.Error(), "failed to initialize") {
		t.Errorf("expected initialization error, got: %v", err)
	}
}

func TestOpenAIStreamEvents(t *testing.T) {
	chunks := []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"add_todo","arguments":""}}]}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"task\":"}}]}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`,
	}
	var body strings.Builder
	for _, c := range chunks {
		body.WriteString("data: " + c + "\n\n")
	}
	body.WriteString("data: [DONE]\n\n")

	server := sseServer(t, body.String())
	provider := NewOpenAIProviderWithBaseURL("sk-test", "gpt-4o", server.URL+"/v1", Settings{MaxTokens: 100})

	events, resp, err := collect(t, provider, userRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	want := []StreamEvent{
		PartStart{Index: 0, Kind: PartText},
		PartDelta{Index: 0, Delta: TextDelta{Text: "Hel"}},
		PartDelta{Index: 0, Delta: TextDelta{Text: "lo"}},
		PartStart{Index: 1, Kind: PartToolCall, ToolName: "add_todo"},
		PartDelta{Index: 1, Delta: ToolCallDelta{Fragment: `{"task":`}},
		PartDelta{Index: 1, Delta: ToolCallDelta{Fragment: `"x"}`}},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %#v", len(events), len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %#v, want %#v", i, events[i], want[i])
		}
	}

	if resp.Content != "Hello" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello")
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "add_todo" || string(call.Arguments) != `{"task":"x"}` {
		t.Errorf("unexpected tool call: %+v", call)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("Usage = %+v, want total 7", resp.Usage)
	}
}

func TestOpenAIStreamEmptyArguments(t *testing.T) {
	body := `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"list_todos","arguments":""}}]}}]}` +
		"\n\ndata: [DONE]\n\n"
	server := sseServer(t, body)
	provider := NewOpenAIProviderWithBaseURL("sk-test", "gpt-4o", server.URL+"/v1", Settings{MaxTokens: 100})

	_, resp, err := collect(t, provider, userRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if len(resp.ToolCalls) != 1 || string(resp.ToolCalls[0].Arguments) != "{}" {
		t.Errorf("expected empty arguments to become {}, got %+v", resp.ToolCalls)
	}
}

func TestAnthropicStreamText(t *testing.T) {
	sse := func(event, data string) string {
		return "event: " + event + "\ndata: " + data + "\n\n"
	}
	body := sse("message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`) +
		sse("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`) +
		sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"a"}}`) +
		sse("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"b"}}`) +
		sse("content_block_stop", `{"type":"content_block_stop","index":0}`) +
		sse("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`) +
		sse("message_stop", `{"type":"message_stop"}`)

	server := sseServer(t, body)
	provider := NewAnthropicProvider("sk-ant-test", ModelAnthropicClaudeSonnet45, Settings{
		MaxTokens:  100,
		HTTPClient: redirectClient(t, server),
	})

	events, resp, err := collect(t, provider, userRequest())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	want := []StreamEvent{
		PartStart{Index: 0, Kind: PartText},
		PartDelta{Index: 0, Delta: TextDelta{Text: "a"}},
		PartDelta{Index: 0, Delta: TextDelta{Text: "b"}},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %#v", len(events), len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %#v, want %#v", i, events[i], want[i])
		}
	}
	if resp.Content != "ab" {
		t.Errorf("Content = %q, want %q", resp.Content, "ab")
	}
}

func TestStreamStopsOnCancelledContext(t *testing.T) {
	body := `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"x"}}]}` +
		"\n\ndata: [DONE]\n\n"
	server := sseServer(t, body)
	provider := NewOpenAIProviderWithBaseURL("sk-test", "gpt-4o", server.URL+"/v1", Settings{MaxTokens: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and never read: only ctx can release the provider.
	_, err := provider.Stream(ctx, userRequest(), make(chan StreamEvent))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func toolConversation() []ChatMessage {
	calls := []ToolCall{
		{ID: "call_1", Name: "add_todo", Arguments: []byte(`{"task":"a"}`)},
		{ID: "call_2", Name: "list_todos", Arguments: []byte(`{}`)},
	}
	return []ChatMessage{
		SystemMessage("be brief"),
		UserMessage("plan"),
		{Role: RoleAssistant, ToolCalls: calls},
		ToolResultMessage(calls[0], "Added: a"),
		ToolResultMessage(calls[1], "Todos:\n1. ○ a"),
		{Role: RoleAssistant, Content: "done"},
	}
}

func TestConvertToAnthropicMessagesFoldsToolResults(t *testing.T) {
	messages, system := convertToAnthropicMessagesWithTools(toolConversation())

	if system != "be brief" {
		t.Errorf("system = %q, want %q", system, "be brief")
	}
	// user, assistant(tool_use x2), user(tool_result x2), assistant
	if len(messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(messages))
	}
	if got := len(messages[1].Content); got != 2 {
		t.Errorf("assistant turn has %d blocks, want 2", got)
	}
	if got := len(messages[2].Content); got != 2 {
		t.Errorf("tool result turn has %d blocks, want 2", got)
	}
}

func TestConvertToGeminiMessagesFoldsToolResults(t *testing.T) {
	contents, system := convertToGeminiMessagesWithTools(toolConversation())

	if system != "be brief" {
		t.Errorf("system = %q, want %q", system, "be brief")
	}
	if len(contents) != 4 {
		t.Fatalf("got %d contents, want 4", len(contents))
	}
	results := contents[2].Parts
	if len(results) != 2 {
		t.Fatalf("tool result turn has %d parts, want 2", len(results))
	}
	if results[0].FunctionResponse == nil || results[0].FunctionResponse.Name != "add_todo" {
		t.Errorf("expected function response named add_todo, got %+v", results[0].FunctionResponse)
	}
	if got := results[0].FunctionResponse.Response["result"]; got != "Added: a" {
		t.Errorf("non-JSON tool output should be wrapped, got %v", got)
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	messages := convertToOpenAIMessagesWithTools(toolConversation())
	if len(messages) != 6 {
		t.Fatalf("got %d messages, want 6", len(messages))
	}
	if len(messages[2].ToolCalls) != 2 {
		t.Errorf("assistant message has %d tool calls, want 2", len(messages[2].ToolCalls))
	}
	if messages[3].ToolCallID != "call_1" {
		t.Errorf("tool message ToolCallID = %q, want call_1", messages[3].ToolCallID)
	}
	if convertToOpenAITools(nil) != nil {
		t.Error("no tools should convert to nil")
	}
}

func TestConvertBuiltinTools(t *testing.T) {
	defs := []ToolDefinition{{
		Name:        "add_todo",
		Description: "Add a todo",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"task": map[string]interface{}{"type": "string"}},
			"required":   []string{"task"},
		},
	}}
	builtins := []BuiltinTool{BuiltinWebSearch}

	anthropicTools := convertToAnthropicTools(defs, builtins)
	if len(anthropicTools) != 2 || anthropicTools[1].OfWebSearchTool20250305 == nil {
		t.Errorf("expected function tool plus web search, got %+v", anthropicTools)
	}

	geminiTools := convertToGeminiTools(defs, builtins)
	if len(geminiTools) != 2 || geminiTools[1].GoogleSearch == nil {
		t.Errorf("expected declarations plus GoogleSearch, got %+v", geminiTools)
	}
	if got := geminiTools[0].FunctionDeclarations[0].Parameters.Required; len(got) != 1 || got[0] != "task" {
		t.Errorf("required = %v, want [task]", got)
	}
}

func TestParseProviderType(t *testing.T) {
	tests := []struct {
		input   string
		want    ProviderType
		wantErr bool
	}{
		{"anthropic", ProviderAnthropic, false},
		{"OpenAI", ProviderOpenAI, false},
		{"google", ProviderGemini, false},
		{"gemini", ProviderGemini, false},
		{"mistral", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProviderType(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownProvider) {
					t.Errorf("expected ErrUnknownProvider, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuilderRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	if _, err := ProviderGemini.FromEnv(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	if _, err := ProviderAnthropic.APIKey(""); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	t.Setenv("GOOGLE_API_KEY", "alias-key")
	if got := ProviderGemini.LookupAPIKey(); got != "alias-key" {
		t.Errorf("LookupAPIKey = %q, want alias-key", got)
	}
}

func TestBuilderSettings(t *testing.T) {
	p, err := ProviderAnthropic.Model("claude-x").MaxTokens(1000).ThinkingBudget(2048).APIKey("k")
	if err != nil {
		t.Fatal(err)
	}
	anthropicProvider := p.(*AnthropicProvider)
	if anthropicProvider.Model() != "claude-x" {
		t.Errorf("model = %q", anthropicProvider.Model())
	}
	if anthropicProvider.maxTokens <= anthropicProvider.thinkingBudget {
		t.Errorf("max tokens %d must exceed thinking budget %d",
			anthropicProvider.maxTokens, anthropicProvider.thinkingBudget)
	}
}
