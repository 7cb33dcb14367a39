package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testClient() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
}

func TestHTTPToolGetAndPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		io.WriteString(w, r.Method+":"+string(body))
	}))
	defer server.Close()

	tool := NewHTTPTool(testClient())
	ctx := context.Background()

	result, err := tool.Execute(ctx, json.RawMessage(`{"url":"`+server.URL+`"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success() || !strings.HasSuffix(result.Output, "GET:") {
		t.Errorf("GET result = %+v", result)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"url":"`+server.URL+`","method":"post","body":"hi"}`))
	if !result.Success() || !strings.HasSuffix(result.Output, "POST:hi") {
		t.Errorf("POST result = %+v", result)
	}
}

func TestHTTPToolErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	result, _ := NewHTTPTool(testClient()).Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`))
	if result.Success() || !strings.Contains(result.Error.Error(), "404") {
		t.Errorf("expected HTTP error, got %+v", result)
	}
}

func TestHTTPToolTruncatesLargeBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("a", 100))
	}))
	defer server.Close()

	tool := NewHTTPTool(testClient())
	tool.maxBodyBytes = 10

	result, _ := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`))
	if !strings.Contains(result.Output, strings.Repeat("a", 10)+"\n\n[response truncated]") {
		t.Errorf("expected truncated body, got %q", result.Output)
	}
	if strings.Contains(result.Output, strings.Repeat("a", 11)) {
		t.Error("body exceeds limit")
	}
}

func TestHTTPToolValidate(t *testing.T) {
	tool := NewHTTPTool(nil)
	tests := []struct {
		args    string
		wantErr bool
	}{
		{`{"url":"https://example.com"}`, false},
		{`{"url":"https://example.com","method":"POST"}`, false},
		{`{"url":""}`, true},
		{`{"url":"https://example.com","method":"DELETE"}`, true},
		{`[]`, true},
	}
	for _, tt := range tests {
		if err := tool.Validate(json.RawMessage(tt.args)); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%s) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
	}
}

func TestHTTPToolDomainAllowlist(t *testing.T) {
	tool := NewHTTPTool(nil).WithAllowedDomains([]string{"example.com"})

	allowed := []string{"https://example.com/a", "https://api.example.com"}
	for _, u := range allowed {
		if !tool.isDomainAllowed(u) {
			t.Errorf("%s should be allowed", u)
		}
	}
	denied := []string{"https://evil.com", "https://example.com.evil.com", "https://notexample.com"}
	for _, u := range denied {
		if tool.isDomainAllowed(u) {
			t.Errorf("%s should be denied", u)
		}
	}
}
