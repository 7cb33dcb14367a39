// Package json pulls a JSON document out of a model's final answer.
//
// Models asked for JSON often wrap it in a markdown fence or surround it
// with commentary. Extract finds the document; Pretty re-indents it for
// writing to disk.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Extract returns the JSON document contained in response. It tries, in
// order: the whole response, the body of a markdown code fence, and the
// outermost {...} or [...] span.
//
// Brace matching is positional: the first opening and last closing
// delimiter are taken, so commentary that itself contains braces can
// defeat it.
func Extract(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	body := stripCodeFence(trimmed)
	if json.Valid([]byte(body)) {
		return body, nil
	}

	for _, delims := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(body, delims[0])
		end := strings.LastIndex(body, delims[1])
		if start == -1 || end <= start {
			continue
		}
		candidate := body[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	preview := []rune(trimmed)
	if len(preview) > 100 {
		preview = append(preview[:100], []rune("...")...)
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", string(preview))
}

// stripCodeFence removes a surrounding ```json ... ``` or ``` ... ``` fence.
func stripCodeFence(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	rest := s[start+3:]
	// Drop the info string, e.g. "json".
	if nl := strings.IndexByte(rest, '\n'); nl != -1 && !strings.ContainsAny(rest[:nl], "{[") {
		rest = rest[nl+1:]
	}
	if end := strings.LastIndex(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// Pretty extracts the JSON document from response and indents it.
func Pretty(response string) (string, error) {
	raw, err := Extract(response)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return "", fmt.Errorf("failed to indent JSON: %w", err)
	}
	return buf.String(), nil
}

// Decode extracts the JSON document from response and unmarshals it into T.
func Decode[T any](response string) (T, error) {
	var result T
	raw, err := Extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}
