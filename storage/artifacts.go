// Run artifacts on disk.
//
// Each run writes two files sharing one timestamp:
//
//	output_<timestamp>.md      final answer (.json when JSON output is requested)
//	messages_<timestamp>.json  the whole conversation as an indented JSON array

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsonutil "github.com/richinex/quill/internal/json"
	"github.com/richinex/quill/llm"
)

// TimestampLayout names artifact files.
const TimestampLayout = "2006-01-02T15:04:05"

// Artifacts are the files written for one run.
type Artifacts struct {
	OutputPath   string
	MessagesPath string
	// RawJSONFallback is set when JSON output was requested but the answer
	// held no JSON document, so the answer was written as is.
	RawJSONFallback bool
}

// ArtifactWriter writes run artifacts into a directory.
type ArtifactWriter struct {
	dir string
	now func() time.Time
}

// NewArtifactWriter creates a writer for dir. The directory is created on first write.
func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir, now: time.Now}
}

// Write stores the final answer and the conversation. With jsonOutput the
// answer's JSON document is extracted and indented.
func (w *ArtifactWriter) Write(output string, jsonOutput bool, messages []llm.ChatMessage) (Artifacts, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return Artifacts{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := w.now().Format(TimestampLayout)
	var artifacts Artifacts

	ext, body := ".md", output
	if jsonOutput {
		ext = ".json"
		if pretty, err := jsonutil.Pretty(output); err == nil {
			body = pretty
		} else {
			artifacts.RawJSONFallback = true
		}
	}

	artifacts.OutputPath = filepath.Join(w.dir, "output_"+stamp+ext)
	if err := os.WriteFile(artifacts.OutputPath, []byte(body), 0644); err != nil {
		return Artifacts{}, fmt.Errorf("failed to write output: %w", err)
	}

	if messages == nil {
		messages = []llm.ChatMessage{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return Artifacts{}, fmt.Errorf("failed to encode messages: %w", err)
	}
	artifacts.MessagesPath = filepath.Join(w.dir, "messages_"+stamp+".json")
	if err := os.WriteFile(artifacts.MessagesPath, data, 0644); err != nil {
		return Artifacts{}, fmt.Errorf("failed to write messages: %w", err)
	}

	return artifacts, nil
}
