// Run observation.
//
// Observe consumes the steps of a run and logs what happens in each one:
// the prompt, the streamed thinking and text of every model request, and
// the tool calls the model makes.

package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/richinex/quill/llm"
)

const (
	maxThinkingLogLen = 500
	maxTextLogLen     = 200
)

// StepSource yields the steps of a run until io.EOF. *Run implements it.
type StepSource interface {
	Next(ctx context.Context) (Step, error)
}

// Observe drains src, logging each step, and returns the number of steps
// consumed. Steps it does not recognize are logged and skipped. The first
// error from src or from a model request stream is returned as is.
func Observe(ctx context.Context, src StepSource, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	steps := 0
	for {
		step, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return steps, err
		}
		steps++
		log := logger.With("step", steps)

		switch s := step.(type) {
		case UserPromptStep:
			log.Info("user prompt", "prompt", s.Prompt)
		case *ModelRequestStep:
			if err := observeModelRequest(ctx, s, log); err != nil {
				return steps, err
			}
		case ToolCallStep:
			for _, call := range s.Calls {
				log.Info("tool call", "tool", call.Name, "args", string(call.Arguments))
			}
		case UnknownStep:
			log.Warn("unrecognized step", "type", s.Type)
		default:
			log.Warn("unrecognized step", "type", fmt.Sprintf("%T", step))
		}
	}

	logger.Info("run finished", "steps", steps)
	return steps, nil
}

func observeModelRequest(ctx context.Context, step *ModelRequestStep, log *slog.Logger) error {
	log.Info("model request", "messages", len(step.Request.Messages))

	stream := step.Stream(ctx)
	defer stream.Close()

	var thinking, text strings.Builder
	for stream.Next() {
		switch ev := stream.Event().(type) {
		case llm.PartStart:
			log.Info("part start", "index", ev.Index, "kind", string(ev.Kind))
		case llm.PartDelta:
			switch d := ev.Delta.(type) {
			case llm.ThinkingDelta:
				thinking.WriteString(d.Text)
			case llm.TextDelta:
				text.WriteString(d.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}

	if thinking.Len() > 0 {
		log.Info("thinking", "text", truncateString(thinking.String(), maxThinkingLogLen))
	}
	if text.Len() > 0 {
		log.Info("text", "text", truncateString(text.String(), maxTextLogLen))
	}
	return nil
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
