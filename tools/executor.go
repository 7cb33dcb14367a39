// Tool Executor with Retry Logic.
//
// Information Hiding:
// - Retry strategy implementation hidden
// - Backoff algorithm hidden
// - Error classification logic hidden

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Call statuses reported to Executor.OnCall.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusUnknown = "unknown"
)

// TimeoutOverrider is implemented by tools whose calls need a different
// timeout than the executor's. Zero disables the timeout.
type TimeoutOverrider interface {
	ToolTimeout() time.Duration
}

// Executor provides tool execution with retry and timeout support.
type Executor struct {
	config ToolConfig

	// OnCall, when set, is told the outcome of every dispatched call.
	OnCall func(tool, status string)
}

// NewExecutor creates a new tool executor with the given configuration.
func NewExecutor(config ToolConfig) *Executor {
	return &Executor{config: config}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return &Executor{config: DefaultToolConfig()}
}

// Dispatch looks up name in registry and runs it. Unknown tools and tool
// failures become failed results for the model; only cancellation of ctx is
// returned as an error.
func (e *Executor) Dispatch(ctx context.Context, registry *Registry, name string, args json.RawMessage) (ToolResult, error) {
	tool, ok := registry.Get(name)
	if !ok {
		e.report(name, StatusUnknown)
		return FailureResultf("unknown tool %q, available tools: %s", name, strings.Join(registry.Names(), ", ")), nil
	}

	result, err := e.Execute(ctx, tool, args)
	if err != nil {
		e.report(name, StatusError)
		return ToolResult{}, err
	}
	if result.Success() {
		e.report(name, StatusOK)
	} else {
		e.report(name, StatusError)
	}
	return result, nil
}

func (e *Executor) report(name, status string) {
	if e.OnCall != nil {
		e.OnCall(name, status)
	}
}

// Execute validates args and runs the tool with a per-attempt timeout,
// retrying failed attempts up to the configured count.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	if err := tool.Validate(args); err != nil {
		return FailureResult(fmt.Errorf("validation failed: %w", err)), nil
	}

	var lastErr error
	toolName := tool.Metadata().Name
	maxAttempts := e.config.Attempts()
	timeout := time.Duration(e.config.Timeout()) * time.Second
	if t, ok := tool.(TimeoutOverrider); ok {
		timeout = t.ToolTimeout()
	}

	for attempt := uint32(0); attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := e.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := e.executeOnce(ctx, tool, args, timeout)
		if ctx.Err() != nil {
			return ToolResult{}, ctx.Err()
		}
		if err != nil {
			lastErr = err
			continue
		}

		if result.Success() {
			return result, nil
		}

		// Check if we should retry this failure
		if !e.shouldRetry(result) {
			return result, nil
		}

		lastErr = result.Error
	}

	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	if maxAttempts == 1 {
		return FailureResult(errors.New(errMsg)), nil
	}
	return FailureResultf("tool '%s' failed after %d attempts: %s", toolName, maxAttempts, errMsg), nil
}

func (e *Executor) executeOnce(ctx context.Context, tool Tool, args json.RawMessage, timeout time.Duration) (ToolResult, error) {
	if timeout <= 0 {
		return tool.Execute(ctx, args)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := tool.Execute(ctx, args)
	if err == nil && result.Error != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return FailureResultf("timeout after %v: %v", timeout, result.Error), nil
	}
	return result, err
}

// calculateBackoff returns the backoff duration for the given attempt.
func (e *Executor) calculateBackoff(attempt uint32) time.Duration {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 5 * time.Second
	)

	delay := baseDelay * time.Duration(1<<attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// shouldRetry determines if an error is retryable.
func (e *Executor) shouldRetry(result ToolResult) bool {
	if result.Error == nil {
		return true
	}

	errLower := strings.ToLower(result.Error.Error())

	// Don't retry validation errors or permission issues
	nonRetryable := []string{"validation", "invalid arguments", "not allowed", "permission", "empty", "required"}
	for _, s := range nonRetryable {
		if strings.Contains(errLower, s) {
			return false
		}
	}

	// Default: retry
	return true
}
