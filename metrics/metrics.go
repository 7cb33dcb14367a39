// Package metrics records what a run did in Prometheus form.
//
// quill is a one-shot CLI, so nothing is scraped; the registry is written
// to a node_exporter textfile after the run when --metrics-file is set.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of one process, on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTPRetries counts retried model API requests
	HTTPRetries *prometheus.CounterVec

	// HTTPRetryWait tracks how long each retry waited
	HTTPRetryWait prometheus.Histogram

	// ToolCalls tracks local tool invocations
	ToolCalls *prometheus.CounterVec

	// RunSteps counts run steps by kind
	RunSteps *prometheus.CounterVec

	// RunDuration tracks how long runs take
	RunDuration *prometheus.HistogramVec

	// Tokens counts model tokens by direction
	Tokens *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_http_retries_total",
				Help: "Total number of retried model API requests",
			},
			[]string{"reason"},
		),
		HTTPRetryWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quill_http_retry_wait_seconds",
				Help:    "Wait before each retried model API request in seconds",
				Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 60, 120, 300},
			},
		),
		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_tool_calls_total",
				Help: "Total number of tool calls",
			},
			[]string{"tool", "status"},
		),
		RunSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_run_steps_total",
				Help: "Total number of run steps",
			},
			[]string{"kind"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quill_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"agent", "status"},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_tokens_total",
				Help: "Total number of model tokens",
			},
			[]string{"agent", "direction"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRetry records one retried request and its wait. It matches the
// retry transport's OnRetry hook.
func (m *Metrics) RecordRetry(reason string, wait time.Duration) {
	m.HTTPRetries.WithLabelValues(reason).Inc()
	m.HTTPRetryWait.Observe(wait.Seconds())
}

// RecordToolCall records a tool invocation. It matches the tool executor's OnCall hook.
func (m *Metrics) RecordToolCall(tool, status string) {
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordStep records one run step.
func (m *Metrics) RecordStep(kind string) {
	m.RunSteps.WithLabelValues(kind).Inc()
}

// RecordRun records a finished run of agent.
func (m *Metrics) RecordRun(agent, status string, duration time.Duration, promptTokens, completionTokens uint32) {
	m.RunDuration.WithLabelValues(agent, status).Observe(duration.Seconds())
	m.Tokens.WithLabelValues(agent, "prompt").Add(float64(promptTokens))
	m.Tokens.WithLabelValues(agent, "completion").Add(float64(completionTokens))
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
