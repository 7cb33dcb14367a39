// Package retry retries outbound provider requests on transient failures.
//
// Information Hiding:
// - Which failures are transient (429, 529, connection failures)
// - Wait computation (Retry-After hint or capped exponential backoff)
// - The go-retryablehttp client that drives the attempts
package retry

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// StatusOverloaded is Anthropic's "overloaded" status code.
const StatusOverloaded = 529

// Reasons reported to OnRetry.
const (
	ReasonStatus     = "status"
	ReasonConnection = "connection"
)

// Policy describes when and how long to wait before retrying a request.
// A Policy holds no state; attempt counting is scoped to a single request.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseWait is the first exponential backoff wait; later waits double.
	BaseWait time.Duration
	// MaxWait caps a single exponential backoff wait.
	MaxWait time.Duration
	// MaxTotalWait caps every single wait, Retry-After hints included. It is
	// not a shared budget: each retry still waits up to this long.
	MaxTotalWait time.Duration
	// RetryStatuses are response codes treated as transient.
	RetryStatuses []int
}

// DefaultPolicy returns the policy used for every model provider:
// 5 attempts, backoff 1s doubling to at most 60s, no wait longer than 300s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		BaseWait:      time.Second,
		MaxWait:       60 * time.Second,
		MaxTotalWait:  300 * time.Second,
		RetryStatuses: []int{http.StatusTooManyRequests, StatusOverloaded},
	}
}

// Classify reports whether the outcome of an attempt should be retried and why.
func (p Policy) Classify(resp *http.Response, err error) (string, bool) {
	if err != nil {
		if IsConnectionError(err) {
			return ReasonConnection, true
		}
		return "", false
	}
	if resp == nil {
		return "", false
	}
	for _, code := range p.RetryStatuses {
		if resp.StatusCode == code {
			return ReasonStatus, true
		}
	}
	return "", false
}

// Backoff returns the exponential wait before retry number attempt+1,
// counting attempt from zero: BaseWait * 2^attempt, capped at MaxWait.
func (p Policy) Backoff(attempt int) time.Duration {
	wait := p.BaseWait
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= p.MaxWait {
			return p.MaxWait
		}
	}
	if wait > p.MaxWait {
		return p.MaxWait
	}
	return wait
}

// IsConnectionError reports whether err is a failure to connect, a reset
// connection or a connection closed before the response, as opposed to a
// timeout or a protocol error.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(math.Round(seconds*1000)) * time.Millisecond, true
	}
	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}
