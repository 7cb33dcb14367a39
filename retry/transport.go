package retry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// Transport is an http.RoundTripper that retries transient failures under a
// Policy. It can be installed in any client that accepts a custom *http.Client
// or RoundTripper, which covers all three provider SDKs.
type Transport struct {
	// Base performs the individual attempts. Nil uses a pooled transport
	// owned by this Transport, never http.DefaultTransport.
	Base   http.RoundTripper
	Policy Policy
	Logger *slog.Logger
	// OnRetry, when set, is called before each wait.
	OnRetry func(reason string, wait time.Duration)

	now func() time.Time

	poolOnce sync.Once
	pool     http.RoundTripper
}

// NewTransport creates a retrying transport over base.
func NewTransport(base http.RoundTripper, policy Policy, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if base == nil {
		base = cleanhttp.DefaultPooledTransport()
	}
	return &Transport{Base: base, Policy: policy, Logger: logger}
}

// NewClient returns an *http.Client whose requests retry under policy.
func NewClient(policy Policy, logger *slog.Logger) *http.Client {
	return &http.Client{Transport: NewTransport(nil, policy, logger)}
}

// RoundTrip executes req, retrying per the policy. Once the attempts are
// exhausted the last response or error is returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	retryReq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := t.client().Do(retryReq)
	// Match the library's own RoundTripper: the url.Error is added again by http.Client.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return resp, err
}

// base returns the RoundTripper attempts go through. The library closes idle
// connections of the client it was given after a failed sequence, so the
// process-wide default transport must never be handed to it.
func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	t.poolOnce.Do(func() {
		t.pool = cleanhttp.DefaultPooledTransport()
	})
	return t.pool
}

// client builds a retryablehttp.Client for a single request, so the attempt
// counter never leaks between requests.
func (t *Transport) client() *retryablehttp.Client {
	base := t.base()
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := t.now
	if now == nil {
		now = time.Now
	}

	retries := t.Policy.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}

	var (
		mu     sync.Mutex
		reason string
	)

	return &retryablehttp.Client{
		HTTPClient: &http.Client{
			Transport: base,
			// Redirects are left to the outer client.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Logger:       leveledLogger{logger},
		RetryWaitMin: t.Policy.BaseWait,
		RetryWaitMax: t.Policy.MaxWait,
		RetryMax:     retries,
		CheckRetry: func(ctx context.Context, resp *http.Response, err error) (bool, error) {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			why, ok := t.Policy.Classify(resp, err)
			mu.Lock()
			reason = why
			mu.Unlock()
			return ok, nil
		},
		Backoff: func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
			wait, ok := RetryAfter(resp, now())
			if !ok {
				wait = t.Policy.Backoff(attemptNum)
			}

			if limit := t.Policy.MaxTotalWait; limit > 0 && wait > limit {
				wait = limit
			}

			mu.Lock()
			why := reason
			mu.Unlock()

			logger.Debug("retrying request", "reason", why, "attempt", attemptNum+1, "wait", wait)
			if t.OnRetry != nil {
				t.OnRetry(why, wait)
			}
			return wait
		},
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
}

// leveledLogger hands the library's per-attempt messages to slog at debug
// level. Failures the policy handles are not errors; the outcome that matters
// is returned to the caller.
type leveledLogger struct {
	logger *slog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

var (
	_ http.RoundTripper           = (*Transport)(nil)
	_ retryablehttp.LeveledLogger = leveledLogger{}
)
