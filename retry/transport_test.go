package retry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

// fastPolicy is DefaultPolicy with seconds scaled down to milliseconds.
func fastPolicy() Policy {
	p := DefaultPolicy()
	p.BaseWait = time.Millisecond
	p.MaxWait = 60 * time.Millisecond
	p.MaxTotalWait = 300 * time.Millisecond
	return p
}

type waitRecorder struct {
	mu      sync.Mutex
	reasons []string
	waits   []time.Duration
}

func (r *waitRecorder) record(reason string, wait time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	r.waits = append(r.waits, wait)
}

// statusServer answers with statuses[i] on attempt i, repeating the last one.
func statusServer(t *testing.T, statuses []int, header http.Header) (*httptest.Server, *int32) {
	t.Helper()
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&attempts, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		for k, v := range header {
			w.Header()[k] = v
		}
		w.WriteHeader(statuses[n])
		io.WriteString(w, "attempt body")
	}))
	t.Cleanup(server.Close)
	return server, &attempts
}

func newTestClient(policy Policy, base http.RoundTripper, rec *waitRecorder) *http.Client {
	transport := NewTransport(base, policy, nil)
	if rec != nil {
		transport.OnRetry = rec.record
	}
	return &http.Client{Transport: transport}
}

func TestRetryableStatusesExhaustAttempts(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, StatusOverloaded} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server, attempts := statusServer(t, []int{status}, nil)
			rec := &waitRecorder{}
			client := newTestClient(fastPolicy(), nil, rec)

			resp, err := client.Get(server.URL)
			if err != nil {
				t.Fatalf("expected last response, got error: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != status {
				t.Errorf("status = %d, want %d", resp.StatusCode, status)
			}
			body, _ := io.ReadAll(resp.Body)
			if string(body) != "attempt body" {
				t.Errorf("last response body should be intact, got %q", body)
			}
			if got := atomic.LoadInt32(attempts); got != 5 {
				t.Errorf("attempts = %d, want 5", got)
			}
			if len(rec.waits) != 4 {
				t.Errorf("waits = %d, want 4", len(rec.waits))
			}
		})
	}
}

func TestNonRetryableStatusesAreReturnedImmediately(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError, http.StatusServiceUnavailable} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server, attempts := statusServer(t, []int{status}, nil)
			client := newTestClient(fastPolicy(), nil, nil)

			resp, err := client.Get(server.URL)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != status {
				t.Errorf("status = %d, want %d", resp.StatusCode, status)
			}
			if got := atomic.LoadInt32(attempts); got != 1 {
				t.Errorf("attempts = %d, want 1", got)
			}
		})
	}
}

func TestRecoversAfterTransientStatus(t *testing.T) {
	server, attempts := statusServer(t, []int{StatusOverloaded, http.StatusTooManyRequests, http.StatusOK}, nil)
	client := newTestClient(fastPolicy(), nil, nil)

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestExponentialWaits(t *testing.T) {
	server, _ := statusServer(t, []int{http.StatusTooManyRequests}, nil)
	rec := &waitRecorder{}
	client := newTestClient(fastPolicy(), nil, rec)

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	want := []time.Duration{1 * time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond}
	if len(rec.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", rec.waits, want)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i+1, rec.waits[i], want[i])
		}
		if rec.reasons[i] != ReasonStatus {
			t.Errorf("reason %d = %q, want %q", i+1, rec.reasons[i], ReasonStatus)
		}
	}
}

func TestRetryAfterIsHonored(t *testing.T) {
	header := http.Header{"Retry-After": []string{"0.02"}}
	server, attempts := statusServer(t, []int{http.StatusTooManyRequests}, header)
	rec := &waitRecorder{}
	client := newTestClient(fastPolicy(), nil, rec)

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(attempts); got != 5 {
		t.Errorf("attempts = %d, want 5", got)
	}
	for i, wait := range rec.waits {
		if wait != 20*time.Millisecond {
			t.Errorf("wait %d = %v, want Retry-After of 20ms", i+1, wait)
		}
	}
}

func TestRetryAfterIsCappedPerWait(t *testing.T) {
	policy := fastPolicy()
	policy.MaxTotalWait = 30 * time.Millisecond

	header := http.Header{"Retry-After": []string{"1000"}}
	server, attempts := statusServer(t, []int{http.StatusTooManyRequests}, header)
	rec := &waitRecorder{}
	client := newTestClient(policy, nil, rec)

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(attempts); got != 5 {
		t.Errorf("attempts = %d, want 5", got)
	}
	if len(rec.waits) != 4 {
		t.Fatalf("waits = %v, want 4 of them", rec.waits)
	}
	for i, wait := range rec.waits {
		if wait != 30*time.Millisecond {
			t.Errorf("wait %d = %v, want the 30ms cap", i+1, wait)
		}
	}
}

// refusingTransport fails every attempt the way a closed port does.
type refusingTransport struct {
	attempts int32
}

func (r *refusingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&r.attempts, 1)
	return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
}

func TestConnectionFailuresAreRetriedAndPropagated(t *testing.T) {
	base := &refusingTransport{}
	rec := &waitRecorder{}
	client := newTestClient(fastPolicy(), base, rec)

	_, err := client.Get("http://quill.invalid/v1/messages")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Errorf("expected the original connection error, got %v", err)
	}
	if got := atomic.LoadInt32(&base.attempts); got != 5 {
		t.Errorf("attempts = %d, want 5", got)
	}
	for i, reason := range rec.reasons {
		if reason != ReasonConnection {
			t.Errorf("reason %d = %q, want %q", i+1, reason, ReasonConnection)
		}
	}
}

type failingTransport struct {
	attempts int32
	err      error
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.attempts, 1)
	return nil, f.err
}

func TestConnectionClosedBeforeResponseIsRetried(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	}))
	defer server.Close()

	rec := &waitRecorder{}
	client := newTestClient(fastPolicy(), nil, rec)

	_, err := client.Get(server.URL)
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected the original EOF, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Errorf("attempts = %d, want 5", got)
	}
	for i, reason := range rec.reasons {
		if reason != ReasonConnection {
			t.Errorf("reason %d = %q, want %q", i+1, reason, ReasonConnection)
		}
	}
}

func TestHandledFailuresAreNotLoggedAsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	transport := NewTransport(&refusingTransport{}, fastPolicy(), logger)
	client := &http.Client{Transport: transport}

	if _, err := client.Get("http://quill.invalid/"); err == nil {
		t.Fatal("expected connection error")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no log output at info level, got:\n%s", buf.String())
	}
}

func TestTransportOwnsItsConnectionPool(t *testing.T) {
	transport := NewTransport(nil, fastPolicy(), nil)
	if transport.Base == nil || transport.Base == http.DefaultTransport {
		t.Fatalf("base = %v, want a pooled transport of its own", transport.Base)
	}

	var zero Transport
	first := zero.client().HTTPClient.Transport
	second := zero.client().HTTPClient.Transport
	if first == http.DefaultTransport {
		t.Error("zero Transport must not use http.DefaultTransport")
	}
	if first != second {
		t.Error("requests should share one pool")
	}
}

func TestOtherTransportErrorsAreNotRetried(t *testing.T) {
	sentinel := errors.New("tls: handshake failure")
	base := &failingTransport{err: sentinel}
	client := newTestClient(fastPolicy(), base, nil)

	_, err := client.Get("http://quill.invalid/")
	if !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
	if got := atomic.LoadInt32(&base.attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestRequestBodyIsReplayed(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(fastPolicy(), nil, nil)
	resp, err := client.Post(server.URL, "application/json", strings.NewReader(`{"model":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 3 {
		t.Fatalf("attempts = %d, want 3", len(bodies))
	}
	for i, b := range bodies {
		if b != `{"model":"x"}` {
			t.Errorf("attempt %d body = %q", i+1, b)
		}
	}
}

func TestCancelDuringWaitStopsPromptly(t *testing.T) {
	policy := fastPolicy()
	policy.BaseWait = time.Minute
	policy.MaxWait = time.Minute
	policy.MaxTotalWait = time.Hour

	server, attempts := statusServer(t, []int{http.StatusTooManyRequests}, nil)
	client := newTestClient(policy, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)

	start := time.Now()
	_, err := client.Do(req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
	if got := atomic.LoadInt32(attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestAttemptCounterIsPerRequest(t *testing.T) {
	server, attempts := statusServer(t, []int{http.StatusTooManyRequests}, nil)
	client := newTestClient(fastPolicy(), nil, nil)

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}
	if got := atomic.LoadInt32(attempts); got != 10 {
		t.Errorf("attempts = %d, want 5 per request", got)
	}
}
