package probe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upmon/upmon/internal/monitor"
)

func TestRun_UpOn200(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewExecutor(nil)
	out, err := e.Run(context.Background(), Request{URL: srv.URL, Timeout: 2 * time.Second, RetryCount: 2})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if out.Status != monitor.StatusUp {
		t.Fatalf("expected UP, got %s", out.Status)
	}
	if out.HTTPStatus == nil || *out.HTTPStatus != 200 {
		t.Fatalf("expected http_status 200, got %v", out.HTTPStatus)
	}
	if out.ErrorKind != nil {
		t.Fatalf("expected no error kind, got %s", *out.ErrorKind)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", hits.Load())
	}
	if out.CheckedAt.Location() != time.UTC {
		t.Fatalf("expected checked_at in UTC, got %v", out.CheckedAt.Location())
	}
	if time.Since(out.CheckedAt) > 5*time.Second {
		t.Fatalf("checked_at too old: %v", out.CheckedAt)
	}
}

func TestRun_FollowsRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer final.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusMovedPermanently)
	}))
	defer srv.Close()

	e := NewExecutor(nil)
	out, err := e.Run(context.Background(), Request{URL: srv.URL, Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if out.Status != monitor.StatusUp {
		t.Fatalf("expected UP after redirect, got %s", out.Status)
	}
	if out.HTTPStatus == nil || *out.HTTPStatus != 204 {
		t.Fatalf("expected final status 204, got %v", out.HTTPStatus)
	}
}

func TestRun_DownOnHTTPErrorWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewExecutor(nil)
	out, err := e.Run(context.Background(), Request{URL: srv.URL, Timeout: 2 * time.Second, RetryCount: 3, RetryBackoff: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if out.Status != monitor.StatusDown {
		t.Fatalf("expected DOWN, got %s", out.Status)
	}
	if out.HTTPStatus == nil || *out.HTTPStatus != 503 {
		t.Fatalf("expected http_status 503, got %v", out.HTTPStatus)
	}
	if out.ErrorKind != nil {
		t.Fatalf("expected no error kind for an answered request, got %s", *out.ErrorKind)
	}
	if hits.Load() != 1 {
		t.Fatalf("server answered; expected no retries, got %d attempts", hits.Load())
	}
}

func TestRun_TimeoutRetriesUntilExhaustion(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	e := NewExecutor(nil)
	out, err := e.Run(context.Background(), Request{
		URL:          srv.URL,
		Timeout:      100 * time.Millisecond,
		RetryCount:   2,
		RetryBackoff: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if out.Status != monitor.StatusDown {
		t.Fatalf("expected DOWN, got %s", out.Status)
	}
	if out.ErrorKind == nil || *out.ErrorKind != monitor.ErrKindTimeout {
		t.Fatalf("expected error kind timeout, got %v", out.ErrorKind)
	}
	if out.HTTPStatus != nil {
		t.Fatalf("expected no http_status on timeout, got %d", *out.HTTPStatus)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
	// Three 100ms deadlines plus two 50ms backoffs; allow scheduler slack.
	if out.LatencyMS < 390 {
		t.Fatalf("latency should span all attempts and backoffs, got %dms", out.LatencyMS)
	}
}

func TestRun_ConnectErrorClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	e := NewExecutor(nil)
	out, err := e.Run(context.Background(), Request{URL: addr, Timeout: time.Second, RetryCount: 1, RetryBackoff: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if out.Status != monitor.StatusDown {
		t.Fatalf("expected DOWN, got %s", out.Status)
	}
	if out.ErrorKind == nil || *out.ErrorKind != monitor.ErrKindConnect {
		t.Fatalf("expected error kind connect_error, got %v", out.ErrorKind)
	}
}

// flakyDoer fails the first n calls with a dial error, then answers 200.
type flakyDoer struct {
	failures int
	calls    atomic.Int32
}

func (d *flakyDoer) Do(req *http.Request) (*http.Response, error) {
	if int(d.calls.Add(1)) <= d.failures {
		return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}, nil
}

func TestRun_RecoversWithinAttemptBudget(t *testing.T) {
	d := &flakyDoer{failures: 2}
	e := NewExecutor(d)
	out, err := e.Run(context.Background(), Request{URL: "http://example.test/", Timeout: time.Second, RetryCount: 2, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if out.Status != monitor.StatusUp {
		t.Fatalf("expected UP after transient failures, got %s", out.Status)
	}
	if got := d.calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestRun_UnexpectedErrorDoesNotRetry(t *testing.T) {
	d := &errDoer{err: errors.New("boom")}
	e := NewExecutor(d)
	out, err := e.Run(context.Background(), Request{URL: "http://example.test/", Timeout: time.Second, RetryCount: 5, RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Run() unexpected error: %v", err)
	}
	if out.Status != monitor.StatusDown {
		t.Fatalf("expected DOWN, got %s", out.Status)
	}
	if out.ErrorKind == nil || *out.ErrorKind != monitor.ErrKindOther {
		t.Fatalf("expected error kind other, got %v", out.ErrorKind)
	}
	if d.calls != 1 {
		t.Fatalf("unexpected errors must not retry; got %d attempts", d.calls)
	}
}

type errDoer struct {
	err   error
	calls int
}

func (d *errDoer) Do(*http.Request) (*http.Response, error) {
	d.calls++
	return nil, d.err
}

func TestRun_CanceledDuringBackoff(t *testing.T) {
	d := &errDoer{err: &url.Error{Op: "Get", URL: "http://example.test/", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}}
	e := NewExecutor(d)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Run(ctx, Request{URL: "http://example.test/", Timeout: time.Second, RetryCount: 5, RetryBackoff: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
