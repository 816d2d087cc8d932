// Package probe implements the HTTP probe executor: one probe cycle issues
// up to retry_count+1 attempts against a target URL, classifies the outcome
// and measures wall time across all attempts.
package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/upmon/upmon/internal/monitor"
)

const userAgent = "upmon/1.0"

// Request describes one probe cycle.
type Request struct {
	URL          string
	Timeout      time.Duration
	RetryCount   int
	RetryBackoff time.Duration
}

// Outcome is the flattened result of a probe cycle.
type Outcome struct {
	Status     monitor.Status
	HTTPStatus *int
	LatencyMS  int64
	ErrorKind  *monitor.ErrorKind
	CheckedAt  time.Time
}

// Doer issues a single HTTP request. Injectable for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor runs probe cycles. It is stateless and safe for concurrent use;
// retries share no cross-call state.
type Executor struct {
	client Doer
}

// NewExecutor returns an executor backed by the given client, or by a shared
// default client (redirect-following, pooled transport) when client is nil.
func NewExecutor(client Doer) *Executor {
	if client == nil {
		client = defaultClient()
	}
	return &Executor{client: client}
}

func defaultClient() *http.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 16
	return &http.Client{Transport: t}
}

// Run executes one probe cycle. An HTTP response in [200,400) is UP; any
// other response is DOWN with its status recorded and is not retried (the
// server answered). Transport failures are retried after RetryBackoff until
// the attempt budget is spent. The returned error is non-nil only when ctx
// was canceled, in which case the outcome is meaningless and must not be
// persisted.
func (e *Executor) Run(ctx context.Context, req Request) (Outcome, error) {
	attempts := req.RetryCount + 1
	start := time.Now()

	var kind monitor.ErrorKind
	for attempt := 0; attempt < attempts; attempt++ {
		status, err := e.attempt(ctx, req)
		if err == nil {
			if status >= 200 && status < 400 {
				return e.finalize(Outcome{Status: monitor.StatusUp, HTTPStatus: &status}, start), nil
			}
			return e.finalize(Outcome{Status: monitor.StatusDown, HTTPStatus: &status}, start), nil
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}

		kind = classify(err)
		if kind == monitor.ErrKindOther {
			// Not a transport failure; retrying cannot help.
			break
		}
		if attempt < attempts-1 {
			if err := sleep(ctx, req.RetryBackoff); err != nil {
				return Outcome{}, err
			}
		}
	}

	return e.finalize(Outcome{Status: monitor.StatusDown, ErrorKind: &kind}, start), nil
}

// attempt issues a single GET bounded by the per-attempt deadline and
// returns the HTTP status code.
func (e *Executor) attempt(ctx context.Context, req Request) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	// Drain a little so the connection can be reused, then close.
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	_ = resp.Body.Close()

	return resp.StatusCode, nil
}

func (e *Executor) finalize(o Outcome, start time.Time) Outcome {
	o.LatencyMS = time.Since(start).Milliseconds()
	o.CheckedAt = time.Now().UTC()
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
