// Package transport provides the shared HTTP plumbing for platform backends:
// a bounded per-call timeout and a retry helper with exponential backoff for
// read-only requests. Flag submissions must go through Do, never DoRetry,
// because a resent submission's platform-side effect is unknown.
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/squadctf/ctfsync/internal/domain/model"
)

const (
	defaultTimeout = 15 * time.Second
	maxRetries     = 3
)

// Client wraps an http.Client with the engine's retry policy.
type Client struct {
	http *http.Client
}

// New creates a Client with the given per-call timeout. A non-positive
// timeout falls back to the default.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{http: &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Platform login flows inspect redirect responses directly.
			return http.ErrUseLastResponse
		},
	}}
}

// NewWithHTTPClient creates a Client around an existing http.Client. Intended
// for tests injecting an httptest server's client.
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{http: hc}
}

// Do performs the request exactly once. Network failures are wrapped with
// model.ErrTransport but never retried here.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTransport, err)
	}
	return resp, nil
}

// DoRetry performs a read-only request, retrying transient failures with
// exponential backoff up to a small bounded count before escalating as
// model.ErrTransport. Server errors (5xx) count as transient; any other
// response is returned to the caller for interpretation.
func (c *Client) DoRetry(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	operation := func() error {
		var err error
		resp, err = c.http.Do(req.Clone(req.Context()))
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			return fmt.Errorf("server error: %s", resp.Status)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries),
		req.Context(),
	)

	if err := backoff.Retry(operation, policy); err != nil {
		// Context cancellation is the caller's signal, not a transport fault.
		if errors.Is(err, req.Context().Err()) && req.Context().Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrTransport, err)
	}

	return resp, nil
}
