package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxResponseBytes = 20 << 20

// tlsRebuildThreshold is how many consecutive TLS failures it takes before
// the connection pool is discarded and rebuilt from scratch.
const tlsRebuildThreshold = 2

// Client is a retrying HTTP client sharing one pooled transport. Retries
// follow the configured Policy with exponential backoff; requests are
// rebuilt per attempt so bodies are always replayable.
type Client struct {
	policy  Policy
	timeout time.Duration

	mu       sync.Mutex
	pool     *http.Transport
	hc       *http.Client
	tlsFails int

	bareOnce sync.Once
	bare     *http.Client
}

// New creates a Client with the given retry policy. perCallTimeout bounds a
// single attempt, not the whole retry loop; zero means no per-attempt limit
// beyond the caller's context.
func New(policy Policy, perCallTimeout time.Duration) *Client {
	c := &Client{policy: policy, timeout: perCallTimeout}
	c.rebuildLocked()
	return c
}

func newPool() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

func (c *Client) rebuildLocked() {
	if c.pool != nil {
		c.pool.CloseIdleConnections()
	}
	c.pool = newPool()
	c.hc = &http.Client{Transport: c.pool}
	c.tlsFails = 0
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hc
}

// noteTLSFailure counts consecutive TLS errors and rebuilds the pool once
// the threshold is hit. Any non-TLS outcome resets the counter.
func (c *Client) noteTLSFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tlsFails++
	if c.tlsFails >= tlsRebuildThreshold {
		slog.Warn("rebuilding http transport after tls failures", "consecutive", c.tlsFails)
		c.rebuildLocked()
	}
}

func (c *Client) noteSuccess() {
	c.mu.Lock()
	c.tlsFails = 0
	c.mu.Unlock()
}

// Bare returns a plain client with no retry loop, kept apart from the
// retrying pool. Used for multipart uploads where replaying the body
// across retries is not worth the buffering. Built once; repeat calls
// get the same client so its connection pool is actually reused.
func (c *Client) Bare() *http.Client {
	c.bareOnce.Do(func() {
		c.bare = &http.Client{Transport: newPool(), Timeout: c.timeout}
	})
	return c.bare
}

// PostJSON posts a JSON payload and returns the response body of an
// accepted (2xx) response.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload []byte) ([]byte, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Content-Type"]; !ok {
		headers["Content-Type"] = "application/json"
	}
	return c.do(ctx, http.MethodPost, url, headers, payload)
}

// Get fetches a URL and returns the body of an accepted (2xx) response.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, headers, nil)
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, payload []byte) ([]byte, error) {
	attempts := c.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *Error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.policy.Backoff(attempt - 1)
			slog.Debug("retrying request", "method", method, "url", url, "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &Error{Kind: KindTimeout, Attempts: attempt, Err: ctx.Err()}
			}
		}

		body, retry, err := c.attempt(ctx, method, url, headers, payload)
		if err == nil {
			c.noteSuccess()
			return body, nil
		}
		lastErr = err
		lastErr.Attempts = attempt + 1
		if err.Kind == KindTLS {
			c.noteTLSFailure()
		} else {
			c.noteSuccess()
		}
		if !retry {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// attempt runs one request. The bool reports whether the failure is worth
// retrying under the policy.
func (c *Client) attempt(ctx context.Context, method, url string, headers map[string]string, payload []byte) ([]byte, bool, *Error) {
	actx := ctx
	var cancel context.CancelFunc
	if c.timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(actx, method, url, rd)
	if err != nil {
		return nil, false, &Error{Kind: KindNetwork, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		kind := classify(err)
		return nil, true, &Error{Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, &Error{Kind: KindNetwork, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, false, nil
	}

	e := &Error{Kind: KindStatus, Status: resp.StatusCode, Err: fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)}
	return nil, c.policy.Retryable(resp.StatusCode), e
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return KindTimeout
	}
	var rhe tls.RecordHeaderError
	var cve *tls.CertificateVerificationError
	var uae x509.UnknownAuthorityError
	var hie x509.HostnameError
	if errors.As(err, &rhe) || errors.As(err, &cve) || errors.As(err, &uae) || errors.As(err, &hie) {
		return KindTLS
	}
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
		return KindTLS
	}
	return KindNetwork
}
