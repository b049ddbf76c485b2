// Package fetcher performs HTTP retrieval against the catalog with bounded
// retry, throttle detection, and request pacing.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"dealwatch/internal/identity"
)

// ErrorKind partitions fetch failures.
type ErrorKind string

const (
	// KindThrottled is an upstream 429.
	KindThrottled ErrorKind = "throttled"
	// KindUnavailable is an upstream 503.
	KindUnavailable ErrorKind = "unavailable"
	// KindNetwork covers transport-level failures.
	KindNetwork ErrorKind = "network"
	// KindBadStatus covers every other non-2xx status. Never retried.
	KindBadStatus ErrorKind = "bad_status"
)

// Error is the typed failure returned by Fetch. No failure escapes the
// fetcher in any other form.
type Error struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Kind, e.Status)
	}
	return fmt.Sprintf("fetch %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt.
func (e *Error) Retryable() bool {
	return e.Kind == KindThrottled || e.Kind == KindUnavailable
}

type proxyKey struct{}

// Options tune the fetch client.
type Options struct {
	Timeout      time.Duration
	MaxRetries   int           // attempt ceiling, including the first attempt
	BackoffFloor time.Duration // first retry delay; doubles per retry
	MinDelay     time.Duration // pacing window after every completed call
	MaxDelay     time.Duration
}

// Client issues catalog requests. The underlying HTTP transport and its
// connection pool are shared across workers; the proxy for each request is
// resolved from the request context so one transport serves every identity.
type Client struct {
	opts   Options
	pool   *identity.Pool
	client *http.Client
	logger zerolog.Logger
}

// New constructs a fetch client drawing identities from pool.
func New(opts Options, pool *identity.Pool, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffFloor <= 0 {
		opts.BackoffFloor = time.Second
	}

	transport := &http.Transport{
		Proxy: func(req *http.Request) (*url.URL, error) {
			if p, ok := req.Context().Value(proxyKey{}).(*url.URL); ok {
				return p, nil
			}
			return nil, nil
		},
	}

	return &Client{
		opts:   opts,
		pool:   pool,
		client: &http.Client{Timeout: opts.Timeout, Transport: transport},
		logger: logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch retrieves rawURL with the given query parameters. Throttled and
// unavailable responses are retried with exponential backoff up to the
// configured attempt ceiling; any other non-2xx status is returned
// immediately as a BadStatus error. A randomised pacing delay runs after the
// final attempt, success or not.
func (c *Client) Fetch(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	var lastErr *Error

	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		body, ferr := c.attempt(ctx, rawURL, params)
		if ferr == nil {
			c.pace(ctx)
			return body, nil
		}

		lastErr = ferr
		if !ferr.Retryable() {
			break
		}

		c.logger.Warn().
			Str("url", rawURL).
			Int("attempt", attempt).
			Str("kind", string(ferr.Kind)).
			Msg("retryable fetch failure")

		if attempt < c.opts.MaxRetries {
			backoff := c.opts.BackoffFloor << (attempt - 1)
			if !sleepCtx(ctx, backoff) {
				break
			}
		}
	}

	c.pace(ctx)
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, rawURL string, params url.Values) ([]byte, *Error) {
	id := c.pool.Next()

	reqCtx := ctx
	if id.Proxy != nil {
		reqCtx = context.WithValue(ctx, proxyKey{}, id.Proxy)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	if len(params) > 0 {
		req.URL.RawQuery = params.Encode()
	}

	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ar-SA,ar;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &Error{Kind: KindNetwork, Err: err}
		}
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: KindThrottled, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &Error{Kind: KindUnavailable, Status: resp.StatusCode}
	default:
		return nil, &Error{Kind: KindBadStatus, Status: resp.StatusCode}
	}
}

// pace sleeps a random duration inside the configured window so request
// timing does not form a burst pattern. The top-level rand source is used
// because one Client is shared across the cycle workers.
func (c *Client) pace(ctx context.Context) {
	if c.opts.MaxDelay <= 0 {
		return
	}
	window := c.opts.MaxDelay - c.opts.MinDelay
	delay := c.opts.MinDelay
	if window > 0 {
		delay += time.Duration(rand.Int63n(int64(window)))
	}
	sleepCtx(ctx, delay)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
