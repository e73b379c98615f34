// Package transport is the single HTTP client used for every outbound call:
// Bot API file lookups, downloads and processing-service submissions.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout = 45 * time.Second
	defaultBackoff = time.Second
)

// Options configures a Client. The zero value means one attempt with the
// default timeout.
type Options struct {
	Timeout time.Duration // per-call hard timeout
	Retries int           // extra attempts after the first; 0 disables retrying
	Backoff time.Duration // base delay between attempts
	Logger  *slog.Logger
}

// Client wraps a pooled http.Client with an explicit attempt policy.
type Client struct {
	http    *http.Client
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// New creates a Client with connection pooling.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		http:    sharedHTTPClient(opts.Timeout),
		retries: opts.Retries,
		backoff: opts.Backoff,
		logger:  opts.Logger,
	}
}

// NewWithHTTPClient wraps an existing http.Client, e.g. one from httptest.
func NewWithHTTPClient(hc *http.Client, opts Options) *Client {
	c := New(opts)
	if hc != nil {
		c.http = hc
	}
	return c
}

// HTTP exposes the underlying client for libraries that need one.
func (c *Client) HTTP() *http.Client { return c.http }

// Retries returns the configured number of extra attempts.
func (c *Client) Retries() int { return c.retries }

func sharedHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// retryableStatus is returned when every attempt ended in a 5xx or 429.
type retryableStatus struct {
	statusCode int
	body       string
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// Do executes the request built by buildReq. Network failures, 5xx and 429
// responses are retried up to the configured count with jittered backoff.
// With retries disabled the first response is returned whatever its status,
// and the caller decides what a non-2xx status means.
func (c *Client) Do(ctx context.Context, buildReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * c.backoff
			jitter := time.Duration(rand.Int64N(int64(base/2 + 1)))
			wait := base + jitter
			c.logger.Warn("retrying request", "attempt", attempt+1, "backoff", wait)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = StripURL(err)
			if attempt < c.retries && ctx.Err() == nil {
				c.logger.Warn("request failed, will retry", "err", lastErr)
				continue
			}
			return nil, lastErr
		}

		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		if retryable && attempt < c.retries {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = &retryableStatus{statusCode: resp.StatusCode, body: string(body)}
			c.logger.Warn("server error, will retry", "status", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// StripURL drops the request URL from *url.Error values. Bot API URLs embed
// the bot token, which must never reach logs or chat replies.
func StripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
