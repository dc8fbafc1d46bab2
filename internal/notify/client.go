package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Client posts JSON to a webhook endpoint with bounded retry on transport errors and 5xx.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) postJSON(ctx context.Context, path string, in any) error {
	return c.doJSON(ctx, fasthttp.MethodPost, path, in)
}

func (c *Client) deleteJSON(ctx context.Context, path string, in any) error {
	return c.doJSON(ctx, fasthttp.MethodDelete, path, in)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")

	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("webhook error: %s %s status=%d body=%s", method, path, status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
