package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"airdrop-eligibility-api/pkg/logger"
)

// Default configuration values.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultUserAgent  = "airdrop-eligibility-api/1.0"

	maxBodyBytes = 4 << 20
)

// Response is a fully-read upstream response. Non-2xx statuses are returned
// as responses, not errors.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs outbound HTTP calls. Transport failures (connection
// errors, timeouts) are retried with exponential backoff; HTTP error
// statuses are never retried.
type Client struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	userAgent  string
	observe    func(target string, status int, d time.Duration)
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the first retry delay; each further retry doubles it.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithObserver registers a callback invoked after every attempt. status is
// zero for transport failures.
func WithObserver(fn func(target string, status int, d time.Duration)) Option {
	return func(c *Client) {
		c.observe = fn
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// PostJSON marshals payload and POSTs it as application/json.
func (c *Client) PostJSON(ctx context.Context, url string, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.Do(ctx, http.MethodPost, url, body)
}

// Do sends the request, retrying transport failures.
func (c *Client) Do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	var resp *Response
	attempt := 0

	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		httpResp, err := c.client.Do(req)
		if err != nil {
			c.record(req, 0, time.Since(start))
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("send request: %w", err)
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
		c.record(req, httpResp.StatusCode, time.Since(start))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		resp = &Response{StatusCode: httpResp.StatusCode, Body: data}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.WithFields(map[string]interface{}{
			"method":  method,
			"attempt": attempt,
			"delay":   wait.String(),
		}).Warnf("Retrying upstream call: %v", err)
	}

	if err := backoff.RetryNotify(operation, c.policy(ctx), notify); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return resp, nil
}

// policy yields retryDelay, 2*retryDelay, 4*retryDelay... without jitter.
func (c *Client) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.retryDelay << 10
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx)
}

func (c *Client) record(req *http.Request, status int, d time.Duration) {
	if c.observe != nil {
		c.observe(req.URL.Host, status, d)
	}
}

func bodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}
