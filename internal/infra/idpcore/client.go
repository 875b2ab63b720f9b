package idpcore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fedhub/internal/domain"

	"github.com/cenkalti/backoff/v5"
)

const defaultBaseInterval = time.Second

// Client talks to the IdP core over HTTP. Transient failures (connection
// errors, 429, 5xx) are retried with exponential backoff and jitter; any
// other 4xx stops immediately. A Retry-After header overrides the computed
// wait. The last attempt's error is returned unchanged.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxAttempts  int
	baseInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBaseInterval shrinks the first backoff interval; tests use this to
// keep retries fast.
func WithBaseInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseInterval = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient:   http.DefaultClient,
		baseURL:      baseURL,
		maxAttempts:  5,
		baseInterval: defaultBaseInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) PersistClient(ctx context.Context, record domain.ClientRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode client record: %w", err)
	}

	operation := func() (struct{}, error) {
		return struct{}{}, c.post(ctx, payload)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseInterval
	b.Multiplier = 2
	b.MaxInterval = 32 * c.baseInterval
	b.RandomizationFactor = 0.25

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxAttempts)))
	return err
}

func (c *Client) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/clients", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection-level failure, retryable.
		return err
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		if wait, ok := retryAfter(resp); ok {
			return &backoff.RetryAfterError{Duration: wait}
		}
		return fmt.Errorf("idp core: status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("idp core: status %d", resp.StatusCode))
	}
}

// retryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	var seconds int
	if _, err := fmt.Sscanf(raw, "%d", &seconds); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait, true
		}
	}
	return 0, false
}
