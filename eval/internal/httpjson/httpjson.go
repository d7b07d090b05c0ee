// Package httpjson performs JSON requests with retries on transport errors
// and 5xx responses.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 5 * time.Minute
	DefaultMinBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff  = 10 * time.Second
)

// Client issues JSON requests.
type Client struct {
	HTTP        *http.Client
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// New returns a Client with the default timeout and retry policy.
func New() *Client {
	return &Client{
		HTTP:        &http.Client{Timeout: DefaultTimeout},
		MaxAttempts: DefaultMaxAttempts,
		MinBackoff:  DefaultMinBackoff,
		MaxBackoff:  DefaultMaxBackoff,
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// GetJSON decodes the body of a GET into out.
func (c *Client) GetJSON(ctx context.Context, u string, out interface{}) error {
	return c.do(ctx, http.MethodGet, u, nil, out)
}

// PostJSON sends in as the JSON body of a POST and, when out is non-nil and
// the response has a body, decodes it into out.
func (c *Client) PostJSON(ctx context.Context, u string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, u, body, out)
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, out interface{}) error {
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := &backoff.Backoff{Min: c.MinBackoff, Max: c.MaxBackoff, Factor: 2, Jitter: true}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		retry, err := c.once(ctx, method, u, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == attempts {
			break
		}
		wait := b.Duration()
		logrus.Debugf("%s %s failed (attempt %d/%d), retrying in %s: %v", method, u, attempt, attempts, wait, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, u string, body []byte, out interface{}) (retry bool, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return false, fmt.Errorf("request creation error: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode >= 500, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return false, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("reading response body: %w", err)
	}
	if method != http.MethodGet && len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("JSON parse error: %w", err)
	}
	return false, nil
}
