package jaeger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Gnosis-MEP/benchmark-tools/eval/internal/httpjson"
)

const (
	// DefaultLookback matches the query window used by the benchmark runs.
	DefaultLookback = "6h"
	// DefaultLimit asks the query service for every trace in the window.
	DefaultLimit = 700000000
)

// TraceQuery selects traces from the query service.
type TraceQuery struct {
	Service   string
	Operation string            // optional
	Lookback  string            // e.g. "6h"; defaults to DefaultLookback
	Limit     int               // defaults to DefaultLimit
	StartUs   int64             // optional lower bound (µs since epoch)
	Tags      map[string]string // optional tag filter
}

// Client queries a Jaeger query service over HTTP.
type Client struct {
	baseURL string
	rest    *httpjson.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.rest.HTTP = hc }
}

// WithRetry sets the attempt count and backoff bounds for failed requests.
func WithRetry(maxAttempts int, minBackoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.rest.MaxAttempts = maxAttempts
		c.rest.MinBackoff = minBackoff
		c.rest.MaxBackoff = maxBackoff
	}
}

// NewClient creates a query client for the given base URL
// (e.g. "http://localhost:16686").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		rest:    httpjson.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TracesURL builds the /api/traces URL for a query.
func (c *Client) TracesURL(q TraceQuery) (string, error) {
	params := url.Values{}
	params.Set("service", q.Service)
	if q.Operation != "" {
		params.Set("operation", q.Operation)
	}
	limit := q.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	params.Set("limit", strconv.Itoa(limit))
	if q.StartUs > 0 {
		params.Set("start", strconv.FormatInt(q.StartUs, 10))
	} else {
		lookback := q.Lookback
		if lookback == "" {
			lookback = DefaultLookback
		}
		params.Set("lookback", lookback)
	}
	if len(q.Tags) > 0 {
		tags, err := json.Marshal(q.Tags)
		if err != nil {
			return "", fmt.Errorf("encoding tag filter: %w", err)
		}
		params.Set("tags", string(tags))
	}
	return c.baseURL + "/api/traces?" + params.Encode(), nil
}

// Traces fetches every trace matching the query.
func (c *Client) Traces(ctx context.Context, q TraceQuery) ([]Trace, error) {
	if q.Service == "" {
		return nil, fmt.Errorf("trace query requires a service")
	}
	u, err := c.TracesURL(q)
	if err != nil {
		return nil, err
	}
	var resp TracesResponse
	if err := c.rest.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching traces for %s/%s: %w", q.Service, q.Operation, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("query service error %d: %s", resp.Errors[0].Code, resp.Errors[0].Msg)
	}
	logrus.Debugf("fetched %d traces for %s/%s", len(resp.Data), q.Service, q.Operation)
	return resp.Data, nil
}

// Services lists the services known to the query service.
func (c *Client) Services(ctx context.Context) ([]string, error) {
	var resp ServicesResponse
	if err := c.rest.GetJSON(ctx, c.baseURL+"/api/services", &resp); err != nil {
		return nil, fmt.Errorf("fetching services: %w", err)
	}
	return resp.Data, nil
}
