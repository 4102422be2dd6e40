package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

// ErrNotFound is returned when WooCommerce answers 404 or an empty lookup.
var ErrNotFound = errors.New("woocommerce: not found")

const apiPrefix = "/wp-json/wc/v3/"

// APIError carries a non-2xx WooCommerce response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("woocommerce: status %d: %s", e.Status, e.Body)
}

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the WooCommerce REST API v3 with basic auth.
type Client struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	HTTP           Doer
}

// Options configures NewClient.
type Options struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
	RetryBase      time.Duration
	MaxAttempts    int
	JitterPercent  int
	Breaker        *resilience.Breaker
}

// NewClient builds a Client whose transport is traced and guarded by retries and a circuit breaker.
func NewClient(opts Options) *Client {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	return &Client{
		BaseURL:        strings.TrimRight(opts.BaseURL, "/"),
		ConsumerKey:    opts.ConsumerKey,
		ConsumerSecret: opts.ConsumerSecret,
		HTTP: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     opts.Breaker,
			BaseBackoff: opts.RetryBase,
			MaxAttempts: opts.MaxAttempts,
			Jitter:      float64(opts.JitterPercent) / 100,
			Timeout:     opts.Timeout,
			Target:      "woocommerce",
		},
	}
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, dst any) error {
	return c.do(ctx, http.MethodGet, endpoint, query, nil, dst)
}

func (c *Client) post(ctx context.Context, endpoint string, body, dst any) error {
	return c.do(ctx, http.MethodPost, endpoint, nil, body, dst)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, dst any) (err error) {
	if c.HTTP == nil || c.BaseURL == "" {
		return errors.New("woocommerce: client not configured")
	}
	start := time.Now()
	defer func() { observe(endpoint, start, err) }()

	u := c.BaseURL + apiPrefix + strings.TrimLeft(endpoint, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("woocommerce: encode %s: %w", endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("woocommerce: build request: %w", err)
	}
	req.SetBasicAuth(c.ConsumerKey, c.ConsumerSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("woocommerce: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("woocommerce: decode %s: %w", endpoint, err)
	}
	return nil
}

// observe records latency against the resource name, never the full path.
func observe(endpoint string, start time.Time, err error) {
	if obs.UpstreamLatency == nil {
		return
	}
	resource := strings.TrimLeft(endpoint, "/")
	if idx := strings.IndexAny(resource, "/?"); idx >= 0 {
		resource = resource[:idx]
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	obs.UpstreamLatency.WithLabelValues(resource, result).Observe(float64(time.Since(start).Milliseconds()))
}
