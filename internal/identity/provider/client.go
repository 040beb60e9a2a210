// Package provider speaks the identity provider's REST verification API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bondgateway/pkg/platform/circuit"
)

const (
	SandboxBaseURL    = "https://testapi.smileidentity.com/v1"
	ProductionBaseURL = "https://api.smileidentity.com/v1"

	verificationPath = "/id_verification"
	maxResponseBytes = 1 << 20
	defaultTimeout   = 15 * time.Second
)

// BaseURL picks the provider environment. Only "0" selects the sandbox.
func BaseURL(env string) string {
	if env == "0" {
		return SandboxBaseURL
	}
	return ProductionBaseURL
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts signed verification requests. It never retries.
type Client struct {
	baseURL string
	client  HTTPDoer
	timeout time.Duration
	breaker *circuit.Breaker
	limiter *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithTimeout bounds the whole exchange including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker fails fast with ErrorProviderOutage while b is open.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

// WithRateLimiter spaces outbound calls to stay inside the provider quota.
// A call that cannot get a slot within the timeout fails as ErrorTimeout.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit performs exactly one POST to /id_verification. Any JSON object body
// is returned as a RawResponse whatever the HTTP status; interpreting it is
// the normalizer's job. Everything else is a *TransportError.
func (c *Client) Submit(ctx context.Context, req SignedRequest) (*RawResponse, error) {
	if c.breaker != nil && !c.breaker.Allow() {
		return nil, NewTransportError(ErrorProviderOutage, "circuit open", nil)
	}
	if c.limiter != nil {
		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.limiter.Wait(waitCtx)
		cancel()
		if err != nil {
			return nil, NewTransportError(ErrorTimeout, "provider request quota exhausted", err)
		}
	}

	raw, err := c.submit(ctx, req)
	if c.breaker != nil {
		// Only outages and timeouts say anything about provider health.
		if cat := GetCategory(err); err != nil && (cat == ErrorTimeout || cat == ErrorProviderOutage) {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
	return raw, err
}

func (c *Client) submit(ctx context.Context, req SignedRequest) (*RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, NewTransportError(ErrorInternal, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verificationPath, bytes.NewReader(body))
	if err != nil {
		return nil, NewTransportError(ErrorInternal, "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewTransportError(ErrorTimeout, "request timeout", err)
		}
		return nil, NewTransportError(ErrorProviderOutage, "failed to execute request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, NewTransportError(ErrorTimeout, "timeout reading response", err)
		}
		return nil, NewTransportError(ErrorBadData, "failed to read response", err)
	}

	var raw RawResponse
	if err := decodeObject(respBody, &raw); err != nil {
		te := NewTransportError(ErrorBadData, fmt.Sprintf("non-JSON response (status %d)", resp.StatusCode), err)
		te.StatusCode = resp.StatusCode
		if resp.StatusCode >= http.StatusInternalServerError {
			te.Category = ErrorProviderOutage
		}
		return nil, te
	}
	raw.StatusCode = resp.StatusCode
	raw.Body = respBody
	return &raw, nil
}

func decodeObject(body []byte, raw *RawResponse) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("body is not a JSON object")
	}
	return json.Unmarshal(trimmed, raw)
}
