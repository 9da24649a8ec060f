package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/tracing"
)

// Options configures a collaborator client
type Options struct {
	Name      string // breaker name, also used in errors
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	Token     string  // bearer token
	APIKey    string  // sent as X-API-Key
	RPS       float64 // 0 means unlimited
	Breaker   *resilience.Breaker
}

// DefaultOptions returns production settings for a named collaborator
func DefaultOptions(name, baseURL string) Options {
	return Options{
		Name:      name,
		BaseURL:   baseURL,
		Timeout:   30 * time.Second,
		Retries:   2,
		RetryWait: 500 * time.Millisecond,
	}
}

// Client wraps resty with rate limiting and a circuit breaker. The registry,
// install-state and data clients are all built on it.
type Client struct {
	Name    string
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
	Mu      sync.RWMutex
}

// StatusError reports a non-2xx response
type StatusError struct {
	Client string
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s: %s %s returned %d: %s", e.Client, e.Method, e.URL, e.Code, body)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// New creates a client for one collaborator
func New(opts Options) *Client {
	// Pooled transport from retryablehttp; retries themselves are resty's
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(10*opts.RetryWait).
		SetHeader("User-Agent", "ExtensionHost/1.0").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	if opts.Token != "" {
		restyClient.SetAuthToken(opts.Token)
	}
	if opts.APIKey != "" {
		restyClient.SetHeader("X-API-Key", opts.APIKey)
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.New(opts.Name, resilience.Settings{
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			IsSuccessful: ClientFault,
		})
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &Client{
		Name:    opts.Name,
		Resty:   restyClient,
		Limiter: limiter,
		Breaker: breaker,
	}
}

// ClientFault treats success and 4xx responses as healthy: the collaborator
// answered, the request was wrong. Only transport errors and 5xx count
// against the breaker.
func ClientFault(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code < http.StatusInternalServerError
}

// SetBearerAuth replaces the bearer token
func (c *Client) SetBearerAuth(token string) {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Resty.SetAuthToken(token)
}

// Request creates a new request after rate limiting and a breaker check
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, fmt.Errorf("%s: %w", c.Name, resilience.ErrCircuitOpen)
	}

	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limit: %w", c.Name, err)
	}

	headers := make(map[string]string, 2)
	tracing.InjectTraceContext(ctx, headers)

	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Resty.R().SetContext(ctx).SetHeaders(headers), nil
}

// Do builds a request, runs send through the breaker and converts non-2xx
// responses into *StatusError.
func (c *Client) Do(ctx context.Context, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	req, err := c.Request(ctx)
	if err != nil {
		return nil, err
	}

	return resilience.Call(c.Breaker, func() (*resty.Response, error) {
		resp, err := send(req)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}
		if resp.IsError() {
			return resp, &StatusError{
				Client: c.Name,
				Method: resp.Request.Method,
				URL:    resp.Request.URL,
				Code:   resp.StatusCode(),
				Body:   resp.String(),
			}
		}
		return resp, nil
	})
}

// GetJSON fetches path and decodes the body into out
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		return r.Get(path)
	})
	if err != nil {
		return err
	}
	return DecodeJSON(resp, out)
}

// SendJSON sends body with the given method and decodes a JSON reply into
// out when out is non-nil
func (c *Client) SendJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.Do(ctx, func(r *resty.Request) (*resty.Response, error) {
		if body != nil {
			r.SetHeader("Content-Type", "application/json").SetBody(body)
		}
		return r.Execute(method, path)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return DecodeJSON(resp, out)
}

// DecodeJSON decodes a response body regardless of its declared content type
func DecodeJSON(resp *resty.Response, out interface{}) error {
	body := resp.Body()
	if len(body) == 0 {
		return fmt.Errorf("empty response from %s", resp.Request.URL)
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", resp.Request.URL, err)
	}
	return nil
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.Breaker.State()
}
