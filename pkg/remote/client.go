package remote

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

	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("remote base url is required")

type requestIDKey struct{}

// WithRequestID tags ctx so calls made with it forward X-Request-Id upstream.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Observer receives the outcome of every remote call.
type Observer interface {
	ObserveCall(service, operation string, status int, duration time.Duration)
}

// Client performs JSON requests against one upstream HTTP service.
type Client struct {
	service      string
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	apiKeyHeader string
	observer     Observer
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the key sent on every request. An empty header name sends it as a bearer token.
func WithAPIKey(header, key string) Option {
	return func(c *Client) {
		c.apiKeyHeader = strings.TrimSpace(header)
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithObserver records call durations and statuses.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds a client for the named upstream service.
func NewClient(service, baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("parsing remote base url: %w", err)
	}

	client := &Client{
		service:    service,
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Service returns the upstream name used in errors and metrics.
func (c *Client) Service() string {
	return c.service
}

// Request describes one call.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Header    http.Header
	Operation string
}

// StatusError reports a non-2xx response from the upstream.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *StatusError) UpstreamService() string { return e.Service }

func (e *StatusError) UpstreamStatus() int { return e.StatusCode }

// Do executes the request and decodes a JSON response into out when out is non-nil.
// Non-2xx responses return a typed error wrapping *StatusError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "remote client not configured")
	}

	operation := req.Operation
	if operation == "" {
		operation = strings.ToLower(req.Method)
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+operation+" request")
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.buildURL(req.Path, req.Query), body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+operation+" request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	c.applyAPIKey(httpReq)
	if id, _ := ctx.Value(requestIDKey{}).(string); id != "" {
		httpReq.Header.Set("X-Request-Id", id)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(operation, 0, time.Since(start))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+operation+" request")
	}
	defer func() { _ = resp.Body.Close() }()
	c.observe(operation, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		statusErr := &StatusError{
			Service:    c.service,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
		return pkgerrors.Wrap(codeForStatus(resp.StatusCode), statusErr, operation+" request failed")
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+operation+" response")
	}
	return nil
}

// StatusCode extracts the upstream status from an error returned by Do, or 0.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		return pkgerrors.CodeDependency
	}
}

func (c *Client) applyAPIKey(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	if c.apiKeyHeader == "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		return
	}
	req.Header.Set(c.apiKeyHeader, c.apiKey)
}

func (c *Client) observe(operation string, status int, duration time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveCall(c.service, operation, status, duration)
}

// URL resolves path and query against the base URL without performing a request.
func (c *Client) URL(path string, query url.Values) string {
	return c.buildURL(path, query)
}

func (c *Client) buildURL(path string, query url.Values) string {
	path = strings.TrimLeft(path, "/")
	full := fmt.Sprintf("%s/%s", c.baseURL, path)
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}
