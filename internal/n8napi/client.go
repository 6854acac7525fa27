// Package n8napi is a small client for the n8n HTTP API. It authenticates
// either with a public API key (X-N8N-API-KEY against /api/v1) or with an
// owner login session (cookie against /rest), the same two routes n8n's
// own editor and CLI tooling use.
package n8napi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultURL     = "http://localhost:5678"
	DefaultTimeout = 30 * time.Second

	apiKeyHeader = "X-N8N-API-KEY"
	// maxRetryTime bounds retries of requests that failed to connect.
	maxRetryTime = 10 * time.Second
)

// ErrNotFound is returned when a workflow lookup matches nothing.
var ErrNotFound = errors.New("workflow not found")

// Auth says how requests are authenticated.
type Auth int

const (
	AuthNone Auth = iota
	AuthAPIKey
	AuthSession
)

func (a Auth) String() string {
	switch a {
	case AuthAPIKey:
		return "api key"
	case AuthSession:
		return "login session"
	default:
		return "none"
	}
}

// APIError is a non-success HTTP response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), body)
}

// IsUnauthorized reports whether err is a 401 or 403 from n8n.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}

// Client talks to one n8n instance.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	auth       Auth
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey authenticates against the public API.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
		c.auth = AuthAPIKey
	}
}

// WithTimeout bounds each request, connection retries included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a client for the instance at rawURL. Requests that fail
// to connect are retried with exponential backoff; HTTP errors are not.
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	baseURL, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse n8n URL: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("parse n8n URL %q: scheme must be http or https", rawURL)
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &retryRoundTripper{
				base: http.DefaultTransport,
				newBackoff: func() backoff.BackOff {
					return backoff.NewExponentialBackOff(
						backoff.WithInitialInterval(200*time.Millisecond),
						backoff.WithMaxInterval(2*time.Second),
						backoff.WithMaxElapsedTime(maxRetryTime),
					)
				},
			},
		},
		log: slog.With("component", "n8napi"),
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	c.httpClient.Jar = jar
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the instance URL requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Auth reports how the client currently authenticates.
func (c *Client) Auth() Auth {
	return c.auth
}

// workflowsPath is the collection endpoint for the current auth mode. The
// public API only accepts API keys; a login session goes through /rest.
func (c *Client) workflowsPath() string {
	if c.auth == AuthSession {
		return "/rest/workflows"
	}
	return "/api/v1/workflows"
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth == AuthAPIKey {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	return req, nil
}

// do sends req and returns the response when its status is one of ok. Any
// other status is drained into an *APIError.
func (c *Client) do(req *http.Request, ok ...int) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	for _, s := range ok {
		if resp.StatusCode == s {
			return resp, nil
		}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return nil, &APIError{Method: req.Method, Path: req.URL.Path, Status: resp.StatusCode, Body: string(body)}
}

// retryRoundTripper retries requests on transient network errors.
type retryRoundTripper struct {
	base       http.RoundTripper
	newBackoff func() backoff.BackOff
}

func (rt *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	first := true
	attempt := func() (*http.Response, error) {
		r := req
		if !first && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			r = req.Clone(req.Context())
			r.Body = body
		}
		first = false

		resp, err := rt.base.RoundTrip(r)
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				slog.Debug("retrying n8n request after network error", "path", req.URL.Path, "err", err)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}
	boff := backoff.WithContext(rt.newBackoff(), req.Context())
	return backoff.RetryWithData(attempt, boff)
}
