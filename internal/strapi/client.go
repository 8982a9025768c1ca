// Package strapi is the HTTP client for the content API that owns every
// record: todos, moods, words, favorites and transactions.
//
// The client attaches the bearer token, encodes bodies as JSON and turns any
// non-2xx response into an *APIError. It never retries and never caches.
package strapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"lifedesk/internal/log"
	"lifedesk/internal/middleware/trace"
)

const (
	defaultPageSize = 100
	maxBodyBytes    = 10 << 20
	maxMessageBytes = 512
)

// TokenSource supplies the bearer token for each request. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) string {
	return string(t)
}

// Client talks to one content API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	pageSize   int
	log        *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPageSize sets how many records each list page requests.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithTokenSource sets the default token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// New creates a client for baseURL, e.g. "http://localhost:1337/api".
func New(baseURL string, timeout time.Duration, logger *log.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     StaticToken(""),
		pageSize:   defaultPageSize,
		log:        logger.WithComponent(log.ComponentStrapi),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client that authenticates as token.
// The copy shares the connection pool.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.tokens = StaticToken(token)
	return &cp
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs one request. A non-nil body is sent as JSON; a non-nil out
// receives the decoded response body.
func (c *Client) Do(ctx context.Context, method, path string, query *Query, body, out any) error {
	target := c.baseURL + path
	if qs := query.Encode(); qs != "" {
		target += "?" + qs
	}

	var reader io.Reader
	if body != nil {
		payload, err := sonic.ConfigDefault.Marshal(body)
		if err != nil {
			return fmt.Errorf("strapi: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("strapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	requestID := trace.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "request failed",
			log.FieldMethod, method, log.FieldPath, path, log.FieldRequestID, requestID, log.FieldError, err.Error())
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NetworkError{Op: "read " + path, Err: err}
	}

	c.log.DebugContext(ctx, "request completed",
		log.FieldMethod, method,
		log.FieldPath, path,
		log.FieldRequestID, requestID,
		log.FieldUpstreamStatus, resp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
		c.log.WarnContext(ctx, "request rejected",
			log.FieldMethod, method, log.FieldPath, path, log.FieldUpstreamStatus, resp.StatusCode, log.FieldError, apiErr.Message)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := sonic.ConfigDefault.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("strapi: decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage prefers the backend's error.message and falls back to the raw text.
func errorMessage(raw []byte) string {
	var eb errorBody
	if err := sonic.ConfigDefault.Unmarshal(raw, &eb); err == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}
	return msg
}
