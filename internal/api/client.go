// Package api is the client of the remote wallet REST API. It owns the one
// place where an authorization failure is handled: a 401 from any endpoint
// clears the caller's session before the error is returned.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"wallet-web/internal/middleware"
	"wallet-web/internal/session"
)

// ErrUnauthorized is returned when the API rejected the bearer credential.
// By the time it is returned the session has been cleared.
var ErrUnauthorized = errors.New("api: unauthorized")

// DefaultTimeout bounds a single API call.
const DefaultTimeout = 15 * time.Second

// Error is a non-2xx, non-401 API response.
type Error struct {
	Status int
	// Message is the server's error text, or "" when it sent none.
	Message string
	// Fields holds the first validation message per field.
	Fields map[string]string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Message returns the text to show the user for err: the server's message when
// it sent one, fallback otherwise.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// FieldMessage returns the server's validation message for field, or "".
func FieldMessage(err error, field string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Fields[field]
	}
	return ""
}

// Credentials is the part of a session the client needs: the bearer token to
// send and the ability to wipe it when the API rejects it.
type Credentials interface {
	Get(key string) string
	Clear() error
}

// Client talks to the wallet API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the API rooted at baseURL, e.g.
// "http://localhost:8000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doJSON sends in (if non-nil) as JSON and decodes the response into out (if
// non-nil).
func (c *Client) doJSON(ctx context.Context, creds Credentials, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	resp, err := c.send(ctx, creds, method, path, query, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := decodeJSON(resp.Body, out); err != nil {
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

// send performs the request and applies the response policy. On success the
// caller owns the response body.
func (c *Client) send(ctx context.Context, creds Credentials, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := middleware.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(middleware.RequestIDHeader, requestID)
	if creds != nil {
		if token := creds.Get(session.KeyAccessToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Info("credential rejected, clearing session",
			"method", method, "path", path, "request_id", requestID)
		if creds != nil {
			if err := creds.Clear(); err != nil {
				c.logger.Error("failed to clear session", "error", err)
			}
		}
		return nil, ErrUnauthorized
	}

	apiErr := decodeError(resp)
	c.logger.Debug("api error", "method", method, "path", path,
		"status", resp.StatusCode, "message", apiErr.Message, "request_id", requestID)
	return nil, apiErr
}

// decodeError reads the error envelope: {"error": "..."}, {"detail": "..."} or
// a map of field name to list of validation messages.
func decodeError(resp *http.Response) *Error {
	apiErr := &Error{Status: resp.StatusCode, Fields: map[string]string{}}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var body map[string]json.RawMessage
	if json.Unmarshal(raw, &body) != nil {
		return apiErr
	}

	for key, value := range body {
		if msg := firstString(value); msg != "" {
			apiErr.Fields[key] = msg
		}
	}

	for _, key := range []string{"error", "detail", "non_field_errors"} {
		if msg := apiErr.Fields[key]; msg != "" {
			apiErr.Message = msg
			return apiErr
		}
	}

	keys := make([]string, 0, len(apiErr.Fields))
	for key := range apiErr.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		apiErr.Message = apiErr.Fields[keys[0]]
	}
	return apiErr
}

func firstString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}
