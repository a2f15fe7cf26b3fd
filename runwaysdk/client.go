// Package runwaysdk provides a client for the Runway API.
package runwaysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/xerrors"
)

// SessionTokenHeader is the custom header to use for authentication.
const SessionTokenHeader = "Runway-Session-Token"

// Client wraps the Runway HTTP API.
type Client struct {
	// URL is the base of the API.
	URL *url.URL
	// HTTPClient defaults to http.DefaultClient if nil.
	HTTPClient *http.Client

	mu           sync.RWMutex
	sessionToken string
}

// New creates a Runway client for the provided URL.
func New(serverURL *url.URL) *Client {
	return &Client{
		URL:        serverURL,
		HTTPClient: &http.Client{},
	}
}

// SessionToken returns the current token for the client.
func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

// SetSessionToken sets the session token on all future requests.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = token
}

// RequestOption mutates a request before it is sent.
type RequestOption func(*http.Request)

// WithQueryParam adds a query parameter to the request.
func WithQueryParam(key, value string) RequestOption {
	return func(r *http.Request) {
		if value == "" {
			return
		}
		q := r.URL.Query()
		q.Add(key, value)
		r.URL.RawQuery = q.Encode()
	}
}

// Request performs a HTTP request against the API. The response body must
// be closed by the caller.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...RequestOption) (*http.Response, error) {
	serverURL, err := c.URL.Parse(path)
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}

	var r io.Reader
	if body != nil {
		switch data := body.(type) {
		case io.Reader:
			r = data
		case []byte:
			r = bytes.NewReader(data)
		default:
			buf, err := json.Marshal(body)
			if err != nil {
				return nil, xerrors.Errorf("marshal request body: %w", err)
			}
			r = bytes.NewReader(buf)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, serverURL.String(), r)
	if err != nil {
		return nil, xerrors.Errorf("create request: %w", err)
	}
	if token := c.SessionToken(); token != "" {
		req.Header.Set(SessionTokenHeader, token)
	}
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("do request: %w", err)
	}
	return resp, nil
}

// Response represents a generic HTTP response.
type Response struct {
	// Message is an actionable message that depicts actions the request took.
	Message string `json:"message"`
	// Detail is a debug message that provides further insight into why the
	// action failed.
	Detail string `json:"detail,omitempty"`
	// Validations are form field-specific friendly error messages.
	Validations []ValidationError `json:"validations,omitempty"`
}

// ValidationError represents a scoped error to a user input.
type ValidationError struct {
	Field  string `json:"field" validate:"required"`
	Detail string `json:"detail" validate:"required"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("field: %s detail: %s", e.Field, e.Detail)
}

// Error represents an unaccepted or invalid request to the API.
type Error struct {
	Response

	statusCode int
	method     string
	url        string
}

// StatusCode returns the HTTP status code of the response.
func (e *Error) StatusCode() int {
	return e.statusCode
}

func (e *Error) Error() string {
	var builder strings.Builder
	if e.method != "" && e.url != "" {
		_, _ = fmt.Fprintf(&builder, "%v %v: ", e.method, e.url)
	}
	_, _ = fmt.Fprintf(&builder, "unexpected status code %d: %s", e.statusCode, e.Message)
	if e.Detail != "" {
		_, _ = fmt.Fprintf(&builder, "\n\tError: %s", e.Detail)
	}
	for _, err := range e.Validations {
		_, _ = fmt.Fprintf(&builder, "\n\t%s: %s", err.Field, err.Detail)
	}
	return builder.String()
}

// AsError attempts to convert an error to *Error.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	return apiErr, xerrors.As(err, &apiErr)
}

// ReadBodyAsError reads the response as a Response and wraps it in an
// Error with the request metadata attached.
func ReadBodyAsError(res *http.Response) error {
	if res == nil {
		return xerrors.New("no body returned; violates the http.Client contract")
	}
	defer res.Body.Close()

	var method, u string
	if res.Request != nil {
		method = res.Request.Method
		if res.Request.URL != nil {
			u = res.Request.URL.String()
		}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return xerrors.Errorf("read body: %w", err)
	}

	if !strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		return &Error{
			statusCode: res.StatusCode,
			method:     method,
			url:        u,
			Response: Response{
				Message: "unexpected non-JSON response",
				Detail:  string(body),
			},
		}
	}

	var m Response
	err = json.Unmarshal(body, &m)
	if err != nil {
		return &Error{
			statusCode: res.StatusCode,
			method:     method,
			url:        u,
			Response: Response{
				Message: "unexpected status code",
				Detail:  string(body),
			},
		}
	}
	return &Error{
		statusCode: res.StatusCode,
		method:     method,
		url:        u,
		Response:   m,
	}
}
