// Package client talks to the mailwatch backend: typed REST calls for the
// email feed and word lists, and a relay connection for live events.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultTimeout bounds a single REST call when ctx carries no deadline.
const DefaultTimeout = 5 * time.Second

// APIError is a non-success response from the backend. Message carries the
// backend's reason.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// HTTPClient is the REST side of the backend.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

// NewHTTPClient creates a client targeting baseURL
// (e.g. "http://localhost:3000").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		client: &fasthttp.Client{
			Name:                "mailwatch-viewer",
			MaxIdleConnDuration: 30 * time.Second,
		},
	}
}

// WithTimeout sets the per-call timeout used when ctx has no deadline.
func (c *HTTPClient) WithTimeout(d time.Duration) *HTTPClient {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// BaseURL returns the backend root the client targets.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fasthttp.ReleaseRequest(req)
			return fmt.Errorf("marshaling request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(data)
	}

	status, respBody, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		var errResp struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Message != "" {
				return &APIError{StatusCode: status, Message: errResp.Message}
			}
			if errResp.Error != "" {
				return &APIError{StatusCode: status, Message: errResp.Error}
			}
		}
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = fasthttp.StatusMessage(status)
		}
		return &APIError{StatusCode: status, Message: msg}
	}

	if result != nil && status != fasthttp.StatusNoContent && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

type roundTripResult struct {
	status int
	body   []byte
	err    error
}

// roundTrip performs req and releases it. fasthttp only honours deadlines, so
// the call runs on its own goroutine and ctx cancellation returns at once;
// the abandoned exchange finishes within the client timeout.
func (c *HTTPClient) roundTrip(ctx context.Context, req *fasthttp.Request) (int, []byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan roundTripResult, 1)
	go func() {
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			done <- roundTripResult{err: err}
			return
		}
		done <- roundTripResult{
			status: resp.StatusCode(),
			body:   append([]byte(nil), resp.Body()...),
		}
	}()

	select {
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	case r := <-done:
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		if r.err != nil {
			return 0, nil, fmt.Errorf("performing request: %w", r.err)
		}
		return r.status, r.body, nil
	}
}
