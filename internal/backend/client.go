package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	apperr "github.com/sentrygate/gateway/pkg/errors"
)

// Response is a fully-buffered backend reply, used for non-streaming
// calls.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError carries a backend's 4xx/5xx response through unclassified,
// so the router can pass it through with its original status instead of
// folding it into upstream_error.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: status %d", e.StatusCode)
}

// Client is a pooled HTTP client to one or more backend targets. A bounded
// per-host connection pool is configured once and reused across calls.
type Client struct {
	httpClient  *http.Client
	idleTimeout time.Duration
}

// NewClient builds a Client with a bounded idle-connection pool per host.
// idleTimeout bounds how long a streaming Next() may wait for the next
// chunk before the stream is treated as stalled.
func NewClient(maxIdleConnsPerHost int, idleTimeout time.Duration) *Client {
	if maxIdleConnsPerHost <= 0 {
		maxIdleConnsPerHost = 16
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		httpClient:  &http.Client{Transport: transport},
		idleTimeout: idleTimeout,
	}
}

// Call issues a non-streaming request and returns once the full body has
// arrived. Deadlines come from ctx. Transport failures classify as
// upstream_error; a context deadline classifies as request_timeout.
func (c *Client) Call(ctx context.Context, backendURL, path, method string, body []byte, headers http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, backendURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "building backend request", err)
	}
	if headers != nil {
		req.Header = headers.Clone()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamError, "reading backend response body", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// Stream issues a request and returns immediately with a handle producing
// a lazy sequence of response lines. A 4xx/5xx status is returned as
// *StatusError with the response body, not opened as a stream.
func (c *Client) Stream(ctx context.Context, backendURL, path, method string, body []byte, headers http.Header) (*StreamHandle, error) {
	req, err := http.NewRequestWithContext(ctx, method, backendURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "building backend request", err)
	}
	if headers != nil {
		req.Header = headers.Clone()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr(ctx, err)
	}

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return newStreamHandle(resp, c.idleTimeout), nil
}

func classifyTransportErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindRequestTimeout, "backend request timed out", err)
	}
	return apperr.Wrap(apperr.KindUpstreamError, "backend request failed", err)
}
