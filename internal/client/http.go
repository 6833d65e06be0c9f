// Package client talks to a perfect-number stream server over HTTP and
// WebSocket.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/perfect-stream/backend/internal/session"
	"github.com/perfect-stream/backend/internal/stream"
)

// ErrStreamFailed is returned when the server ends a stream with an error
// frame.
var ErrStreamFailed = errors.New("stream failed")

// StreamOptions selects what a stream request asks for. Zero values leave
// the choice to the server.
type StreamOptions struct {
	Limit     int
	BatchSize int
	Mode      string
}

func (o StreamOptions) query() url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(o.Limit))
	if o.BatchSize > 0 {
		q.Set("batchSize", strconv.Itoa(o.BatchSize))
	}
	if o.Mode != "" {
		q.Set("mode", o.Mode)
	}
	return q
}

// CheckResult is the answer of /api/perfect/check.
type CheckResult struct {
	N        string `json:"n"`
	Perfect  bool   `json:"perfect"`
	Exponent int    `json:"exponent,omitempty"`
}

// HTTPClient makes REST and streaming calls to the backend.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	// streams are long-lived and bounded by the caller's context only
	streamClient *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		streamClient: &http.Client{},
	}
}

// Stream reads /api/perfect/stream and calls fn for each record in order.
// Returning an error from fn stops the stream and closes the connection.
func (c *HTTPClient) Stream(ctx context.Context, opts StreamOptions, fn func(stream.Record) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/perfect/stream?"+opts.query().Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(http.MethodGet, "/api/perfect/stream", resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var frame struct {
			stream.Record
			Error string `json:"error"`
		}
		if err := json.Unmarshal(line, &frame); err != nil {
			return fmt.Errorf("decode stream line: %w", err)
		}
		if frame.Error != "" {
			return fmt.Errorf("%w: %s", ErrStreamFailed, frame.Error)
		}
		if err := fn(frame.Record); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}

// List fetches /api/perfect/list.
func (c *HTTPClient) List(ctx context.Context, limit int) ([]stream.Record, error) {
	var out []stream.Record
	if err := c.get(ctx, "/api/perfect/list?limit="+strconv.Itoa(limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Check fetches /api/perfect/check for the decimal number n.
func (c *HTTPClient) Check(ctx context.Context, n string) (*CheckResult, error) {
	var out CheckResult
	if err := c.get(ctx, "/api/perfect/check?n="+url.QueryEscape(n), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sessions fetches /api/sessions.
func (c *HTTPClient) Sessions(ctx context.Context) ([]session.Snapshot, error) {
	var out []session.Snapshot
	if err := c.get(ctx, "/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(http.MethodGet, path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is a non-2xx reply. Message holds the server's error text
// when the body carried one.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
}

func statusError(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(body)
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: msg}
}
