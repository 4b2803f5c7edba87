// Package client provides an HTTP and WebSocket client for scanjobs-server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/scanjobs/internal/jobs"
	"github.com/raphaelgruber/scanjobs/internal/service"
)

// Client talks to a scanjobs server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses SCANJOBS_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via SCANJOBS_CLIENT_TIMEOUT env var (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SCANJOBS_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("SCANJOBS_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Message)
}

// Is maps status codes back to the engine's sentinel errors.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusConflict:
		return target == jobs.ErrKindBusy
	case http.StatusBadRequest:
		return target == service.ErrInvalidInput
	case http.StatusNotImplemented:
		return target == service.ErrNoJobBody
	}
	return false
}

// Submitted identifies an accepted job.
type Submitted struct {
	Kind  jobs.Kind `json:"kind"`
	RunID uuid.UUID `json:"run_id"`
}

// Stats is the server's /stats payload.
type Stats struct {
	Server struct {
		Version string `json:"version"`
		Clients int    `json:"clients"`
	} `json:"server"`
	Metrics struct {
		UptimeSeconds float64                  `json:"uptime_seconds"`
		Operations    map[string]OperationStats `json:"operations"`
	} `json:"metrics"`
}

// OperationStats holds metrics for a single job kind.
type OperationStats struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	Cancelled   int64   `json:"cancelled"`
	Rejected    int64   `json:"rejected"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Analyze submits an image for OCR.
func (c *Client) Analyze(ctx context.Context, path string, crop jobs.CropPoints) (Submitted, error) {
	var out Submitted
	err := c.do(ctx, http.MethodPost, "/analyze", map[string]any{"path": path, "crop": crop}, &out)
	return out, err
}

// AnalyzePDF submits pages of the server's current document for OCR.
func (c *Client) AnalyzePDF(ctx context.Context, pages []int) (Submitted, error) {
	var out Submitted
	err := c.do(ctx, http.MethodPost, "/analyze-pdf", map[string]any{"pages": pages}, &out)
	return out, err
}

// Rotate submits an image rotation.
func (c *Client) Rotate(ctx context.Context, path string, rotation int, gallery bool) (Submitted, error) {
	var out Submitted
	err := c.do(ctx, http.MethodPost, "/rotate", map[string]any{"path": path, "rotation": rotation, "gallery": gallery}, &out)
	return out, err
}

// Thumbnails submits thumbnail generation for a PDF or directory.
func (c *Client) Thumbnails(ctx context.Context, path string) (Submitted, error) {
	var out Submitted
	err := c.do(ctx, http.MethodPost, "/thumbnails", map[string]any{"path": path}, &out)
	return out, err
}

// Cancel requests cancellation of kind, or of every running kind when kind
// is empty. It returns the kinds the request reached.
func (c *Client) Cancel(ctx context.Context, kind string) ([]jobs.Kind, error) {
	path := "/cancel"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var out struct {
		Cancelled []jobs.Kind `json:"cancelled"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Cancelled, nil
}

// Status reports every job kind.
func (c *Client) Status(ctx context.Context) ([]service.KindStatus, error) {
	var out []service.KindStatus
	err := c.do(ctx, http.MethodGet, "/status", nil, &out)
	return out, err
}

// Stats returns the server's run statistics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// errStopWatching ends Watch without an error.
var errStopWatching = errors.New("stop watching")

// StopWatching may be returned by a Watch callback to end the stream cleanly.
func StopWatching() error { return errStopWatching }

// Watch streams server events to onEvent until ctx is done, the server
// closes the stream, or onEvent returns an error.
func (c *Client) Watch(ctx context.Context, onEvent func(service.Event) error) error {
	// Convert HTTP endpoint to WebSocket endpoint
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/events")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev service.Event
		if err := conn.ReadJSON(&ev); err != nil {
			// Check if this was due to context cancellation
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			if errors.Is(err, errStopWatching) {
				return nil
			}
			return err
		}
	}
}
