package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Event describes one handled webhook request
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	ChatID     int64     `json:"chat_id,omitempty"`
	UpdateKind string    `json:"update_kind,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// Client posts request events to an external analytics collector.
// Delivery is best effort: failures are logged and never surfaced to
// the request path. A client with an empty endpoint is a no-op.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an analytics client. An empty endpoint disables
// reporting entirely.
func NewClient(endpoint string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Enabled reports whether events will actually be delivered
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

// Report delivers one event. Errors are logged at debug level only; the
// collector being down must never affect webhook handling.
func (c *Client) Report(ctx context.Context, event Event) {
	if !c.Enabled() {
		return
	}
	if err := c.send(ctx, event); err != nil {
		c.logger.Debug("Analytics delivery failed",
			slog.String("endpoint", c.endpoint),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Client) send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned HTTP %d", resp.StatusCode)
	}

	return nil
}
