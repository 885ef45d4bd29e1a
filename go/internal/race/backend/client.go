package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	StartSessionPath = "/api/session/start"
	StopSessionPath  = "/api/session/stop"

	DefaultTimeout = 5 * time.Second
)

// Client notifies the timing backend when a race session starts and stops.
// It satisfies session.Notifier.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

type startSessionRequest struct {
	Type string `json:"type"`
}

// SessionStarted tells the backend the race clock is running
func (c *Client) SessionStarted(ctx context.Context) error {
	body, err := json.Marshal(startSessionRequest{Type: "race"})
	if err != nil {
		return fmt.Errorf("failed to marshal start request: %w", err)
	}
	if _, err := c.makeRequest(ctx, http.MethodPost, StartSessionPath, bytes.NewReader(body)); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	log.Info().Str("endpoint", StartSessionPath).Msg("backend notified of session start")
	return nil
}

// SessionStopped tells the backend the session is over
func (c *Client) SessionStopped(ctx context.Context) error {
	if _, err := c.makeRequest(ctx, http.MethodPost, StopSessionPath, nil); err != nil {
		return fmt.Errorf("stop session: %w", err)
	}
	log.Info().Str("endpoint", StopSessionPath).Msg("backend notified of session stop")
	return nil
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}
