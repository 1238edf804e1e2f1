package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ClientOptions parameterise the scheduling-API client.
type ClientOptions struct {
	Endpoint string
	Username string
	Password string
	Timeout  time.Duration
}

// Client talks to the task/subscription API with basic auth.
type Client struct {
	opts     ClientOptions
	logger   zerolog.Logger
	client   *http.Client
	endpoint string
}

// NewClient constructs a scheduling-API client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		opts:     opts,
		logger:   logger.With().Str("component", "tasks_client").Logger(),
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
	}
}

// TasksForRun fetches one page of due tasks.
func (c *Client) TasksForRun(ctx context.Context, page, pageSize int) ([]Task, error) {
	if c.endpoint == "" {
		return nil, fmt.Errorf("tasks endpoint not configured")
	}

	url := fmt.Sprintf("%s/Task/GetTasksForRun?page=%d&pageSize=%d", c.endpoint, page, pageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.opts.Username, c.opts.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tasks: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tasks response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tasks api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var due []Task
	if err := json.Unmarshal(payload, &due); err != nil {
		return nil, fmt.Errorf("decode tasks response: %w", err)
	}
	return due, nil
}

// SetLastRun acknowledges a completed task.
func (c *Client) SetLastRun(ctx context.Context, id string) error {
	if c.endpoint == "" {
		return fmt.Errorf("tasks endpoint not configured")
	}

	url := fmt.Sprintf("%s/Task/SetLastRun?id=%s", c.endpoint, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.opts.Username, c.opts.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("set last run: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("set last run: unexpected status %d", resp.StatusCode)
	}
	return nil
}

var _ Source = (*Client)(nil)
