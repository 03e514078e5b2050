// Package client provides an HTTP client for the harvest server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/metrics"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/server"
)

// ErrNotFound is returned when the server does not know a job or source.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when the source already has a running job.
var ErrConflict = errors.New("job already running")

// Client talks to the harvest server.
type Client struct {
	endpoint   string
	user       string
	httpClient *http.Client
}

// New creates a new client.
// If endpoint is empty, uses HARVEST_SERVER_URL env var or defaults to localhost:8484.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("HARVEST_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8484"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("HARVEST_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		user:       os.Getenv("USER"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.user != "" {
		req.Header.Set(server.UserHeader, c.user)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w", method, path, ErrConflict)
	case resp.StatusCode >= 300:
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, e.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: %s", resp.Status)
	}
	return nil
}

// Sources lists the registered harvest sources.
func (c *Client) Sources(ctx context.Context) ([]config.Source, error) {
	var out []config.Source
	if err := c.do(ctx, http.MethodGet, "/sources", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Run starts a harvest job for a source.
func (c *Client) Run(ctx context.Context, source string) (*models.HarvestJob, error) {
	var job models.HarvestJob
	if err := c.do(ctx, http.MethodPost, "/sources/"+url.PathEscape(source)+"/run", &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Job returns a job with its recorded errors.
func (c *Client) Job(ctx context.Context, id string) (*server.JobDetail, error) {
	var detail server.JobDetail
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Jobs lists the most recent jobs.
func (c *Client) Jobs(ctx context.Context, limit int) ([]models.HarvestJob, error) {
	var out []models.HarvestJob
	if err := c.do(ctx, http.MethodGet, "/jobs?limit="+strconv.Itoa(limit), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the server's runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Watch streams job snapshots until the job finishes.
// The onUpdate callback is invoked for each snapshot. Return an error from onUpdate to abort.
func (c *Client) Watch(ctx context.Context, id string, onUpdate func(models.HarvestJob) error) error {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/jobs/" + url.PathEscape(id) + "/watch")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("watch %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

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
		var job models.HarvestJob
		if err := conn.ReadJSON(&job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onUpdate(job); err != nil {
			return err
		}
	}
}
