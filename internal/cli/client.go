package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/botkeeper/internal/server"
)

// APIClient talks to a running control surface.
type APIClient struct {
	base string
	http *http.Client
}

// NewAPIClient creates a client for the surface at base.
func NewAPIClient(base string) *APIClient {
	return &APIClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// List returns every session.
func (c *APIClient) List(ctx context.Context) ([]server.Session, error) {
	var out []server.Session
	err := c.do(ctx, http.MethodGet, "/api/bots", nil, &out)
	return out, err
}

// Add creates a session and returns its id.
func (c *APIClient) Add(ctx context.Context, host string, port int, username string) (string, error) {
	var res server.Result
	req := server.AddRequest{Host: host, Port: server.Port(port), Username: username}
	if err := c.do(ctx, http.MethodPost, "/api/bots", req, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Delete removes a session.
func (c *APIClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/bots/"+url.PathEscape(id), nil, nil)
}

// Reconnect restarts a session and waits for the replacement.
func (c *APIClient) Reconnect(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/bots/"+url.PathEscape(id)+"/reconnect", nil, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e server.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("%s %s: %s", method, path, resp.Status)
		}
		return fmt.Errorf("%s (%d)", e.Error, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
