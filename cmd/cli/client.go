package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// watchdogState mirrors the API's watchdog snapshot.
type watchdogState struct {
	SignalID             string    `json:"signal_id"`
	Active               bool      `json:"active"`
	Initialized          bool      `json:"initialized"`
	Value                string    `json:"value"`
	Candidate            string    `json:"candidate"`
	ConsecutiveMatches   int       `json:"consecutive_matches"`
	Pending              bool      `json:"pending"`
	Suppressed           bool      `json:"suppressed"`
	SuppressionRemaining int       `json:"suppression_remaining"`
	LastPoll             time.Time `json:"last_poll"`
	Polls                int       `json:"polls"`
	Notifications        int       `json:"notifications"`
}

type preference struct {
	SignalID      string    `json:"signal_id"`
	AlertsEnabled bool      `json:"alerts_enabled"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type apiClient struct {
	base string
	key  string
	http *http.Client
}

func newAPIClient(base, key string, timeout time.Duration) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		key:  key,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&e)
		if e.Error == "" {
			e.Error = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) Watchdogs(ctx context.Context) ([]watchdogState, error) {
	var out []watchdogState
	err := c.do(ctx, http.MethodGet, "/api/watchdogs", nil, &out)
	return out, err
}

func (c *apiClient) Watchdog(ctx context.Context, id string) (watchdogState, error) {
	var out watchdogState
	err := c.do(ctx, http.MethodGet, "/api/watchdogs/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Control runs start, stop or check on one watchdog.
func (c *apiClient) Control(ctx context.Context, id, action string) (watchdogState, error) {
	var out watchdogState
	err := c.do(ctx, http.MethodPost, "/api/watchdogs/"+url.PathEscape(id)+"/"+action, nil, &out)
	return out, err
}

func (c *apiClient) Preferences(ctx context.Context) ([]preference, error) {
	var out []preference
	err := c.do(ctx, http.MethodGet, "/api/preferences", nil, &out)
	return out, err
}

func (c *apiClient) SetAlerts(ctx context.Context, id string, enabled bool) (preference, error) {
	var out preference
	body := map[string]bool{"alerts_enabled": enabled}
	err := c.do(ctx, http.MethodPut, "/api/preferences/"+url.PathEscape(id), body, &out)
	return out, err
}
