package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/progression/internal/config"
)

// daemonClient talks to progressiond over its HTTP API
type daemonClient struct {
	baseURL string
	http    *http.Client
}

// apiError is the daemon's JSON error body
type apiError struct {
	Message string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details"`
}

func (e *apiError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, e.Details)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

// newDaemonClient resolves the daemon address from the flag or the config file
func newDaemonClient(addr string) (*daemonClient, error) {
	if addr == "" {
		cfg, err := config.LoadLocalConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		addr = fmt.Sprintf("%s:%d", cfg.Daemon.Bind, cfg.Daemon.Port)
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &daemonClient{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// isRunning checks if the daemon is running by calling the health endpoint
func (c *daemonClient) isRunning() bool {
	resp, err := c.http.Get(c.baseURL + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *daemonClient) get(path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return c.do(http.MethodGet, u, nil, out)
}

func (c *daemonClient) post(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.do(http.MethodPost, c.baseURL+path, bytes.NewReader(data), out)
}

func (c *daemonClient) delete(path string, out interface{}) error {
	return c.do(http.MethodDelete, c.baseURL+path, nil, out)
}

func (c *daemonClient) do(method, u string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (run 'progression start' first): %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// identityQuery encodes the persistent identity flags
func (o *cliOptions) identityQuery() url.Values {
	q := url.Values{}
	q.Set("user_id", o.userID)
	if o.profileID != "" {
		q.Set("profile_id", o.profileID)
	}
	return q
}

// identityBody is merged into every write request
func (o *cliOptions) identityBody() map[string]interface{} {
	body := map[string]interface{}{"user_id": o.userID}
	if o.profileID != "" {
		body["profile_id"] = o.profileID
	}
	return body
}

func (o *cliOptions) requireUser() error {
	if o.userID == "" {
		return fmt.Errorf("user id required (--user or PROGRESSION_USER)")
	}
	return nil
}
