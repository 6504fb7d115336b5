// Package registry fetches instance records from the dashboard's REST API.
// It is the cold-start data source and the fallback while the push channel
// is unavailable.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ierrors "github.com/rileyhilliard/instsync/internal/errors"
	"github.com/rileyhilliard/instsync/internal/instance"
	"github.com/rileyhilliard/instsync/internal/logger"
)

// ErrNotFound is returned by Get when the backend has no such instance.
var ErrNotFound = errors.New("instance not found")

// maxBody caps how much of a response we read.
const maxBody = 32 << 20

// Client calls GET {base}{path} and GET {base}{path}/{id}.
type Client struct {
	base string
	path string
	http *http.Client
	log  logger.Logger
}

// NewClient creates a client. timeout bounds each request.
func NewClient(baseURL, path string, timeout time.Duration) *Client {
	if path == "" {
		path = "/api/instances"
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		path: "/" + strings.Trim(path, "/"),
		http: &http.Client{Timeout: timeout},
		log:  logger.NewEnvLogger("[pull]"),
	}
}

// WithLogger replaces the client's logger and returns the client.
func (c *Client) WithLogger(l logger.Logger) *Client {
	c.log = l
	return c
}

// List returns every instance the backend knows about. Records that fail to
// decode are skipped. A body that is not a JSON array is a protocol error.
func (c *Client) List(ctx context.Context) ([]instance.Record, error) {
	endpoint := c.base + c.path
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if trimmed := bytes.TrimSpace(body); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ierrors.New(ierrors.ErrProtocol,
			fmt.Sprintf("GET %s did not return an instance list", endpoint),
			"The endpoint must return a JSON array of instance objects")
	}
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, ierrors.WrapWithCode(err, ierrors.ErrProtocol,
			fmt.Sprintf("GET %s returned malformed JSON", endpoint), "")
	}

	records := make([]instance.Record, 0, len(items))
	for i, item := range items {
		var raw map[string]any
		if err := json.Unmarshal(item, &raw); err != nil {
			c.log.Warn("skipping record %d: not an object", i)
			continue
		}
		r, err := instance.Decode(raw)
		if err != nil {
			c.log.Warn("skipping record %d: %v", i, err)
			continue
		}
		records = append(records, r)
	}
	if len(records) == 0 && len(items) > 0 {
		return nil, ierrors.New(ierrors.ErrProtocol,
			fmt.Sprintf("GET %s returned %d records, none usable", endpoint, len(items)),
			"Each entry must be an object with an id")
	}
	c.log.Debug("pulled %d instances", len(records))
	return records, nil
}

// Get fetches one instance.
func (c *Client) Get(ctx context.Context, id instance.ID) (instance.Record, error) {
	endpoint := c.base + c.path + "/" + url.PathEscape(string(id))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return instance.Record{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return instance.Record{}, ierrors.WrapWithCode(err, ierrors.ErrProtocol,
			fmt.Sprintf("GET %s did not return an instance object", endpoint), "")
	}
	r, err := instance.Decode(raw)
	if err != nil {
		return instance.Record{}, ierrors.WrapWithCode(err, ierrors.ErrProtocol,
			fmt.Sprintf("GET %s returned a malformed instance", endpoint), "")
	}
	return r, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, ierrors.WrapWithCode(err, ierrors.ErrConfig,
			fmt.Sprintf("Invalid pull URL %q", endpoint),
			"Check pull.url and pull.path in your config")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ierrors.WrapWithCode(err, ierrors.ErrPull,
			fmt.Sprintf("GET %s failed", endpoint),
			"Is the dashboard backend running and reachable?")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, ierrors.WrapWithCode(err, ierrors.ErrPull,
			fmt.Sprintf("Reading response from %s", endpoint), "")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", endpoint, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, ierrors.New(ierrors.ErrPull,
			fmt.Sprintf("GET %s returned %s", endpoint, resp.Status),
			strings.TrimSpace(string(body)))
	}
	return body, nil
}
