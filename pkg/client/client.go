package client

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cuemby/ipsecd/pkg/api"
	"github.com/cuemby/ipsecd/pkg/orchestrator"
	"github.com/cuemby/ipsecd/pkg/types"
)

// DefaultTimeout bounds every request to the daemon
const DefaultTimeout = 5 * time.Second

// Client talks to the ipsecd HTTP API for CLI usage
type Client struct {
	rc *resty.Client
}

// NewClient creates a client for the daemon listening on addr, either
// "host:port" or a full http URL
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}

	rc := resty.New().
		SetBaseURL(addr).
		SetTimeout(DefaultTimeout).
		SetRetryCount(2).
		SetHeader("Accept", "application/json")

	return &Client{rc: rc}
}

// Status returns the daemon's worker counters and listener state
func (c *Client) Status() (*orchestrator.Status, error) {
	var status orchestrator.Status
	if err := c.get("/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Stats returns the latest samples, all kinds when kind is empty
func (c *Client) Stats(kind types.StatKind) ([]*types.StatSnapshot, error) {
	var params map[string]string
	if kind != "" {
		params = map[string]string{"kind": string(kind)}
	}

	var snaps []*types.StatSnapshot
	if err := c.get("/stats", params, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// Errors returns up to limit reported errors, newest first
func (c *Client) Errors(limit int) ([]*types.IPsecError, error) {
	var errs []*types.IPsecError
	if err := c.get("/errors", map[string]string{"limit": strconv.Itoa(limit)}, &errs); err != nil {
		return nil, err
	}
	return errs, nil
}

// Apply sends a YAML manifest and returns the number of queued tasks. A
// partially applied manifest returns both a count and an error.
func (c *Client) Apply(manifest []byte) (int, error) {
	var result api.ApplyResponse
	resp, err := c.rc.R().
		SetHeader("Content-Type", "application/yaml").
		SetBody(manifest).
		SetResult(&result).
		SetError(&result).
		Post("/apply")
	if err != nil {
		return 0, fmt.Errorf("failed to apply manifest: %w", err)
	}

	if resp.IsError() {
		if result.Error != "" {
			return 0, fmt.Errorf("manifest rejected: %s", result.Error)
		}
		return 0, fmt.Errorf("manifest rejected: %s", resp.Status())
	}
	if result.Error != "" {
		return result.Queued, fmt.Errorf("manifest partially applied: %s", result.Error)
	}
	return result.Queued, nil
}

func (c *Client) get(path string, params map[string]string, out any) error {
	var apiErr api.ErrorResponse
	resp, err := c.rc.R().
		SetQueryParams(params).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", path, err)
	}

	if resp.StatusCode() != http.StatusOK {
		if apiErr.Error != "" {
			return fmt.Errorf("failed to get %s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("failed to get %s: %s", path, resp.Status())
	}
	return nil
}
