package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quadrant-vms/core-sub001/internal/lease"
)

// HTTPClient is the CoordinatorClient implementation a worker process
// uses against a remote coordinator. It always dials its configured
// coordinator address; any follower→leader forwarding happens
// server-side and is transparent here.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a client against baseURL (e.g. "http://node-1:8080").
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(&http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			}),
		},
	}
}

type acquireBody struct {
	ResourceID string `json:"resource_id"`
	HolderID   string `json:"holder_id"`
	Kind       string `json:"kind"`
	TTLSecs    int64  `json:"ttl_secs"`
}

type acquireResult struct {
	Granted bool          `json:"granted"`
	Record  *lease.Record `json:"record"`
}

func (c *HTTPClient) Acquire(ctx context.Context, resourceID, holderID string, kind lease.Kind, ttl time.Duration) (bool, lease.Record, error) {
	var result acquireResult
	status, err := c.doJSON(ctx, http.MethodPost, "/v1/leases/acquire", acquireBody{
		ResourceID: resourceID, HolderID: holderID, Kind: string(kind), TTLSecs: int64(ttl.Seconds()),
	}, &result)
	if err != nil {
		return false, lease.Record{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return false, lease.Record{}, fmt.Errorf("acquire: unexpected status %d", status)
	}
	if !result.Granted || result.Record == nil {
		return false, lease.Record{}, nil
	}
	return true, *result.Record, nil
}

type renewBody struct {
	LeaseID string `json:"lease_id"`
	TTLSecs int64  `json:"ttl_secs"`
}

type renewResult struct {
	Renewed bool          `json:"renewed"`
	Record  *lease.Record `json:"record"`
}

func (c *HTTPClient) Renew(ctx context.Context, leaseID string, ttl time.Duration) (bool, lease.Record, error) {
	var result renewResult
	status, err := c.doJSON(ctx, http.MethodPost, "/v1/leases/renew", renewBody{
		LeaseID: leaseID, TTLSecs: int64(ttl.Seconds()),
	}, &result)
	if err != nil {
		return false, lease.Record{}, err
	}
	if status != http.StatusOK {
		return false, lease.Record{}, fmt.Errorf("renew: unexpected status %d", status)
	}
	if !result.Renewed || result.Record == nil {
		return false, lease.Record{}, nil
	}
	return true, *result.Record, nil
}

func (c *HTTPClient) Release(ctx context.Context, leaseID string) (bool, error) {
	var result map[string]bool
	status, err := c.doJSON(ctx, http.MethodPost, "/v1/leases/release", map[string]string{
		"lease_id": leaseID,
	}, &result)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("release: unexpected status %d", status)
	}
	return result["released"], nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
