package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPTransport sends vote/heartbeat RPCs over plain HTTP to peer
// coordinator processes. Grounded on the hardened client pattern used
// elsewhere in this codebase: bounded dial/idle timeouts, no implicit
// retries (RPCs here are fire-and-forget per spec.md §4.2).
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport whose client timeout defaults to 3s
// when timeout is zero or negative.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          16,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       30 * time.Second,
				ResponseHeaderTimeout: timeout,
			},
		},
	}
}

func (t *HTTPTransport) SendVote(ctx context.Context, peer Peer, req VoteRequest) (VoteResponse, error) {
	var resp VoteResponse
	err := t.post(ctx, peer.Address, "/cluster/vote", req, &resp)
	return resp, err
}

func (t *HTTPTransport) SendHeartbeat(ctx context.Context, peer Peer, req HeartbeatRequest) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	err := t.post(ctx, peer.Address, "/cluster/heartbeat", req, &resp)
	return resp, err
}

func (t *HTTPTransport) post(ctx context.Context, addr, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode rpc body: %w", err)
	}
	url := fmt.Sprintf("http://%s%s", addr, path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc to %s returned status %d", addr, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
