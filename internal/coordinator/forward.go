package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// forwarder issues a follower→leader HTTP request carrying the original
// body, propagating trace context via otelhttp (spec.md §4.3 "routing
// discipline"). Acquire is never retried on timeout (non-idempotent);
// renew/release may be retried once by the caller since they are
// idempotent — that choice is left to each handler.
type forwarder struct {
	client *http.Client
}

func newForwarder(timeout time.Duration) *forwarder {
	return &forwarder{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (f *forwarder) forward(ctx context.Context, leaderAddr, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode forwarded body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	url := fmt.Sprintf("http://%s%s", leaderAddr, path)
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build forwarded request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-By", "coordinator")

	resp, err := f.client.Do(req)
	if err != nil {
		forwardedRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	forwardedRequestsTotal.WithLabelValues("ok").Inc()
	return resp, nil
}

// decodeForwardedResponse copies resp's status and body into the
// original ResponseWriter unchanged, so a forwarded call is
// indistinguishable from a local one to the original caller.
func decodeForwardedResponse(w http.ResponseWriter, resp *http.Response) {
	defer func() { _ = resp.Body.Close() }()
	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.WithComponent("coordinator").Warn().Err(err).Msg("failed to copy forwarded response body")
	}
}
