package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadrant-vms/core-sub001/internal/cluster"
	"github.com/quadrant-vms/core-sub001/internal/lease"
	"github.com/quadrant-vms/core-sub001/internal/statestore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	leases := lease.NewMemoryStore(lease.Limits{Min: time.Second, Max: time.Hour, Default: 30 * time.Second})
	state := statestore.NewMemoryStore()

	// A single-node cluster self-elects as soon as Run's startup jitter
	// elapses, without waiting for an election timeout; the Eventually
	// below waits for that before any request is sent.
	mgr := cluster.New("node-1", nil, cluster.DefaultConfig(), noopTransport{}, nil)
	done := make(chan struct{})
	go func() {
		mgr.Run(t.Context())
		close(done)
	}()
	require.Eventually(t, func() bool {
		leader, _ := mgr.IsLeader()
		return leader
	}, 2*time.Second, 5*time.Millisecond)

	return New(Config{
		NodeID:         "node-1",
		ForwardTimeout: time.Second,
		AdmissionRPS:   1000,
		AdmissionBurst: 1000,
	}, leases, mgr, state)
}

type noopTransport struct{}

func (noopTransport) SendVote(_ context.Context, _ cluster.Peer, _ cluster.VoteRequest) (cluster.VoteResponse, error) {
	return cluster.VoteResponse{}, nil
}
func (noopTransport) SendHeartbeat(_ context.Context, _ cluster.Peer, _ cluster.HeartbeatRequest) (cluster.HeartbeatResponse, error) {
	return cluster.HeartbeatResponse{}, nil
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAcquireRenewRelease(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", acquireRequest{
		ResourceID: "cam-1", HolderID: "worker-a", Kind: "stream", TTLSecs: 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var acq acquireResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acq))
	require.True(t, acq.Granted)
	require.NotNil(t, acq.Record)

	renewRec := doJSON(t, h, http.MethodPost, "/v1/leases/renew", renewRequest{
		LeaseID: acq.Record.LeaseID, TTLSecs: 30,
	})
	assert.Equal(t, http.StatusOK, renewRec.Code)
	var renewResp renewResponse
	require.NoError(t, json.Unmarshal(renewRec.Body.Bytes(), &renewResp))
	assert.True(t, renewResp.Renewed)
	require.NotNil(t, renewResp.Record)

	releaseRec := doJSON(t, h, http.MethodPost, "/v1/leases/release", releaseRequest{LeaseID: acq.Record.LeaseID})
	assert.Equal(t, http.StatusOK, releaseRec.Code)

	// Idempotent: second release also succeeds with released=false.
	releaseRec2 := doJSON(t, h, http.MethodPost, "/v1/leases/release", releaseRequest{LeaseID: acq.Record.LeaseID})
	assert.Equal(t, http.StatusOK, releaseRec2.Code)
	var releaseBody map[string]bool
	require.NoError(t, json.Unmarshal(releaseRec2.Body.Bytes(), &releaseBody))
	assert.False(t, releaseBody["released"])
}

// TestAcquireConflictIsNotGranted covers spec.md §7 taxonomy item 3:
// LeaseConflict is a 200-equivalent, non-exceptional answer, not an error
// status.
func TestAcquireConflictIsNotGranted(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec1 := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", acquireRequest{
		ResourceID: "cam-1", HolderID: "worker-a", Kind: "stream", TTLSecs: 30,
	})
	require.Equal(t, http.StatusCreated, rec1.Code)

	rec2 := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", acquireRequest{
		ResourceID: "cam-1", HolderID: "worker-b", Kind: "stream", TTLSecs: 30,
	})
	assert.Equal(t, http.StatusOK, rec2.Code)
	var acq2 acquireResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &acq2))
	assert.False(t, acq2.Granted)
	assert.Nil(t, acq2.Record)
}

func TestAcquireUnknownKindIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", acquireRequest{
		ResourceID: "cam-1", HolderID: "worker-a", Kind: "not-a-kind", TTLSecs: 30,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcquireNegativeTTLIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", acquireRequest{
		ResourceID: "cam-1", HolderID: "worker-a", Kind: "stream", TTLSecs: -5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListLeasesReturnsBareArray(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/leases/acquire", acquireRequest{
		ResourceID: "cam-1", HolderID: "worker-a", Kind: "stream", TTLSecs: 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	listRec := doJSON(t, h, http.MethodGet, "/v1/leases/", nil)
	require.Equal(t, http.StatusOK, listRec.Code)

	var records []lease.Record
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "cam-1", records[0].ResourceID)
}

func TestStateStoreUpsertGetDelete(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	upsertRec := doJSON(t, h, http.MethodPut, "/v1/state/streams/cam-1", statestore.Record{
		NodeID: "worker-a", State: statestore.TaskProcessing,
	})
	require.Equal(t, http.StatusOK, upsertRec.Code)

	getRec := doJSON(t, h, http.MethodGet, "/v1/state/streams/cam-1", nil)
	require.Equal(t, http.StatusOK, getRec.Code)

	deleteRec := doJSON(t, h, http.MethodDelete, "/v1/state/streams/cam-1", nil)
	require.Equal(t, http.StatusOK, deleteRec.Code)

	notFoundRec := doJSON(t, h, http.MethodGet, "/v1/state/streams/cam-1", nil)
	assert.Equal(t, http.StatusNotFound, notFoundRec.Code)
}

func TestHealthzAndReadyz(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	healthzRec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, healthzRec.Code)

	readyzRec := doJSON(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, readyzRec.Code)
}
