package workerclient

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

	"github.com/quadrant-vms/core-sub001/internal/lease"
)

func newTestWorkerServer(t *testing.T) *Server {
	t.Helper()
	store := lease.NewMemoryStore(lease.Limits{Min: time.Second, Max: time.Hour, Default: 30 * time.Second})
	client := NewMemoryClient(store, 1)
	mgr := NewManager(client, Config{MaxConcurrentTasks: 2})
	mgr.sleep = fastSleep
	return NewServer(mgr, "worker-1")
}

func doWorkerJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWorkerStartGetStopTask(t *testing.T) {
	srv := newTestWorkerServer(t)

	rec := doWorkerJSON(t, srv.Handler(), http.MethodPost, "/v1/tasks/", startTaskRequest{
		ResourceID: "cam-1",
		Kind:       "stream",
		TTLSecs:    30,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created taskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "cam-1", created.ResourceID)
	assert.NotEmpty(t, created.LeaseID)

	rec = doWorkerJSON(t, srv.Handler(), http.MethodGet, "/v1/tasks/cam-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doWorkerJSON(t, srv.Handler(), http.MethodGet, "/v1/tasks/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []taskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doWorkerJSON(t, srv.Handler(), http.MethodDelete, "/v1/tasks/cam-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doWorkerJSON(t, srv.Handler(), http.MethodGet, "/v1/tasks/cam-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkerStartTaskUnknownKindIsBadRequest(t *testing.T) {
	srv := newTestWorkerServer(t)
	rec := doWorkerJSON(t, srv.Handler(), http.MethodPost, "/v1/tasks/", startTaskRequest{
		ResourceID: "cam-1",
		Kind:       "bogus",
		TTLSecs:    30,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkerStartTaskDuplicateIsConflict(t *testing.T) {
	srv := newTestWorkerServer(t)
	body := startTaskRequest{ResourceID: "cam-1", Kind: "stream", TTLSecs: 30}
	rec := doWorkerJSON(t, srv.Handler(), http.MethodPost, "/v1/tasks/", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	t.Cleanup(func() { srv.StopAll(context.Background()) })

	rec = doWorkerJSON(t, srv.Handler(), http.MethodPost, "/v1/tasks/", body)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestWorkerStopAllStopsEveryTask(t *testing.T) {
	srv := newTestWorkerServer(t)
	for _, id := range []string{"cam-1", "cam-2"} {
		rec := doWorkerJSON(t, srv.Handler(), http.MethodPost, "/v1/tasks/", startTaskRequest{
			ResourceID: id, Kind: "stream", TTLSecs: 30,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	srv.StopAll(context.Background())

	rec := doWorkerJSON(t, srv.Handler(), http.MethodGet, "/v1/tasks/", nil)
	var list []taskView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list)
}
