package workerclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/quadrant-vms/core-sub001/internal/lease"
	"github.com/quadrant-vms/core-sub001/internal/log"
)

// Server exposes the worker's own task lifecycle over HTTP: the control
// surface a scheduler or operator uses to bind a task to a lease (spec.md
// §4's "a worker receives a start request"). It is a thin wrapper around
// Manager; all lease-ownership decisions still flow through the
// coordinator via Manager's CoordinatorClient.
type Server struct {
	mgr    *Manager
	holder string
	router http.Handler
}

// NewServer builds a worker control-plane Server. holderID identifies
// this worker process to the coordinator on every Acquire call.
func NewServer(mgr *Manager, holderID string) *Server {
	s := &Server{mgr: mgr, holder: holderID}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(tracingMiddleware)
	r.Use(log.Middleware())
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Post("/", s.handleStartTask)
		r.Get("/{resourceID}", s.handleGetTask)
		r.Delete("/{resourceID}", s.handleStopTask)
	})
	s.router = r
	return s
}

// Handler returns the root http.Handler for the worker control plane.
func (s *Server) Handler() http.Handler { return s.router }

// tracingMiddleware mirrors the coordinator's own span-per-request wrapper
// (internal/coordinator/middleware.go) so a task-start call's span is a
// parent of any lease acquire the coordinator performs on its behalf.
func tracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(
		next,
		"worker",
		otelhttp.WithTracerProvider(otel.GetTracerProvider()),
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				return false
			default:
				return true
			}
		}),
	)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type startTaskRequest struct {
	ResourceID string `json:"resource_id"`
	Kind       string `json:"kind"`
	TTLSecs    int64  `json:"ttl_secs"`
}

type taskView struct {
	ResourceID string `json:"resource_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	LeaseID    string `json:"lease_id,omitempty"`
}

func toTaskView(t *Task) taskView {
	return taskView{
		ResourceID: t.ResourceID,
		Kind:       string(t.Kind),
		Status:     string(t.Status()),
		LeaseID:    t.Lease().LeaseID,
	}
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	var req startTaskRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeWorkerError(w, http.StatusBadRequest, "bad_request", "malformed request body")
		return
	}
	if req.ResourceID == "" {
		writeWorkerError(w, http.StatusBadRequest, "bad_request", "resource_id is required")
		return
	}
	kind, ok := lease.ParseKind(req.Kind)
	if !ok {
		writeWorkerError(w, http.StatusBadRequest, "unknown_kind", "kind must be one of stream, recorder, ai, playback")
		return
	}

	task, granted, err := s.mgr.StartTask(r.Context(), req.ResourceID, s.holder, kind, time.Duration(req.TTLSecs)*time.Second)
	switch {
	case errors.Is(err, ErrTaskExists):
		writeWorkerError(w, http.StatusConflict, "task_exists", "a task for this resource is already managed by this worker")
		return
	case errors.Is(err, ErrAtCapacity):
		writeWorkerError(w, http.StatusTooManyRequests, "capacity_exceeded", "worker is at its concurrent task limit")
		return
	case err != nil:
		writeWorkerError(w, http.StatusBadGateway, "forward_failed", err.Error())
		return
	case !granted:
		writeWorkerError(w, http.StatusConflict, "lease_conflict", "resource is already owned elsewhere")
		return
	}

	writeWorkerJSON(w, http.StatusCreated, toTaskView(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")
	task, ok := s.mgr.Task(resourceID)
	if !ok {
		writeWorkerError(w, http.StatusNotFound, "not_found", "no such managed task")
		return
	}
	writeWorkerJSON(w, http.StatusOK, toTaskView(task))
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.mgr.Tasks()
	views := make([]taskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, toTaskView(t))
	}
	writeWorkerJSON(w, http.StatusOK, views)
}

func (s *Server) handleStopTask(w http.ResponseWriter, r *http.Request) {
	resourceID := chi.URLParam(r, "resourceID")
	if _, ok := s.mgr.Task(resourceID); !ok {
		writeWorkerError(w, http.StatusNotFound, "not_found", "no such managed task")
		return
	}
	s.mgr.StopTask(r.Context(), resourceID)
	writeWorkerJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func writeWorkerJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithComponent("workerclient").Error().Err(err).Msg("failed to encode response body")
	}
}

func writeWorkerError(w http.ResponseWriter, status int, code, detail string) {
	writeWorkerJSON(w, status, map[string]string{"error": code, "detail": detail})
}

// StopAll cancels every managed task's renewal loop and releases its
// lease, best-effort (spec.md §4.4 step 4, "On worker shutdown, iterate
// all active tasks and invoke the stop path for each").
func (s *Server) StopAll(ctx context.Context) {
	for _, t := range s.mgr.Tasks() {
		s.mgr.StopTask(ctx, t.ResourceID)
	}
}
