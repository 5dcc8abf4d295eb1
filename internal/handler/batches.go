package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/propmaint/internal/jobs"
	"github.com/matthewbaird/propmaint/internal/metrics"
	"github.com/matthewbaird/propmaint/internal/prediction"
	"github.com/matthewbaird/propmaint/internal/priority"
	"github.com/matthewbaird/propmaint/internal/schedule"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// JobRunner is the subset of jobs.Scheduler the handlers use.
type JobRunner interface {
	List() []jobs.Info
	Run(ctx context.Context, name string) error
}

// BatchHandler exposes the admin batch operations: predictions, priority
// refresh, weekly assignment and the reports built on them.
type BatchHandler struct {
	predictions *prediction.Runner
	priorities  *priority.Engine
	scheduler   *schedule.Scheduler
	reader      store.Reader
	metrics     *metrics.Service
	jobs        JobRunner
	capacity    int
}

func NewBatchHandler(pred *prediction.Runner, prio *priority.Engine, sched *schedule.Scheduler, r store.Reader, m *metrics.Service, j JobRunner, capacity int) *BatchHandler {
	return &BatchHandler{predictions: pred, priorities: prio, scheduler: sched, reader: r, metrics: m, jobs: j, capacity: capacity}
}

// PreviewPredictions GET /v1/predictions/preview
func (h *BatchHandler) PreviewPredictions(w http.ResponseWriter, r *http.Request) {
	cands, err := h.predictions.Preview(r.Context(), callerFrom(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if cands == nil {
		cands = []prediction.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": cands})
}

// GeneratePredictions POST /v1/predictions
func (h *BatchHandler) GeneratePredictions(w http.ResponseWriter, r *http.Request) {
	res, err := h.predictions.Run(r.Context(), callerFrom(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if res.Created == nil {
		res.Created = []types.Task{}
	}
	writeJSON(w, http.StatusOK, res)
}

// ApplyPriorities POST /v1/priorities/apply
func (h *BatchHandler) ApplyPriorities(w http.ResponseWriter, r *http.Request) {
	res, err := h.priorities.Apply(r.Context(), callerFrom(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if res.Changed == nil {
		res.Changed = []priority.Change{}
	}
	writeJSON(w, http.StatusOK, res)
}

type assignRequest struct {
	Capacity *int `json:"capacity,omitempty" validate:"omitempty,min=1"`
}

// AssignWeekly runs the weekly assignment. The body is optional; capacity
// defaults to the configured weekly capacity.
// POST /v1/assignments
func (h *BatchHandler) AssignWeekly(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !bind(w, r, &req, true) {
		return
	}
	capacity := h.capacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	batch, err := h.scheduler.AssignWeekly(r.Context(), callerFrom(r), capacity)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if batch.Assignments == nil {
		batch.Assignments = []types.Assignment{}
	}
	writeJSON(w, http.StatusOK, batch)
}

// ListAssignments GET /v1/assignments?batch_id=
func (h *BatchHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, "schedule.list_assignments", "list assignments"); !ok {
		return
	}
	as, err := h.reader.ListAssignments(r.Context(), r.URL.Query().Get("batch_id"))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if as == nil {
		as = []types.Assignment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"assignments": as, "total_count": len(as)})
}

// Metrics GET /v1/metrics
func (h *BatchHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, "metrics.snapshot", "read metrics"); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.metrics.Snapshot(r.Context()))
}

// ListJobs GET /v1/jobs
func (h *BatchHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, "jobs.list", "list jobs"); !ok {
		return
	}
	list := []jobs.Info{}
	if h.jobs != nil {
		list = h.jobs.List()
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

// RunJob runs a scheduled job immediately.
// POST /v1/jobs/{name}/run
func (h *BatchHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, "jobs.run", "run jobs"); !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if h.jobs == nil || !hasJob(h.jobs.List(), name) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown job "+name)
		return
	}
	if err := h.jobs.Run(r.Context(), name); err != nil {
		if errors.Is(err, jobs.ErrRunning) {
			writeError(w, http.StatusConflict, "JOB_RUNNING", err.Error())
			return
		}
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job": name, "status": "completed"})
}

func hasJob(list []jobs.Info, name string) bool {
	for _, j := range list {
		if j.Name == name {
			return true
		}
	}
	return false
}
