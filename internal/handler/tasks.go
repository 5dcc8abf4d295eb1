package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/attachment"
	"github.com/matthewbaird/propmaint/internal/lifecycle"
	"github.com/matthewbaird/propmaint/internal/priority"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// TaskHandler implements the maintenance task endpoints.
type TaskHandler struct {
	ctrl        *lifecycle.Controller
	prio        *priority.Engine
	activity    activity.Store
	attachments attachment.Store
	maxUpload   int64
	log         *slog.Logger
}

func NewTaskHandler(ctrl *lifecycle.Controller, prio *priority.Engine, acts activity.Store, files attachment.Store, maxUpload int64, log *slog.Logger) *TaskHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &TaskHandler{ctrl: ctrl, prio: prio, activity: acts, attachments: files, maxUpload: maxUpload, log: log}
}

type createTaskRequest struct {
	PropertyID  string  `json:"property_id" validate:"required"`
	Category    string  `json:"category" validate:"required,max=100"`
	Urgency     string  `json:"urgency" validate:"required,level"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=4000"`
}

// CreateTask submits a reactive request. It accepts JSON, or multipart form
// data with an optional "attachment" file part.
// POST /v1/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var (
		req  createTaskRequest
		file multipart.File
		name string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "ATTACHMENT_TOO_LARGE", err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart form: "+err.Error())
			return
		}
		defer r.MultipartForm.RemoveAll()
		req.PropertyID = r.FormValue("property_id")
		req.Category = r.FormValue("category")
		req.Urgency = r.FormValue("urgency")
		if d := r.FormValue("description"); d != "" {
			req.Description = &d
		}
		if !check(w, &req) {
			return
		}
		f, hdr, err := r.FormFile("attachment")
		switch {
		case err == nil:
			defer f.Close()
			file, name = f, hdr.Filename
		case !errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, "INVALID_ATTACHMENT", err.Error())
			return
		}
	} else if !bind(w, r, &req, false) {
		return
	}

	ctx := r.Context()
	// Reject unknown properties before storing anything.
	if _, err := h.ctrl.Reader().GetProperty(ctx, req.PropertyID); errors.Is(err, apperr.ErrNotFound) {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unknown property "+req.PropertyID)
		return
	} else if err != nil {
		errorToHTTP(w, r, err)
		return
	}

	in := lifecycle.ReactiveInput{
		PropertyID:  req.PropertyID,
		Category:    req.Category,
		Urgency:     types.Level(req.Urgency),
		Description: req.Description,
	}
	if file != nil {
		if h.attachments == nil {
			writeError(w, http.StatusBadRequest, "ATTACHMENTS_DISABLED", "attachments are not configured")
			return
		}
		ref, err := h.attachments.Put(ctx, file, name)
		if err != nil {
			errorToHTTP(w, r, err)
			return
		}
		in.AttachmentRef = &ref
	}

	task, err := h.prio.CreateReactive(ctx, callerFrom(r), in)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// ListTasks lists tasks. Tenants only see their own.
// GET /v1/tasks?status=pending,active&property_id=&origin=&requester_id=
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	f, err := taskFilter(r)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	tasks, err := h.ctrl.ListTasks(r.Context(), callerFrom(r), f)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []types.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "total_count": len(tasks)})
}

// taskFilter reads the task list query parameters.
func taskFilter(r *http.Request) (store.TaskFilter, error) {
	const op = "http.task_filter"
	q := r.URL.Query()
	f := store.TaskFilter{
		PropertyID:  q.Get("property_id"),
		RequesterID: q.Get("requester_id"),
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st, ok := types.ParseStatus(part)
			if !ok {
				return store.TaskFilter{}, apperr.Validation(op, "unknown status %s", part)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	switch o := types.Origin(strings.ToLower(q.Get("origin"))); o {
	case "", types.OriginReactive, types.OriginPredictive:
		f.Origin = o
	default:
		return store.TaskFilter{}, apperr.Validation(op, "unknown origin %s", o)
	}
	return f, nil
}

// GetTask GET /v1/tasks/{id}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.ctrl.GetTask(r.Context(), callerFrom(r), urlID(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type patchTaskRequest struct {
	Status   *string `json:"status,omitempty" validate:"omitempty,status"`
	Priority *int    `json:"priority,omitempty" validate:"omitempty,min=1,max=3"`
}

// PatchTask changes status and/or priority in one transaction. The status
// change is applied first.
// PATCH /v1/tasks/{id}
func (h *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	var req patchTaskRequest
	if !bind(w, r, &req, false) {
		return
	}
	if req.Status == nil && req.Priority == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "status or priority is required")
		return
	}

	ctx, caller, id := r.Context(), callerFrom(r), urlID(r)
	var task types.Task
	err := h.ctrl.Atomically(ctx, func(op *lifecycle.Op) error {
		var err error
		if req.Status != nil {
			st, _ := types.ParseStatus(*req.Status)
			if task, err = op.SetStatus(ctx, caller, id, st); err != nil {
				return err
			}
		}
		if req.Priority != nil {
			if task, err = op.SetPriority(ctx, caller, id, *req.Priority); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// PromoteTask moves a predicted task to pending and scores it.
// POST /v1/tasks/{id}/promote
func (h *TaskHandler) PromoteTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.prio.Promote(r.Context(), callerFrom(r), urlID(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// TaskActivity returns the task's activity log, newest first.
// GET /v1/tasks/{id}/activity
func (h *TaskHandler) TaskActivity(w http.ResponseWriter, r *http.Request) {
	task, err := h.ctrl.GetTask(r.Context(), callerFrom(r), urlID(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeActivity(w, r, h.activity, "task", task.ID)
}

type feedbackRequest struct {
	Rating  int     `json:"rating" validate:"required,min=1,max=5"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// SubmitFeedback POST /v1/tasks/{id}/feedback
func (h *TaskHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !bind(w, r, &req, false) {
		return
	}
	fb, err := h.ctrl.SubmitFeedback(r.Context(), callerFrom(r), urlID(r), req.Rating, req.Comment)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// GetFeedback GET /v1/tasks/{id}/feedback
func (h *TaskHandler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	task, err := h.ctrl.GetTask(ctx, callerFrom(r), urlID(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	fb, err := h.ctrl.Reader().GetFeedback(ctx, task.ID)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
