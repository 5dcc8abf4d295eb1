package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/matthewbaird/propmaint/internal/transfer"
)

// ExportTasks streams tasks as CSV. Accepts the ListTasks filters.
// GET /v1/tasks/export
func (h *TaskHandler) ExportTasks(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireAdmin(w, r, "transfer.export", "export tasks")
	if !ok {
		return
	}
	f, err := taskFilter(r)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	tasks, err := h.ctrl.ListTasks(r.Context(), caller, f)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="maintenance_tasks.csv"`)
	if err := transfer.Export(w, tasks); err != nil {
		h.log.Warn("task export interrupted", "error", err)
	}
}

// ImportTasks creates tasks from a CSV upload, all or nothing. The file is
// either the request body (text/csv) or the multipart field "file".
// POST /v1/tasks/import
func (h *TaskHandler) ImportTasks(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireAdmin(w, r, "transfer.import", "import tasks")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart field \"file\" is required")
			return
		}
		defer f.Close()
		src = f
	}

	res, err := transfer.Import(r.Context(), h.ctrl, caller, src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error())
			return
		}
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
