package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/logger"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writeJSON encode error", "error", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindValidation:        http.StatusBadRequest,
	apperr.KindInvalidTransition: http.StatusConflict,
	apperr.KindInvalidState:      http.StatusConflict,
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindBatchFailure:      http.StatusInternalServerError,
}

// errorToHTTP maps engine errors to HTTP responses. A forbidden cause wins
// over an enclosing batch failure, and deadline errors are reported as
// retryable.
func errorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), slog.Default())
	switch {
	case errors.Is(err, apperr.ErrForbidden):
		writeError(w, http.StatusForbidden, string(apperr.KindForbidden), err.Error())
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warn("request timed out", "error", err)
		writeError(w, http.StatusServiceUnavailable, "TIMEOUT", "operation timed out, nothing was changed; retry")
		return
	}

	kind := apperr.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		log.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, string(apperr.KindInternal), "internal server error")
		return
	}
	if status >= 500 {
		log.Error("request failed", "kind", kind, "error", err)
	}
	writeError(w, status, string(kind), err.Error())
}

// callerFrom returns the caller the auth middleware attached.
func callerFrom(r *http.Request) auth.Caller {
	c, _ := auth.FromContext(r.Context())
	return c
}

// requireAdmin writes a 403 unless the caller is an admin. action completes
// "role X may not ...".
func requireAdmin(w http.ResponseWriter, r *http.Request, op, action string) (auth.Caller, bool) {
	c := callerFrom(r)
	if !c.IsAdmin() {
		errorToHTTP(w, r, apperr.Forbidden(op, "role %q may not %s", c.Role, action))
		return c, false
	}
	return c, true
}

// parseActivityOptions reads since/until/categories/event_types/limit/cursor.
func parseActivityOptions(r *http.Request) (activity.QueryOptions, error) {
	q := r.URL.Query()
	opts := activity.QueryOptions{}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return opts, apperr.Validation("activity.query", "since: %v", err)
		}
		opts.Since = &t
	}
	if u := q.Get("until"); u != "" {
		t, err := time.Parse(time.RFC3339, u)
		if err != nil {
			return opts, apperr.Validation("activity.query", "until: %v", err)
		}
		opts.Until = &t
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if ets := q.Get("event_types"); ets != "" {
		opts.EventTypes = strings.Split(ets, ",")
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			return opts, apperr.Validation("activity.query", "limit must be a positive integer")
		}
		opts.Limit = n
	}
	opts.Cursor = q.Get("cursor")
	return opts, nil
}

func urlID(r *http.Request) string { return chi.URLParam(r, "id") }
