package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/jobs"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorToHTTP(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperr.Validation("op", "bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"transition", apperr.InvalidTransition("op", "no"), http.StatusConflict, "INVALID_TRANSITION"},
		{"state", apperr.InvalidState("op", "no"), http.StatusConflict, "INVALID_STATE"},
		{"not found", apperr.NotFound("op", "gone"), http.StatusNotFound, "NOT_FOUND"},
		{"forbidden", apperr.Forbidden("op", "no"), http.StatusForbidden, "FORBIDDEN"},
		{"batch", apperr.Batch("op", errors.New("disk full")), http.StatusInternalServerError, "BATCH_FAILURE"},
		{"forbidden inside batch", apperr.Batch("op", apperr.Forbidden("inner", "no")), http.StatusForbidden, "FORBIDDEN"},
		{"timeout", apperr.Batch("op", context.DeadlineExceeded), http.StatusServiceUnavailable, "TIMEOUT"},
		{"wrapped", fmt.Errorf("outer: %w", apperr.NotFound("op", "gone")), http.StatusNotFound, "NOT_FOUND"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			errorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec)["code"])
		})
	}
}

func TestErrorToHTTP_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	errorToHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", decodeError(t, rec)["error"])
}

func echoCaller() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, callerFrom(r))
	})
}

func TestAuthenticator_Bearer(t *testing.T) {
	v := auth.NewVerifier("test-secret")
	token, err := v.Issue(auth.Caller{ID: "tenant-7", Role: auth.RoleTenant}, time.Hour)
	require.NoError(t, err)
	h := NewAuthenticator(v, false).Middleware(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var c auth.Caller
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, auth.Caller{ID: "tenant-7", Role: auth.RoleTenant}, c)

	req = httptest.NewRequest(http.MethodGet, "/?access_token="+token, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "query token for websocket clients")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_DevHeaders(t *testing.T) {
	h := NewAuthenticator(nil, true).Middleware(echoCaller())

	tests := []struct {
		actor, role string
		status      int
	}{
		{"admin-1", "admin", http.StatusOK},
		{"tenant-1", "Tenant", http.StatusOK},
		{"", "admin", http.StatusUnauthorized},
		{"job", "system", http.StatusUnauthorized},
		{"x", "landlord", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Actor", tt.actor)
		req.Header.Set("X-Role", tt.role)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, "%s/%s", tt.actor, tt.role)
	}
}

func TestAuthenticator_NoCredentials(t *testing.T) {
	h := NewAuthenticator(auth.NewVerifier("s"), false).Middleware(echoCaller())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", decodeError(t, rec)["code"])
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(echoCaller())

	req := httptest.NewRequest(http.MethodGet, "/v1/feed", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), auth.Caller{ID: "t", Role: auth.RoleTenant}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/feed", nil)
	req = req.WithContext(auth.WithCaller(req.Context(), auth.Caller{ID: "a", Role: auth.RoleAdmin}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map")
	}))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogging_NilLogger(t *testing.T) {
	h := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestRecovery_WithRequestID(t *testing.T) {
	h := middleware.RequestID(Recovery(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil)) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBind(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
		msg  string
	}{
		{"valid", `{"property_id":"p1","category":"plumbing","urgency":"critical"}`, true, ""},
		{"missing fields", `{"urgency":"high"}`, false, "property_id is required"},
		{"bad level", `{"property_id":"p1","category":"x","urgency":"urgent"}`, false, "urgency must be low, medium or high"},
		{"unknown field", `{"property_id":"p1","category":"x","urgency":"low","color":"red"}`, false, "invalid request body"},
		{"not json", `property_id=p1`, false, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req createTaskRequest
			rec := httptest.NewRecorder()
			ok := bind(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)), &req, false)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Contains(t, decodeError(t, rec)["error"], tt.msg)
			}
		})
	}
}

func TestBind_AllowEmpty(t *testing.T) {
	var req assignRequest
	rec := httptest.NewRecorder()
	assert.True(t, bind(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &req, true))
	assert.Nil(t, req.Capacity)

	rec = httptest.NewRecorder()
	assert.False(t, bind(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"capacity":0}`)), &req, true))
}

type fakeJobs struct{ err error }

func (f fakeJobs) List() []jobs.Info { return []jobs.Info{{Name: "assignment"}} }

func (f fakeJobs) Run(context.Context, string) error { return f.err }

func TestRunJob(t *testing.T) {
	tests := []struct {
		name string
		job  string
		err  error
		code int
		body string
	}{
		{"completed", "assignment", nil, http.StatusOK, ""},
		{"already running", "assignment", fmt.Errorf("assignment: %w", jobs.ErrRunning), http.StatusConflict, "JOB_RUNNING"},
		{"unknown", "cleanup", nil, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBatchHandler(nil, nil, nil, nil, nil, fakeJobs{err: tt.err}, 1)
			r := chi.NewRouter()
			r.Post("/jobs/{name}/run", h.RunJob)

			req := httptest.NewRequest(http.MethodPost, "/jobs/"+tt.job+"/run", nil)
			req = req.WithContext(auth.WithCaller(req.Context(), auth.Caller{ID: "a", Role: auth.RoleAdmin}))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.code, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, decodeError(t, rec)["code"])
			}
		})
	}
}
