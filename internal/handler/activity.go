package handler

import (
	"net/http"
	"time"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/types"
)

// ActivityHandler serves activity search across all entities.
type ActivityHandler struct {
	store activity.Store
}

func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

func writeActivity(w http.ResponseWriter, r *http.Request, store activity.Store, entityType, entityID string) {
	opts, err := parseActivityOptions(r)
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	entries, nextCursor, totalCount, err := store.QueryByEntity(r.Context(), entityType, entityID, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}

	resp := struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	}
	if resp.Activities == nil {
		resp.Activities = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	Query      string   `json:"query" validate:"required"`
	EntityType string   `json:"entity_type,omitempty" validate:"omitempty,oneof=task property batch"`
	Since      string   `json:"since,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Categories []string `json:"categories,omitempty"`
	Limit      int      `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
}

// HandleSearchActivity performs substring search across activity summaries.
// POST /v1/activity/search
func (h *ActivityHandler) HandleSearchActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, "activity.search", "search activity"); !ok {
		return
	}
	var req searchRequest
	if !bind(w, r, &req, false) {
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.EntityType = req.EntityType
	opts.Categories = req.Categories
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.Since != "" {
		t, _ := time.Parse(time.RFC3339, req.Since)
		opts.Since = &t
	}

	entries, totalCount, err := h.store.Search(r.Context(), req.Query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}

	resp := struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}{
		Results:    entries,
		TotalCount: totalCount,
	}
	if resp.Results == nil {
		resp.Results = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}
