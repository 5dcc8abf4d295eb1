package handler

import (
	"net/http"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/registry"
	"github.com/matthewbaird/propmaint/internal/types"
)

// PropertyHandler implements the property registry endpoints.
type PropertyHandler struct {
	registry *registry.Registry
	activity activity.Store
}

func NewPropertyHandler(reg *registry.Registry, acts activity.Store) *PropertyHandler {
	return &PropertyHandler{registry: reg, activity: acts}
}

type propertyRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Address   *string `json:"address,omitempty" validate:"omitempty,max=500"`
	YearBuilt *int    `json:"year_built,omitempty"`
}

type propertyPatchRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Address   *string `json:"address,omitempty" validate:"omitempty,max=500"`
	YearBuilt *int    `json:"year_built,omitempty"`
}

// CreateProperty POST /v1/properties
func (h *PropertyHandler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req propertyRequest
	if !bind(w, r, &req, false) {
		return
	}
	p, err := h.registry.Create(r.Context(), callerFrom(r), registry.PropertyInput{
		Name:      req.Name,
		Address:   req.Address,
		YearBuilt: req.YearBuilt,
	})
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProperty GET /v1/properties/{id}
func (h *PropertyHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Get(r.Context(), urlID(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListProperties GET /v1/properties
func (h *PropertyHandler) ListProperties(w http.ResponseWriter, r *http.Request) {
	props, err := h.registry.List(r.Context())
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	if props == nil {
		props = []types.Property{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": props, "total_count": len(props)})
}

// UpdateProperty PATCH /v1/properties/{id}
func (h *PropertyHandler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	var req propertyPatchRequest
	if !bind(w, r, &req, false) {
		return
	}
	p, err := h.registry.Update(r.Context(), callerFrom(r), urlID(r), registry.PropertyPatch{
		Name:      req.Name,
		Address:   req.Address,
		YearBuilt: req.YearBuilt,
	})
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PropertyActivity GET /v1/properties/{id}/activity
func (h *PropertyHandler) PropertyActivity(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r, "property.activity", "read property activity"); !ok {
		return
	}
	p, err := h.registry.Get(r.Context(), urlID(r))
	if err != nil {
		errorToHTTP(w, r, err)
		return
	}
	writeActivity(w, r, h.activity, "property", p.ID)
}
