// Package registry manages the properties maintenance tasks refer to.
// Properties are created and edited by admins and are never deleted.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/event"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// Registry is the Property Registry.
type Registry struct {
	store store.Store
	rec   event.Recorder
	log   *slog.Logger
	now   func() time.Time
}

func New(s store.Store, rec event.Recorder, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{store: s, rec: rec, log: log, now: time.Now}
}

// PropertyInput is the payload for creating a property.
type PropertyInput struct {
	Name      string
	Address   *string
	YearBuilt *int
}

// PropertyPatch edits a property. Nil fields are left unchanged.
type PropertyPatch struct {
	Name      *string
	Address   *string
	YearBuilt *int
}

func validYear(op string, y *int, now time.Time) error {
	if y != nil && (*y < 1600 || *y > now.Year()+1) {
		return apperr.Validation(op, "year_built %d is out of range", *y)
	}
	return nil
}

// Create registers a new property. Names are unique.
func (r *Registry) Create(ctx context.Context, caller auth.Caller, in PropertyInput) (types.Property, error) {
	const op = "registry.create"
	if !caller.IsAdmin() {
		return types.Property{}, apperr.Forbidden(op, "role %q may not create properties", caller.Role)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return types.Property{}, apperr.Validation(op, "name is required")
	}
	now := r.now().UTC()
	if err := validYear(op, in.YearBuilt, now); err != nil {
		return types.Property{}, err
	}

	p := types.Property{
		ID:        uuid.NewString(),
		Name:      name,
		Address:   trimmed(in.Address),
		YearBuilt: in.YearBuilt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.store.Update(ctx, func(tx store.Tx) error {
		if _, exists, err := tx.FindPropertyByName(ctx, name); err != nil {
			return err
		} else if exists {
			return apperr.Validation(op, "property %q already exists", name)
		}
		return tx.CreateProperty(ctx, p)
	})
	if err != nil {
		return types.Property{}, err
	}
	event.RecordAll(context.WithoutCancel(ctx), r.rec, r.log, []event.DomainEvent{event.NewPropertyCreated(p, caller.ID, now)})
	return p, nil
}

// Update applies patch to the property with id.
func (r *Registry) Update(ctx context.Context, caller auth.Caller, id string, patch PropertyPatch) (types.Property, error) {
	const op = "registry.update"
	if !caller.IsAdmin() {
		return types.Property{}, apperr.Forbidden(op, "role %q may not edit properties", caller.Role)
	}
	now := r.now().UTC()
	if err := validYear(op, patch.YearBuilt, now); err != nil {
		return types.Property{}, err
	}

	var out types.Property
	err := r.store.Update(ctx, func(tx store.Tx) error {
		p, err := tx.GetProperty(ctx, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return apperr.Validation(op, "name cannot be empty")
			}
			if other, exists, err := tx.FindPropertyByName(ctx, name); err != nil {
				return err
			} else if exists && other.ID != id {
				return apperr.Validation(op, "property %q already exists", name)
			}
			p.Name = name
		}
		if patch.Address != nil {
			p.Address = trimmed(patch.Address)
		}
		if patch.YearBuilt != nil {
			p.YearBuilt = patch.YearBuilt
		}
		p.UpdatedAt = now
		out = p
		return tx.UpdateProperty(ctx, p)
	})
	if err != nil {
		return types.Property{}, err
	}
	event.RecordAll(context.WithoutCancel(ctx), r.rec, r.log, []event.DomainEvent{event.NewPropertyUpdated(out, caller.ID, now)})
	return out, nil
}

func (r *Registry) Get(ctx context.Context, id string) (types.Property, error) {
	return r.store.GetProperty(ctx, id)
}

// List returns every property, ordered by name.
func (r *Registry) List(ctx context.Context) ([]types.Property, error) {
	return r.store.ListProperties(ctx)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
