package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/event"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

var admin = auth.Caller{ID: "admin-1", Role: auth.RoleAdmin}

func newRegistry() (*Registry, *activity.MemoryStore) {
	acts := activity.NewMemoryStore()
	return New(store.NewMemoryStore(), event.NewActivityRecorder(acts), nil), acts
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	r, acts := newRegistry()

	p, err := r.Create(ctx, admin, PropertyInput{Name: "  Maple Court ", Address: types.Ptr("1 Maple St"), YearBuilt: types.Ptr(1972)})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Maple Court", p.Name)
	assert.Equal(t, "1 Maple St", *p.Address)

	got, err := r.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)

	entries, _, _, err := acts.QueryByEntity(ctx, "property", p.ID, activity.QueryOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "property_created", entries[0].EventType)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()

	_, err := r.Create(ctx, admin, PropertyInput{Name: " "})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = r.Create(ctx, admin, PropertyInput{Name: "Elm", YearBuilt: types.Ptr(3000)})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = r.Create(ctx, auth.Caller{ID: "t", Role: auth.RoleTenant}, PropertyInput{Name: "Elm"})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = r.Create(ctx, admin, PropertyInput{Name: "Elm"})
	require.NoError(t, err)
	_, err = r.Create(ctx, admin, PropertyInput{Name: "Elm"})
	assert.True(t, errors.Is(err, apperr.ErrValidation), "names are unique")

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	p, err := r.Create(ctx, admin, PropertyInput{Name: "Maple", Address: types.Ptr("1 Maple St")})
	require.NoError(t, err)
	_, err = r.Create(ctx, admin, PropertyInput{Name: "Birch"})
	require.NoError(t, err)

	updated, err := r.Update(ctx, admin, p.ID, PropertyPatch{Name: types.Ptr("Maple Court"), YearBuilt: types.Ptr(1990)})
	require.NoError(t, err)
	assert.Equal(t, "Maple Court", updated.Name)
	assert.Equal(t, "1 Maple St", *updated.Address, "unset fields are kept")
	assert.Equal(t, 1990, *updated.YearBuilt)

	// Renaming to its own name is allowed; taking another property's name is not.
	_, err = r.Update(ctx, admin, p.ID, PropertyPatch{Name: types.Ptr("Maple Court")})
	assert.NoError(t, err)
	_, err = r.Update(ctx, admin, p.ID, PropertyPatch{Name: types.Ptr("Birch")})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = r.Update(ctx, admin, "missing", PropertyPatch{Name: types.Ptr("X")})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestList_OrderedByName(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry()
	for _, n := range []string{"Oak", "Alder", "Maple"} {
		_, err := r.Create(ctx, admin, PropertyInput{Name: n})
		require.NoError(t, err)
	}
	all, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Alder", all[0].Name)
	assert.Equal(t, "Oak", all[2].Name)
}
