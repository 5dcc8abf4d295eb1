package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// SeedProperty writes a property directly to s.
func SeedProperty(t testing.TB, s store.Store, p types.Property) types.Property {
	t.Helper()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.CreateProperty(ctx, p) }))
	return p
}

// SeedTasks writes tasks directly to s, bypassing lifecycle validation so
// tests can construct arbitrary histories.
func SeedTasks(t testing.TB, s store.Store, tasks ...types.Task) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		for _, task := range tasks {
			if task.UpdatedAt.IsZero() {
				task.UpdatedAt = task.CreatedAt
			}
			if err := tx.CreateTask(ctx, task); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Reactive returns a pending reactive task fixture.
func Reactive(id, propertyID string, urgency types.Level, created time.Time) types.Task {
	return types.Task{
		ID:          id,
		PropertyID:  propertyID,
		RequesterID: "tenant-1",
		Category:    "plumbing",
		Urgency:     urgency,
		Origin:      types.OriginReactive,
		Status:      types.StatusPending,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}
