package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, MemoryDSN)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) (types.Property, types.Task) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := types.Property{ID: "p1", Name: "Maple Court", YearBuilt: types.Ptr(1972), CreatedAt: now, UpdatedAt: now}
	task := types.Task{
		ID:          "t1",
		PropertyID:  "p1",
		RequesterID: "tenant-1",
		Category:    "plumbing",
		Urgency:     types.LevelHigh,
		Origin:      types.OriginReactive,
		Status:      types.StatusPending,
		Description: types.Ptr("leak under sink"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		if err := tx.CreateProperty(ctx, p); err != nil {
			return err
		}
		return tx.CreateTask(ctx, task)
	}))
	return p, task
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, task := seed(t, s)

	p, err := s.GetProperty(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Maple Court", p.Name)
	require.NotNil(t, p.YearBuilt)
	assert.Equal(t, 1972, *p.YearBuilt)
	assert.Nil(t, p.Address)

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.Category, got.Category)
	assert.Equal(t, types.LevelHigh, got.Urgency)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Nil(t, got.Priority)
	require.NotNil(t, got.Description)
	assert.Equal(t, "leak under sink", *got.Description)
	assert.WithinDuration(t, task.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestStore_UpdateTask(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, task := seed(t, s)

	resolved := time.Now().UTC()
	task.Status = types.StatusResolved
	task.Priority = types.Ptr(1)
	task.ResolvedAt = &resolved
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.UpdateTask(ctx, task) }))

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusResolved, got.Status)
	require.NotNil(t, got.Priority)
	assert.Equal(t, 1, *got.Priority)
	require.NotNil(t, got.ResolvedAt)

	task.ID = "missing"
	err = s.Update(ctx, func(tx store.Tx) error { return tx.UpdateTask(ctx, task) })
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestStore_CreateTask_UnknownProperty(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateTask(ctx, types.Task{ID: "t9", PropertyID: "nope", Category: "roof", Origin: types.OriginReactive, Status: types.StatusPending})
	})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	_, task := seed(t, s)

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx store.Tx) error {
		task.Status = types.StatusActive
		if err := tx.UpdateTask(ctx, task); err != nil {
			return err
		}
		inTx, err := tx.GetTask(ctx, task.ID)
		if err != nil {
			return err
		}
		if inTx.Status != types.StatusActive {
			return errors.New("transaction did not see its own write")
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
}

func TestStore_ListAndCount(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seed(t, s)

	later := time.Now().UTC().Add(time.Minute)
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.CreateTask(ctx, types.Task{
			ID: "t2", PropertyID: "p1", Category: "roof", Severity: types.LevelMedium,
			Origin: types.OriginPredictive, Status: types.StatusPredicted,
			CreatedAt: later, UpdatedAt: later, PredictedForDate: &later,
		})
	}))

	all, err := s.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t1", all[0].ID)
	assert.Equal(t, "t2", all[1].ID)

	predicted, err := s.ListTasks(ctx, store.TaskFilter{Statuses: []types.Status{types.StatusPredicted}, PropertyID: "p1"})
	require.NoError(t, err)
	require.Len(t, predicted, 1)
	assert.Equal(t, types.LevelMedium, predicted[0].Severity)
	require.NotNil(t, predicted[0].PredictedForDate)

	mine, err := s.ListTasks(ctx, store.TaskFilter{RequesterID: "tenant-1"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	counts, err := s.CountTasksByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[types.StatusPending])
	assert.Equal(t, 1, counts[types.StatusPredicted])
	assert.Equal(t, 0, counts[types.StatusActive])
}

func TestStore_AssignmentsAndFeedback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seed(t, s)

	now := time.Now().UTC()
	a := types.Assignment{BatchID: "b1", TaskID: "t1", Priority: 1, StaffID: "staff-1", ScheduledFor: now, CreatedAt: now}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.CreateAssignment(ctx, a) }))

	err := s.Update(ctx, func(tx store.Tx) error { return tx.CreateAssignment(ctx, a) })
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	got, err := s.ListAssignments(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "staff-1", got[0].StaffID)

	fb := types.Feedback{TaskID: "t1", RequesterID: "tenant-1", Rating: 5, CreatedAt: now}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error { return tx.CreateFeedback(ctx, fb) }))
	gotFb, err := s.GetFeedback(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 5, gotFb.Rating)
	assert.Nil(t, gotFb.Comment)
}

func TestStore_FindPropertyByName(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	seed(t, s)

	p, ok, err := s.FindPropertyByName(ctx, "Maple Court")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "p1", p.ID)

	_, ok, err = s.FindPropertyByName(ctx, "Elm")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ActivityEntries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	refs := []types.SourceRef{{EntityType: "task", EntityID: "t1", Role: "subject"}}
	var entries []types.ActivityEntry
	for i, summary := range []string{"Task created", "Priority set to 1", "Task moved pending → active"} {
		entries = append(entries, types.ActivityEntry{
			EventID:           "e" + string(rune('1'+i)),
			EventType:         "task_event",
			OccurredAt:        base.Add(time.Duration(i) * time.Minute),
			IndexedEntityType: "task",
			IndexedEntityID:   "t1",
			EntityRole:        "subject",
			SourceRefs:        refs,
			Summary:           summary,
			Category:          "task",
			Actor:             "admin-1",
		})
	}
	entries[0].Payload = []byte(`{"task_id":"t1"}`)
	require.NoError(t, s.WriteEntries(ctx, entries))

	page, cursor, total, err := s.QueryByEntity(ctx, "task", "t1", activity.QueryOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "e3", page[0].EventID)
	assert.Equal(t, refs, page[0].SourceRefs)
	assert.NotEmpty(t, cursor)

	rest, cursor, _, err := s.QueryByEntity(ctx, "task", "t1", activity.QueryOptions{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "e1", rest[0].EventID)
	assert.JSONEq(t, `{"task_id":"t1"}`, string(rest[0].Payload))
	assert.Empty(t, cursor)

	found, n, err := s.Search(ctx, "priority", activity.DefaultSearchOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, found, 1)
	assert.Equal(t, "e2", found[0].EventID)
}
