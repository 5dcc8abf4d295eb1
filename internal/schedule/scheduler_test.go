package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/lifecycle"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/store/storetest"
	"github.com/matthewbaird/propmaint/internal/types"
)

var (
	admin = auth.Caller{ID: "admin-1", Role: auth.RoleAdmin}
	// Wednesday.
	now    = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

func prioritized(id string, priority int, created time.Time) types.Task {
	t := storetest.Reactive(id, "p1", types.LevelLow, created)
	t.Priority = types.Ptr(priority)
	return t
}

func newScheduler(t *testing.T, s store.Store, staff ...string) *Scheduler {
	t.Helper()
	ctrl := lifecycle.New(s, lifecycle.WithClock(func() time.Time { return now }))
	return New(ctrl, staff)
}

func seeded(t *testing.T, tasks ...types.Task) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	storetest.SeedProperty(t, s, types.Property{ID: "p1", Name: "Maple Court"})
	storetest.SeedTasks(t, s, tasks...)
	return s
}

func statusOf(t *testing.T, s store.Store, id string) types.Status {
	t.Helper()
	task, err := s.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task.Status
}

func activeIDs(t *testing.T, s store.Store) []string {
	t.Helper()
	tasks, err := s.ListTasks(context.Background(), store.TaskFilter{Statuses: []types.Status{types.StatusActive}})
	require.NoError(t, err)
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.ID
	}
	return ids
}

func TestAssignWeekly_CapacityTakesHighestPriority(t *testing.T) {
	ctx := context.Background()
	s := seeded(t,
		prioritized("p3", 3, now.Add(-3*time.Hour)),
		prioritized("p1", 1, now.Add(-1*time.Hour)),
		prioritized("p2", 2, now.Add(-2*time.Hour)),
	)
	sched := newScheduler(t, s)

	batch, err := sched.AssignWeekly(ctx, admin, 2)
	require.NoError(t, err)
	require.Len(t, batch.Assignments, 2)
	assert.Equal(t, "p1", batch.Assignments[0].TaskID)
	assert.Equal(t, "p2", batch.Assignments[1].TaskID)
	assert.Equal(t, 1, batch.Remaining)
	assert.Equal(t, monday, batch.WeekOf)

	assert.Equal(t, types.StatusActive, statusOf(t, s, "p1"))
	assert.Equal(t, types.StatusActive, statusOf(t, s, "p2"))
	assert.Equal(t, types.StatusPending, statusOf(t, s, "p3"))

	stored, err := s.ListAssignments(ctx, batch.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestAssignWeekly_SecondRunChangesNothing(t *testing.T) {
	ctx := context.Background()
	s := seeded(t,
		prioritized("p1", 1, now.Add(-3*time.Hour)),
		prioritized("p2", 2, now.Add(-2*time.Hour)),
		prioritized("p3", 3, now.Add(-1*time.Hour)),
	)
	sched := newScheduler(t, s)

	_, err := sched.AssignWeekly(ctx, admin, 2)
	require.NoError(t, err)
	before := activeIDs(t, s)

	second, err := sched.AssignWeekly(ctx, admin, 2)
	require.NoError(t, err)
	assert.Empty(t, second.Assignments)
	assert.Equal(t, 2, second.InFlight)
	assert.Equal(t, before, activeIDs(t, s))

	all, err := s.ListAssignments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2, "no task is assigned twice")
}

func TestAssignWeekly_ResolvedWorkFreesCapacity(t *testing.T) {
	ctx := context.Background()
	s := seeded(t,
		prioritized("p1", 1, now.Add(-3*time.Hour)),
		prioritized("p2", 2, now.Add(-2*time.Hour)),
	)
	ctrl := lifecycle.New(s, lifecycle.WithClock(func() time.Time { return now }))
	sched := New(ctrl, nil)

	_, err := sched.AssignWeekly(ctx, admin, 1)
	require.NoError(t, err)
	_, err = ctrl.SetStatus(ctx, admin, "p1", types.StatusResolved)
	require.NoError(t, err)

	batch, err := sched.AssignWeekly(ctx, admin, 1)
	require.NoError(t, err)
	require.Len(t, batch.Assignments, 1)
	assert.Equal(t, "p2", batch.Assignments[0].TaskID)
}

func TestAssignWeekly_TieBreaks(t *testing.T) {
	ctx := context.Background()
	created := now.Add(-time.Hour)
	unscored := storetest.Reactive("n1", "p1", types.LevelLow, now.Add(-48*time.Hour))
	s := seeded(t,
		prioritized("b", 2, created),
		prioritized("a", 2, created),
		prioritized("c", 2, created.Add(-time.Minute)),
		unscored,
		prioritized("z", 3, now.Add(-96*time.Hour)),
	)
	sched := newScheduler(t, s)

	batch, err := sched.AssignWeekly(ctx, admin, 5)
	require.NoError(t, err)
	var order []string
	for _, a := range batch.Assignments {
		order = append(order, a.TaskID)
	}
	assert.Equal(t, []string{"c", "a", "b", "z", "n1"}, order)
	assert.Equal(t, 3, batch.Assignments[4].Priority, "unscored tasks are recorded at priority 3")
}

func TestAssignWeekly_StaffRoundRobin(t *testing.T) {
	ctx := context.Background()
	var tasks []types.Task
	for i, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		tasks = append(tasks, prioritized(id, 1, now.Add(time.Duration(i-10)*time.Minute)))
	}
	s := seeded(t, tasks...)
	sched := newScheduler(t, s, "alice", "bob")

	batch, err := sched.AssignWeekly(ctx, admin, 5)
	require.NoError(t, err)
	require.Len(t, batch.Assignments, 5)

	want := []struct {
		staff string
		day   time.Time
	}{
		{"alice", monday},
		{"bob", monday},
		{"alice", monday.AddDate(0, 0, 1)},
		{"bob", monday.AddDate(0, 0, 1)},
		{"alice", monday.AddDate(0, 0, 2)},
	}
	for i, w := range want {
		assert.Equal(t, w.staff, batch.Assignments[i].StaffID, "assignment %d", i)
		assert.Equal(t, w.day, batch.Assignments[i].ScheduledFor, "assignment %d", i)
	}
}

func TestSlotter_WrapsAfterSunday(t *testing.T) {
	sl := newSlotter(monday, nil)
	var last time.Time
	for i := 0; i < 8; i++ {
		_, last = sl.next()
	}
	assert.Equal(t, monday, last)
}

func TestAssignWeekly_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	base := seeded(t,
		prioritized("p1", 1, now.Add(-3*time.Hour)),
		prioritized("p2", 2, now.Add(-2*time.Hour)),
		prioritized("p3", 3, now.Add(-1*time.Hour)),
	)
	sched := newScheduler(t, storetest.NewFaulty(base, 2))

	_, err := sched.AssignWeekly(ctx, admin, 3)
	assert.True(t, errors.Is(err, apperr.ErrBatchFailure), "got %v", err)
	assert.Empty(t, activeIDs(t, base))

	all, err := base.ListAssignments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAssignWeekly_Cancelled(t *testing.T) {
	s := seeded(t, prioritized("p1", 1, now.Add(-time.Hour)))
	sched := newScheduler(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sched.AssignWeekly(ctx, admin, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.StatusPending, statusOf(t, s, "p1"))
}

func TestAssignWeekly_Validation(t *testing.T) {
	sched := newScheduler(t, store.NewMemoryStore())

	_, err := sched.AssignWeekly(context.Background(), admin, 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = sched.AssignWeekly(context.Background(), auth.Caller{ID: "t", Role: auth.RoleTenant}, 2)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, monday, WeekStart(now))
	assert.Equal(t, monday, WeekStart(monday))
	sunday := time.Date(2026, 3, 8, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, monday, WeekStart(sunday))
}
