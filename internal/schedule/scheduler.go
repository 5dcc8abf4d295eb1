// Package schedule assigns the prioritized backlog into a bounded weekly
// batch of active work.
package schedule

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/event"
	"github.com/matthewbaird/propmaint/internal/lifecycle"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// unprioritized is the sort position of a pending task with no priority yet.
const unprioritized = 3

// Batch is the result of one AssignWeekly run.
type Batch struct {
	ID          string             `json:"id"`
	WeekOf      time.Time          `json:"week_of"`
	Capacity    int                `json:"capacity"`
	Assignments []types.Assignment `json:"assignments"`
	// InFlight is the number of tasks already active when the run started.
	// They occupy capacity until resolved.
	InFlight int `json:"in_flight"`
	// Remaining is the number of pending tasks left over once capacity was used.
	Remaining int `json:"remaining"`
}

// Scheduler moves the highest-priority pending tasks to active.
type Scheduler struct {
	ctrl  *lifecycle.Controller
	staff []string
	newID func() string
}

// New returns a Scheduler. Assignments rotate round-robin over staff; with no
// staff configured they carry no staff id.
func New(ctrl *lifecycle.Controller, staff []string) *Scheduler {
	return &Scheduler{ctrl: ctrl, staff: staff, newID: uuid.NewString}
}

// Order sorts tasks in assignment order: priority ascending (unprioritized
// counts as 3), then created_at, then id.
func Order(tasks []types.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		pi, pj := tasks[i].PriorityOr(unprioritized), tasks[j].PriorityOr(unprioritized)
		if pi != pj {
			return pi < pj
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// WeekStart returns 00:00 UTC on the Monday of t's week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AssignWeekly fills the week's capacity from the pending backlog in priority
// order, moving each chosen task to active and recording an assignment for
// it. Tasks already active count against capacity and are never reassigned;
// only pending tasks are eligible. The batch is atomic: on any failure,
// including cancellation, no task changes status.
func (s *Scheduler) AssignWeekly(ctx context.Context, caller auth.Caller, capacity int) (Batch, error) {
	const name = "schedule.assign_weekly"
	if !caller.IsAdmin() {
		return Batch{}, apperr.Forbidden(name, "role %q may not assign work", caller.Role)
	}
	if capacity < 1 {
		return Batch{}, apperr.Validation(name, "capacity must be at least 1, got %d", capacity)
	}

	var batch Batch
	err := s.ctrl.Atomically(ctx, func(op *lifecycle.Op) error {
		pending, err := op.Pending(ctx)
		if err != nil {
			return err
		}
		active, err := op.Read().ListTasks(ctx, store.TaskFilter{Statuses: []types.Status{types.StatusActive}})
		if err != nil {
			return err
		}
		Order(pending)

		free := capacity - len(active)
		if free < 0 {
			free = 0
		}
		take := pending
		if len(take) > free {
			take = take[:free]
		}
		batch = Batch{
			ID:        s.newID(),
			WeekOf:    WeekStart(op.Now()),
			Capacity:  capacity,
			InFlight:  len(active),
			Remaining: len(pending) - len(take),
		}

		slots := newSlotter(batch.WeekOf, s.staff)
		for _, t := range take {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := op.SetStatus(ctx, caller, t.ID, types.StatusActive); err != nil {
				return err
			}
			staffID, day := slots.next()
			a := types.Assignment{
				BatchID:      batch.ID,
				TaskID:       t.ID,
				Priority:     t.PriorityOr(unprioritized),
				StaffID:      staffID,
				ScheduledFor: day,
			}
			if err := op.CreateAssignment(ctx, caller, a); err != nil {
				return err
			}
			a.CreatedAt = op.Now()
			batch.Assignments = append(batch.Assignments, a)
		}
		op.Emit(event.NewBatchAssigned(batch.ID, capacity, batch.Assignments, caller.ID, op.Now()))
		return nil
	})
	if err != nil {
		return Batch{}, apperr.Batch(name, err)
	}
	return batch, nil
}

// slotter hands out (staff, day) pairs: staff rotate round-robin and the day
// advances once every staff member has a task, wrapping after Sunday.
type slotter struct {
	weekStart time.Time
	staff     []string
	staffIdx  int
	dayIdx    int
}

func newSlotter(weekStart time.Time, staff []string) *slotter {
	return &slotter{weekStart: weekStart, staff: staff}
}

func (s *slotter) next() (string, time.Time) {
	day := s.weekStart.AddDate(0, 0, s.dayIdx)
	if len(s.staff) == 0 {
		s.dayIdx = (s.dayIdx + 1) % 7
		return "", day
	}
	staffID := s.staff[s.staffIdx]
	s.staffIdx = (s.staffIdx + 1) % len(s.staff)
	if s.staffIdx == 0 {
		s.dayIdx = (s.dayIdx + 1) % 7
	}
	return staffID, day
}
