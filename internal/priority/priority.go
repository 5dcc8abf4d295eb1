// Package priority scores maintenance tasks. Compute is the pure policy;
// Engine applies it to the whole pending backlog in one atomic batch.
package priority

import (
	"context"
	"time"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/lifecycle"
	"github.com/matthewbaird/propmaint/internal/types"
)

const (
	Highest = 1
	Lowest  = 3
)

// Escalation thresholds: tasks left waiting this long are bumped one step.
const (
	MediumEscalation = 7 * 24 * time.Hour
	LowEscalation    = 14 * 24 * time.Hour
)

// Compute returns t's priority at now, 1 highest. The first matching rule
// wins:
//
//	high                    → 1
//	medium, older than 7d   → 1
//	medium                  → 2
//	low, older than 14d     → 2
//	anything else           → 3
//
// The level is urgency for reactive tasks and severity for predictive ones.
func Compute(t types.Task, now time.Time) int {
	age := now.Sub(t.CreatedAt)
	switch level := t.Level(); {
	case level == types.LevelHigh:
		return 1
	case level == types.LevelMedium && age > MediumEscalation:
		return 1
	case level == types.LevelMedium:
		return 2
	case level == types.LevelLow && age > LowEscalation:
		return 2
	default:
		return Lowest
	}
}

// Change is one task whose stored priority differs from the computed one.
type Change struct {
	TaskID string `json:"task_id"`
	From   *int   `json:"from"`
	To     int    `json:"to"`
}

// Result summarizes an Apply run.
type Result struct {
	Scored  int      `json:"scored"`
	Changed []Change `json:"changed"`
}

// Engine recomputes priorities through the lifecycle controller.
type Engine struct {
	ctrl *lifecycle.Controller
}

func NewEngine(ctrl *lifecycle.Controller) *Engine {
	return &Engine{ctrl: ctrl}
}

// Apply recomputes the priority of every pending task in one transaction.
// On any failure no priority is changed and the error is a BatchFailure
// wrapping the cause.
func (e *Engine) Apply(ctx context.Context, caller auth.Caller) (Result, error) {
	if !caller.IsAdmin() {
		return Result{}, apperr.Forbidden("priority.apply", "role %q may not apply priorities", caller.Role)
	}
	var res Result
	err := e.ctrl.Atomically(ctx, func(op *lifecycle.Op) error {
		res = Result{}
		pending, err := op.Pending(ctx)
		if err != nil {
			return err
		}
		for _, t := range pending {
			p := Compute(t, op.Now())
			res.Scored++
			if t.Priority != nil && *t.Priority == p {
				continue
			}
			if _, err := op.SetPriority(ctx, caller, t.ID, p); err != nil {
				return err
			}
			res.Changed = append(res.Changed, Change{TaskID: t.ID, From: t.Priority, To: p})
		}
		return nil
	})
	if err != nil {
		return Result{}, apperr.Batch("priority.apply", err)
	}
	return res, nil
}

// CreateReactive creates a tenant task and sets its initial priority in the
// same transaction, so no batch ever sees it unscored.
func (e *Engine) CreateReactive(ctx context.Context, caller auth.Caller, in lifecycle.ReactiveInput) (types.Task, error) {
	var out types.Task
	err := e.ctrl.Atomically(ctx, func(op *lifecycle.Op) error {
		t, err := op.CreateReactive(ctx, caller, in)
		if err != nil {
			return err
		}
		out, err = Score(ctx, op, t)
		return err
	})
	return out, err
}

// Promote moves a predicted task to pending and scores it in one transaction.
func (e *Engine) Promote(ctx context.Context, caller auth.Caller, taskID string) (types.Task, error) {
	var out types.Task
	err := e.ctrl.Atomically(ctx, func(op *lifecycle.Op) error {
		t, err := op.Promote(ctx, caller, taskID)
		if err != nil {
			return err
		}
		out, err = Score(ctx, op, t)
		return err
	})
	return out, err
}

// Score sets t's computed priority inside op. It runs as the system caller
// because tenants may submit tasks but not prioritize them. Tasks outside
// pending and active are returned unchanged.
func Score(ctx context.Context, op *lifecycle.Op, t types.Task) (types.Task, error) {
	if !t.Status.Prioritized() {
		return t, nil
	}
	return op.SetPriority(ctx, auth.System, t.ID, Compute(t, op.Now()))
}
