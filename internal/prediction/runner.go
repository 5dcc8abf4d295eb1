package prediction

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/event"
	"github.com/matthewbaird/propmaint/internal/lifecycle"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// RunResult reports one prediction run.
type RunResult struct {
	Suggested int          `json:"suggested"`
	Skipped   int          `json:"skipped"`
	Created   []types.Task `json:"created"`
}

// Runner creates predicted tasks from the generator's suggestions.
type Runner struct {
	ctrl  *lifecycle.Controller
	gen   *Generator
	dedup bool
}

// NewRunner returns a Runner. With dedup set, candidates already covered by a
// predicted task are skipped instead of creating duplicates.
func NewRunner(ctrl *lifecycle.Controller, gen *Generator, dedup bool) *Runner {
	return &Runner{ctrl: ctrl, gen: gen, dedup: dedup}
}

// Preview returns the candidates a run would consider, without writing.
func (r *Runner) Preview(ctx context.Context, caller auth.Caller) ([]Candidate, error) {
	if !caller.IsAdmin() {
		return nil, apperr.Forbidden("prediction.preview", "role %q may not generate predictions", caller.Role)
	}
	rd := r.ctrl.Reader()
	props, err := rd.ListProperties(ctx)
	if err != nil {
		return nil, err
	}
	history, err := rd.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, err
	}
	cands := r.gen.Suggest(props, history, r.ctrl.Now())
	if r.dedup {
		cands = Deduplicate(cands, history)
	}
	return cands, nil
}

// Run suggests against a consistent snapshot and creates every resulting
// predicted task in one batch. Nothing is created if any creation fails.
func (r *Runner) Run(ctx context.Context, caller auth.Caller) (RunResult, error) {
	if !caller.IsAdmin() {
		return RunResult{}, apperr.Forbidden("prediction.run", "role %q may not generate predictions", caller.Role)
	}
	var res RunResult
	err := r.ctrl.Atomically(ctx, func(op *lifecycle.Op) error {
		res = RunResult{}
		props, err := op.Read().ListProperties(ctx)
		if err != nil {
			return err
		}
		history, err := op.Read().ListTasks(ctx, store.TaskFilter{})
		if err != nil {
			return err
		}

		cands := r.gen.Suggest(props, history, op.Now())
		res.Suggested = len(cands)
		if r.dedup {
			cands = Deduplicate(cands, history)
		}
		res.Skipped = res.Suggested - len(cands)

		for _, c := range cands {
			t, err := op.CreatePredictive(ctx, caller, lifecycle.PredictiveInput{
				PropertyID:       c.PropertyID,
				Category:         c.Category,
				Severity:         c.Severity,
				PredictedForDate: c.PredictedForDate,
				Description:      types.Ptr(describe(c)),
			})
			if err != nil {
				return err
			}
			res.Created = append(res.Created, t)
		}
		op.Emit(event.NewPredictionsGenerated(res.Suggested, res.Created, caller.ID, op.Now()))
		return nil
	})
	if err != nil {
		return RunResult{}, apperr.Batch("prediction.run", err)
	}
	return res, nil
}

func describe(c Candidate) string {
	return fmt.Sprintf("Forecast %s maintenance (%s)", c.Category, strings.Join(c.Triggers, ", "))
}
