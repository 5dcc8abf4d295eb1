// Package lifecycle is the single mutation entry point for maintenance tasks.
//
// The Controller enforces the task state machine
//
//	predicted → pending → active → resolved
//
// and serializes every status and priority write behind one mutex. Batch
// callers (the priority engine, the weekly scheduler, the prediction runner)
// use Atomically to read a consistent snapshot and write all of their changes
// in one store transaction.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/event"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// Controller owns every task mutation.
type Controller struct {
	mu    sync.Mutex
	store store.Store
	rec   event.Recorder
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithIDGenerator overrides task id generation.
func WithIDGenerator(f func() string) Option { return func(c *Controller) { c.newID = f } }

// WithRecorder records a domain event for every committed mutation.
func WithRecorder(r event.Recorder) Option { return func(c *Controller) { c.rec = r } }

// WithLogger sets the logger used for post-commit event recording failures.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.log = l } }

// New creates a Controller writing through s.
func New(s store.Store, opts ...Option) *Controller {
	c := &Controller{
		store: s,
		log:   slog.Default(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Now returns the controller's clock reading in UTC.
func (c *Controller) Now() time.Time { return c.now().UTC() }

// Reader exposes the store's read side for callers that only query.
func (c *Controller) Reader() store.Reader { return c.store }

// Atomically runs fn under the controller lock inside one store transaction.
// Either every mutation fn makes through op is committed or none is. Events
// staged by fn are recorded only after a successful commit.
func (c *Controller) Atomically(ctx context.Context, fn func(op *Op) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var op *Op
	err := c.store.Update(ctx, func(tx store.Tx) error {
		op = &Op{c: c, tx: tx, now: c.Now()}
		return fn(op)
	})
	if err != nil {
		return err
	}
	event.RecordAll(context.WithoutCancel(ctx), c.rec, c.log, op.events)
	return nil
}

// ReactiveInput is a tenant-submitted maintenance issue. RequesterID may only
// be set by admins filing on a tenant's behalf; it defaults to the caller.
type ReactiveInput struct {
	PropertyID    string
	RequesterID   string
	Category      string
	Urgency       types.Level
	Description   *string
	AttachmentRef *string
}

// PredictiveInput is a forecaster-generated maintenance item.
type PredictiveInput struct {
	PropertyID       string
	Category         string
	Severity         types.Level
	PredictedForDate time.Time
	Description      *string
}

// CreateReactive creates a pending task on behalf of a tenant or admin.
func (c *Controller) CreateReactive(ctx context.Context, caller auth.Caller, in ReactiveInput) (types.Task, error) {
	var out types.Task
	err := c.Atomically(ctx, func(op *Op) error {
		t, err := op.CreateReactive(ctx, caller, in)
		out = t
		return err
	})
	return out, err
}

// CreatePredictive creates a predicted task. Admin or system only.
func (c *Controller) CreatePredictive(ctx context.Context, caller auth.Caller, in PredictiveInput) (types.Task, error) {
	var out types.Task
	err := c.Atomically(ctx, func(op *Op) error {
		t, err := op.CreatePredictive(ctx, caller, in)
		out = t
		return err
	})
	return out, err
}

// Promote moves a predicted task to pending.
func (c *Controller) Promote(ctx context.Context, caller auth.Caller, taskID string) (types.Task, error) {
	var out types.Task
	err := c.Atomically(ctx, func(op *Op) error {
		t, err := op.Promote(ctx, caller, taskID)
		out = t
		return err
	})
	return out, err
}

// SetStatus moves a task forward to status, or leaves it alone when it is
// already there.
func (c *Controller) SetStatus(ctx context.Context, caller auth.Caller, taskID string, status types.Status) (types.Task, error) {
	var out types.Task
	err := c.Atomically(ctx, func(op *Op) error {
		t, err := op.SetStatus(ctx, caller, taskID, status)
		out = t
		return err
	})
	return out, err
}

// SetPriority overrides a pending or active task's priority.
func (c *Controller) SetPriority(ctx context.Context, caller auth.Caller, taskID string, priority int) (types.Task, error) {
	var out types.Task
	err := c.Atomically(ctx, func(op *Op) error {
		t, err := op.SetPriority(ctx, caller, taskID, priority)
		out = t
		return err
	})
	return out, err
}

// SubmitFeedback records a tenant's rating of their own resolved task.
func (c *Controller) SubmitFeedback(ctx context.Context, caller auth.Caller, taskID string, rating int, comment *string) (types.Feedback, error) {
	var out types.Feedback
	err := c.Atomically(ctx, func(op *Op) error {
		f, err := op.SubmitFeedback(ctx, caller, taskID, rating, comment)
		out = f
		return err
	})
	return out, err
}

// GetTask returns one task. Tenants may only read tasks they submitted.
func (c *Controller) GetTask(ctx context.Context, caller auth.Caller, taskID string) (types.Task, error) {
	t, err := c.store.GetTask(ctx, taskID)
	if err != nil {
		return types.Task{}, err
	}
	if !caller.IsAdmin() && t.RequesterID != caller.ID {
		return types.Task{}, apperr.NotFound("lifecycle.get_task", "task %s not found", taskID)
	}
	return t, nil
}

// ListTasks returns tasks matching f. Tenant callers only ever see their own
// submissions regardless of the filter's RequesterID.
func (c *Controller) ListTasks(ctx context.Context, caller auth.Caller, f store.TaskFilter) ([]types.Task, error) {
	if !caller.IsAdmin() {
		if caller.ID == "" {
			return nil, apperr.Forbidden("lifecycle.list_tasks", "caller has no identity")
		}
		f.RequesterID = caller.ID
	}
	return c.store.ListTasks(ctx, f)
}
