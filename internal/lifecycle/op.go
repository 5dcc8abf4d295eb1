package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/event"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// Op is the view of one Atomically transaction. It must not be retained after
// the callback returns.
type Op struct {
	c      *Controller
	tx     store.Tx
	now    time.Time
	events []event.DomainEvent
}

// Now is the instant the transaction started, in UTC. Every write in the
// transaction is stamped with it.
func (op *Op) Now() time.Time { return op.now }

// Read gives read access to the transaction, including its own writes.
func (op *Op) Read() store.Reader { return op.tx }

// Pending returns the pending tasks visible to this transaction, ordered by
// created_at then id.
func (op *Op) Pending(ctx context.Context) ([]types.Task, error) {
	return op.tx.ListTasks(ctx, store.TaskFilter{Statuses: []types.Status{types.StatusPending}})
}

// Emit stages evt for recording after commit.
func (op *Op) Emit(evt event.DomainEvent) { op.events = append(op.events, evt) }

func requireAdmin(op string, caller auth.Caller) error {
	if !caller.IsAdmin() {
		return apperr.Forbidden(op, "role %q may not perform this operation", caller.Role)
	}
	return nil
}

func (op *Op) requireProperty(ctx context.Context, opName, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation(opName, "property_id is required")
	}
	if _, err := op.tx.GetProperty(ctx, id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation(opName, "unknown property %s", id)
		}
		return err
	}
	return nil
}

func normalizeCategory(opName, category string) (string, error) {
	c := strings.TrimSpace(category)
	if c == "" {
		return "", apperr.Validation(opName, "category is required")
	}
	return c, nil
}

func normalizeLevel(opName, field string, l types.Level) (types.Level, error) {
	if strings.TrimSpace(string(l)) == "" {
		return "", apperr.Validation(opName, "%s is required", field)
	}
	parsed, ok := types.ParseLevel(string(l))
	if !ok {
		return "", apperr.Validation(opName, "%s %q is not one of low, medium, high", field, l)
	}
	return parsed, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CreateReactive creates a pending task with no priority.
func (op *Op) CreateReactive(ctx context.Context, caller auth.Caller, in ReactiveInput) (types.Task, error) {
	const name = "lifecycle.create_reactive"
	if caller.Role == "" || caller.ID == "" {
		return types.Task{}, apperr.Forbidden(name, "caller has no identity")
	}
	category, err := normalizeCategory(name, in.Category)
	if err != nil {
		return types.Task{}, err
	}
	urgency, err := normalizeLevel(name, "urgency", in.Urgency)
	if err != nil {
		return types.Task{}, err
	}
	requester := caller.ID
	if r := strings.TrimSpace(in.RequesterID); r != "" && r != caller.ID {
		if err := requireAdmin(name, caller); err != nil {
			return types.Task{}, err
		}
		requester = r
	}
	if err := op.requireProperty(ctx, name, in.PropertyID); err != nil {
		return types.Task{}, err
	}

	t := types.Task{
		ID:            op.c.newID(),
		PropertyID:    in.PropertyID,
		RequesterID:   requester,
		Category:      category,
		Urgency:       urgency,
		Origin:        types.OriginReactive,
		Status:        types.StatusPending,
		Description:   trimmedOrNil(in.Description),
		AttachmentRef: trimmedOrNil(in.AttachmentRef),
		CreatedAt:     op.now,
		UpdatedAt:     op.now,
	}
	if err := op.tx.CreateTask(ctx, t); err != nil {
		return types.Task{}, err
	}
	op.Emit(event.NewTaskCreated(t, caller.ID, op.now))
	return t, nil
}

// EnsureProperty returns the property called name, registering it first when
// none exists. created reports whether it was registered by this call.
func (op *Op) EnsureProperty(ctx context.Context, caller auth.Caller, name string) (p types.Property, created bool, err error) {
	const opName = "lifecycle.ensure_property"
	if err := requireAdmin(opName, caller); err != nil {
		return types.Property{}, false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Property{}, false, apperr.Validation(opName, "property name is required")
	}
	p, ok, err := op.tx.FindPropertyByName(ctx, name)
	if err != nil || ok {
		return p, false, err
	}
	p = types.Property{ID: op.c.newID(), Name: name, CreatedAt: op.now, UpdatedAt: op.now}
	if err := op.tx.CreateProperty(ctx, p); err != nil {
		return types.Property{}, false, err
	}
	op.Emit(event.NewPropertyCreated(p, caller.ID, op.now))
	return p, true, nil
}

// CreatePredictive creates a predicted task with no priority.
func (op *Op) CreatePredictive(ctx context.Context, caller auth.Caller, in PredictiveInput) (types.Task, error) {
	const name = "lifecycle.create_predictive"
	if err := requireAdmin(name, caller); err != nil {
		return types.Task{}, err
	}
	category, err := normalizeCategory(name, in.Category)
	if err != nil {
		return types.Task{}, err
	}
	severity, err := normalizeLevel(name, "severity", in.Severity)
	if err != nil {
		return types.Task{}, err
	}
	if in.PredictedForDate.IsZero() {
		return types.Task{}, apperr.Validation(name, "predicted_for_date is required")
	}
	if err := op.requireProperty(ctx, name, in.PropertyID); err != nil {
		return types.Task{}, err
	}

	forDate := in.PredictedForDate.UTC()
	t := types.Task{
		ID:               op.c.newID(),
		PropertyID:       in.PropertyID,
		Category:         category,
		Severity:         severity,
		Origin:           types.OriginPredictive,
		Status:           types.StatusPredicted,
		Description:      trimmedOrNil(in.Description),
		CreatedAt:        op.now,
		UpdatedAt:        op.now,
		PredictedForDate: &forDate,
	}
	if err := op.tx.CreateTask(ctx, t); err != nil {
		return types.Task{}, err
	}
	op.Emit(event.NewTaskCreated(t, caller.ID, op.now))
	return t, nil
}

// Promote moves a predicted task to pending. Unlike SetStatus it is strict:
// a task that is not predicted fails with InvalidTransition, even if it is
// already pending.
func (op *Op) Promote(ctx context.Context, caller auth.Caller, taskID string) (types.Task, error) {
	const name = "lifecycle.promote"
	if err := requireAdmin(name, caller); err != nil {
		return types.Task{}, err
	}
	t, err := op.tx.GetTask(ctx, taskID)
	if err != nil {
		return types.Task{}, err
	}
	if t.Status != types.StatusPredicted {
		return types.Task{}, apperr.InvalidTransition(name, "task %s is %s, only predicted tasks can be promoted", taskID, t.Status)
	}
	return op.move(ctx, caller, t, types.StatusPending)
}

// SetStatus moves a task to status. Same-status calls return the task
// unchanged.
func (op *Op) SetStatus(ctx context.Context, caller auth.Caller, taskID string, status types.Status) (types.Task, error) {
	const name = "lifecycle.set_status"
	if err := requireAdmin(name, caller); err != nil {
		return types.Task{}, err
	}
	target, ok := types.ParseStatus(string(status))
	if !ok {
		return types.Task{}, apperr.Validation(name, "unknown status %q", status)
	}
	t, err := op.tx.GetTask(ctx, taskID)
	if err != nil {
		return types.Task{}, err
	}
	if t.Status == target {
		return t, nil
	}
	if err := ValidateTransition(ValidTaskTransitions, t.Status, target); err != nil {
		return types.Task{}, &apperr.Error{Kind: apperr.KindInvalidTransition, Op: name, Msg: "task " + taskID, Err: err}
	}
	return op.move(ctx, caller, t, target)
}

func (op *Op) move(ctx context.Context, caller auth.Caller, t types.Task, target types.Status) (types.Task, error) {
	from := t.Status
	t.Status = target
	t.UpdatedAt = op.now
	if target == types.StatusResolved {
		at := op.now
		t.ResolvedAt = &at
	}
	if err := op.tx.UpdateTask(ctx, t); err != nil {
		return types.Task{}, err
	}
	op.Emit(event.NewTaskStatusChanged(t, from, caller.ID, op.now))
	return t, nil
}

// SetPriority sets a pending or active task's priority, 1 highest.
func (op *Op) SetPriority(ctx context.Context, caller auth.Caller, taskID string, priority int) (types.Task, error) {
	const name = "lifecycle.set_priority"
	if err := requireAdmin(name, caller); err != nil {
		return types.Task{}, err
	}
	if priority < 1 || priority > 3 {
		return types.Task{}, apperr.Validation(name, "priority %d is outside 1..3", priority)
	}
	t, err := op.tx.GetTask(ctx, taskID)
	if err != nil {
		return types.Task{}, err
	}
	if !t.Status.Prioritized() {
		return types.Task{}, apperr.InvalidState(name, "task %s is %s, priority applies only to pending or active tasks", taskID, t.Status)
	}
	if t.Priority != nil && *t.Priority == priority {
		return t, nil
	}

	from := t.Priority
	t.Priority = &priority
	t.UpdatedAt = op.now
	if err := op.tx.UpdateTask(ctx, t); err != nil {
		return types.Task{}, err
	}
	op.Emit(event.NewTaskPrioritized(t, from, caller.ID, op.now))
	return t, nil
}

// CreateAssignment persists the assignment of an active task to a batch.
func (op *Op) CreateAssignment(ctx context.Context, caller auth.Caller, a types.Assignment) error {
	const name = "lifecycle.create_assignment"
	if err := requireAdmin(name, caller); err != nil {
		return err
	}
	t, err := op.tx.GetTask(ctx, a.TaskID)
	if err != nil {
		return err
	}
	if t.Status != types.StatusActive {
		return apperr.InvalidState(name, "task %s is %s, only active tasks can be assigned", a.TaskID, t.Status)
	}
	a.CreatedAt = op.now
	return op.tx.CreateAssignment(ctx, a)
}

// SubmitFeedback records a rating from the tenant who submitted the task.
func (op *Op) SubmitFeedback(ctx context.Context, caller auth.Caller, taskID string, rating int, comment *string) (types.Feedback, error) {
	const name = "lifecycle.submit_feedback"
	if !caller.IsTenant() {
		return types.Feedback{}, apperr.Forbidden(name, "only tenants can leave feedback")
	}
	if rating < 1 || rating > 5 {
		return types.Feedback{}, apperr.Validation(name, "rating %d is outside 1..5", rating)
	}
	t, err := op.tx.GetTask(ctx, taskID)
	if err != nil {
		return types.Feedback{}, err
	}
	if t.RequesterID != caller.ID {
		return types.Feedback{}, apperr.Forbidden(name, "task %s was not submitted by this tenant", taskID)
	}
	if t.Status != types.StatusResolved {
		return types.Feedback{}, apperr.InvalidState(name, "task %s is %s, feedback requires a resolved task", taskID, t.Status)
	}

	f := types.Feedback{
		TaskID:      taskID,
		RequesterID: caller.ID,
		Rating:      rating,
		Comment:     trimmedOrNil(comment),
		CreatedAt:   op.now,
	}
	if err := op.tx.CreateFeedback(ctx, f); err != nil {
		return types.Feedback{}, err
	}
	op.Emit(event.NewFeedbackSubmitted(t, f, op.now))
	return f, nil
}
