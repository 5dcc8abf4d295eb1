package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/store"
	"github.com/matthewbaird/propmaint/internal/types"
)

// reader implements store.Reader on a querier.
type reader struct {
	q       querier
	dialect string
}

type scanner interface {
	Scan(dest ...any) error
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func scanProperty(sc scanner) (types.Property, error) {
	var (
		p         types.Property
		address   sql.NullString
		yearBuilt sql.NullInt64
	)
	if err := sc.Scan(&p.ID, &p.Name, &address, &yearBuilt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return types.Property{}, err
	}
	if address.Valid {
		p.Address = types.Ptr(address.String)
	}
	if yearBuilt.Valid {
		p.YearBuilt = types.Ptr(int(yearBuilt.Int64))
	}
	return p, nil
}

func (r reader) GetProperty(ctx context.Context, id string) (types.Property, error) {
	q, args := r.build().Select(propertyColumns...).
		From(r.build().Table(PropertiesTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()
	p, err := scanProperty(r.q.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Property{}, apperr.NotFound("store.get_property", "property %s not found", id)
	}
	if err != nil {
		return types.Property{}, fmt.Errorf("querying property: %w", err)
	}
	return p, nil
}

func (r reader) FindPropertyByName(ctx context.Context, name string) (types.Property, bool, error) {
	q, args := r.build().Select(propertyColumns...).
		From(r.build().Table(PropertiesTable.Name)).
		Where(entsql.EQ("name", name)).
		Query()
	p, err := scanProperty(r.q.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Property{}, false, nil
	}
	if err != nil {
		return types.Property{}, false, fmt.Errorf("querying property by name: %w", err)
	}
	return p, true, nil
}

func (r reader) ListProperties(ctx context.Context) ([]types.Property, error) {
	q, args := r.build().Select(propertyColumns...).
		From(r.build().Table(PropertiesTable.Name)).
		OrderBy("name", "id").
		Query()
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	defer rows.Close()

	var out []types.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

func scanTask(sc scanner) (types.Task, error) {
	var (
		t                   types.Task
		urgency, severity   string
		origin, status      string
		priority            sql.NullInt64
		description, attach sql.NullString
		predicted, resolved sql.NullTime
	)
	err := sc.Scan(
		&t.ID, &t.PropertyID, &t.RequesterID, &t.Category, &urgency, &severity, &origin, &status,
		&priority, &description, &attach, &t.CreatedAt, &t.UpdatedAt, &predicted, &resolved,
	)
	if err != nil {
		return types.Task{}, err
	}
	t.Urgency = types.Level(urgency)
	t.Severity = types.Level(severity)
	t.Origin = types.Origin(origin)
	t.Status = types.Status(status)
	if priority.Valid {
		t.Priority = types.Ptr(int(priority.Int64))
	}
	if description.Valid {
		t.Description = types.Ptr(description.String)
	}
	if attach.Valid {
		t.AttachmentRef = types.Ptr(attach.String)
	}
	if predicted.Valid {
		t.PredictedForDate = types.Ptr(predicted.Time)
	}
	if resolved.Valid {
		t.ResolvedAt = types.Ptr(resolved.Time)
	}
	return t, nil
}

func (r reader) GetTask(ctx context.Context, id string) (types.Task, error) {
	q, args := r.build().Select(taskColumns...).
		From(r.build().Table(TasksTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()
	t, err := scanTask(r.q.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Task{}, apperr.NotFound("store.get_task", "task %s not found", id)
	}
	if err != nil {
		return types.Task{}, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

func (r reader) ListTasks(ctx context.Context, f store.TaskFilter) ([]types.Task, error) {
	var preds []*entsql.Predicate
	if len(f.Statuses) > 0 {
		vals := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			vals[i] = string(s)
		}
		preds = append(preds, entsql.In("status", vals...))
	}
	if f.PropertyID != "" {
		preds = append(preds, entsql.EQ("property_id", f.PropertyID))
	}
	if f.RequesterID != "" {
		preds = append(preds, entsql.EQ("requester_id", f.RequesterID))
	}
	if f.Origin != "" {
		preds = append(preds, entsql.EQ("origin", string(f.Origin)))
	}

	sel := r.build().Select(taskColumns...).
		From(r.build().Table(TasksTable.Name)).
		OrderBy("created_at", "id")
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	q, args := sel.Query()

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Ties on created_at are broken by id in Go as well, matching MemoryStore.
	store.SortByCreation(out)
	return out, nil
}

func (r reader) CountTasksByStatus(ctx context.Context) (map[types.Status]int, error) {
	q, args := r.build().Select("status", entsql.Count("*")).
		From(r.build().Table(TasksTable.Name)).
		GroupBy("status").
		Query()
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("counting tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Status]int, len(types.Statuses))
	for _, s := range types.Statuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning task count: %w", err)
		}
		counts[types.Status(status)] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// Assignments & feedback
// ---------------------------------------------------------------------------

func (r reader) ListAssignments(ctx context.Context, batchID string) ([]types.Assignment, error) {
	sel := r.build().Select(assignmentColumns...).
		From(r.build().Table(AssignmentsTable.Name)).
		OrderBy("scheduled_for", "task_id")
	if batchID != "" {
		sel.Where(entsql.EQ("batch_id", batchID))
	}
	q, args := sel.Query()
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	var out []types.Assignment
	for rows.Next() {
		var a types.Assignment
		if err := rows.Scan(&a.TaskID, &a.BatchID, &a.Priority, &a.StaffID, &a.ScheduledFor, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r reader) GetFeedback(ctx context.Context, taskID string) (types.Feedback, error) {
	q, args := r.build().Select(feedbackColumns...).
		From(r.build().Table(FeedbacksTable.Name)).
		Where(entsql.EQ("task_id", taskID)).
		Query()
	var (
		f       types.Feedback
		comment sql.NullString
	)
	err := r.q.QueryRowContext(ctx, q, args...).Scan(&f.TaskID, &f.RequesterID, &f.Rating, &comment, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Feedback{}, apperr.NotFound("store.get_feedback", "no feedback for task %s", taskID)
	}
	if err != nil {
		return types.Feedback{}, fmt.Errorf("querying feedback: %w", err)
	}
	if comment.Valid {
		f.Comment = types.Ptr(comment.String)
	}
	return f, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// sqlTx implements store.Tx on a *sql.Tx.
type sqlTx struct {
	reader
}

func (tx *sqlTx) exec(ctx context.Context, op, q string, args []any) (int64, error) {
	res, err := tx.q.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (tx *sqlTx) CreateProperty(ctx context.Context, p types.Property) error {
	q, args := tx.build().Insert(PropertiesTable.Name).
		Columns(propertyColumns...).
		Values(p.ID, p.Name, nullString(p.Address), nullInt(p.YearBuilt), p.CreatedAt.UTC(), p.UpdatedAt.UTC()).
		Query()
	_, err := tx.exec(ctx, "inserting property", q, args)
	return err
}

func (tx *sqlTx) UpdateProperty(ctx context.Context, p types.Property) error {
	q, args := tx.build().Update(PropertiesTable.Name).
		Set("name", p.Name).
		Set("address", nullString(p.Address)).
		Set("year_built", nullInt(p.YearBuilt)).
		Set("updated_at", p.UpdatedAt.UTC()).
		Where(entsql.EQ("id", p.ID)).
		Query()
	n, err := tx.exec(ctx, "updating property", q, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("store.update_property", "property %s not found", p.ID)
	}
	return nil
}

func (tx *sqlTx) CreateTask(ctx context.Context, t types.Task) error {
	if _, err := tx.GetProperty(ctx, t.PropertyID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.Validation("store.create_task", "unknown property %s", t.PropertyID)
		}
		return err
	}
	q, args := tx.build().Insert(TasksTable.Name).
		Columns(taskColumns...).
		Values(
			t.ID, t.PropertyID, t.RequesterID, t.Category, string(t.Urgency), string(t.Severity),
			string(t.Origin), string(t.Status), nullInt(t.Priority), nullString(t.Description),
			nullString(t.AttachmentRef), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
			nullTime(t.PredictedForDate), nullTime(t.ResolvedAt),
		).
		Query()
	_, err := tx.exec(ctx, "inserting task", q, args)
	return err
}

// UpdateTask writes the mutable columns. created_at, origin and property_id
// are never rewritten.
func (tx *sqlTx) UpdateTask(ctx context.Context, t types.Task) error {
	q, args := tx.build().Update(TasksTable.Name).
		Set("category", t.Category).
		Set("urgency", string(t.Urgency)).
		Set("severity", string(t.Severity)).
		Set("status", string(t.Status)).
		Set("priority", nullInt(t.Priority)).
		Set("description", nullString(t.Description)).
		Set("attachment_ref", nullString(t.AttachmentRef)).
		Set("updated_at", t.UpdatedAt.UTC()).
		Set("predicted_for_date", nullTime(t.PredictedForDate)).
		Set("resolved_at", nullTime(t.ResolvedAt)).
		Where(entsql.EQ("id", t.ID)).
		Query()
	n, err := tx.exec(ctx, "updating task", q, args)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("store.update_task", "task %s not found", t.ID)
	}
	return nil
}

func (tx *sqlTx) CreateAssignment(ctx context.Context, a types.Assignment) error {
	existing, err := tx.ListAssignments(ctx, "")
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.TaskID == a.TaskID {
			return apperr.Validation("store.create_assignment", "task %s is already assigned", a.TaskID)
		}
	}
	q, args := tx.build().Insert(AssignmentsTable.Name).
		Columns(assignmentColumns...).
		Values(a.TaskID, a.BatchID, a.Priority, a.StaffID, a.ScheduledFor.UTC(), a.CreatedAt.UTC()).
		Query()
	_, err = tx.exec(ctx, "inserting assignment", q, args)
	return err
}

func (tx *sqlTx) CreateFeedback(ctx context.Context, f types.Feedback) error {
	if _, err := tx.GetFeedback(ctx, f.TaskID); err == nil {
		return apperr.Validation("store.create_feedback", "feedback for task %s already exists", f.TaskID)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	q, args := tx.build().Insert(FeedbacksTable.Name).
		Columns(feedbackColumns...).
		Values(f.TaskID, f.RequesterID, f.Rating, nullString(f.Comment), f.CreatedAt.UTC()).
		Query()
	_, err := tx.exec(ctx, "inserting feedback", q, args)
	return err
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(i *int) any {
	if i == nil {
		return nil
	}
	return int64(*i)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
