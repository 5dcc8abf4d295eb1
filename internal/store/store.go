// Package store defines the persistence collaborator the engine writes
// through, plus an in-memory implementation for demos and tests.
//
// Every multi-record mutation goes through Store.Update, which either applies
// all of the writes made inside fn or none of them. Reads made on the Tx see
// the writes already made in the same transaction.
package store

import (
	"context"

	"github.com/matthewbaird/propmaint/internal/types"
)

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	Statuses    []types.Status
	PropertyID  string
	RequesterID string
	Origin      types.Origin
}

// Match reports whether t passes the filter.
func (f TaskFilter) Match(t types.Task) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if t.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PropertyID != "" && t.PropertyID != f.PropertyID {
		return false
	}
	if f.RequesterID != "" && t.RequesterID != f.RequesterID {
		return false
	}
	if f.Origin != "" && t.Origin != f.Origin {
		return false
	}
	return true
}

// Reader is the read side shared by Store and Tx.
type Reader interface {
	GetProperty(ctx context.Context, id string) (types.Property, error)
	// FindPropertyByName returns ok=false when no property has that name.
	FindPropertyByName(ctx context.Context, name string) (p types.Property, ok bool, err error)
	ListProperties(ctx context.Context) ([]types.Property, error)

	GetTask(ctx context.Context, id string) (types.Task, error)
	// ListTasks returns matching tasks ordered by created_at, then id.
	ListTasks(ctx context.Context, f TaskFilter) ([]types.Task, error)
	CountTasksByStatus(ctx context.Context) (map[types.Status]int, error)

	// ListAssignments returns the assignments of one batch, or all of them
	// when batchID is empty, ordered by scheduled_for then task id.
	ListAssignments(ctx context.Context, batchID string) ([]types.Assignment, error)
	GetFeedback(ctx context.Context, taskID string) (types.Feedback, error)
}

// Tx is a unit of work opened by Store.Update.
type Tx interface {
	Reader

	CreateProperty(ctx context.Context, p types.Property) error
	UpdateProperty(ctx context.Context, p types.Property) error
	CreateTask(ctx context.Context, t types.Task) error
	UpdateTask(ctx context.Context, t types.Task) error
	CreateAssignment(ctx context.Context, a types.Assignment) error
	CreateFeedback(ctx context.Context, f types.Feedback) error
}

// Store is the durable mapping of properties and tasks.
type Store interface {
	Reader

	// Update runs fn in a transaction. If fn returns an error, or ctx is
	// done before commit, nothing fn wrote is applied.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
