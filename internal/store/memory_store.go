package store

import (
	"context"
	"sort"
	"sync"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/types"
)

// MemoryStore implements Store with in-process maps.
// Intended for demos and testing; nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	properties  map[string]types.Property
	tasks       map[string]types.Task
	assignments []types.Assignment
	feedback    map[string]types.Feedback
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		properties: map[string]types.Property{},
		tasks:      map[string]types.Task{},
		feedback:   map[string]types.Feedback{},
	}}
}

func (s *MemoryStore) Close() error { return nil }

// Update stages writes on a copy of the state and swaps it in on success.
// The write lock is held for the whole transaction.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) GetProperty(_ context.Context, id string) (types.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getProperty(id)
}

func (s *MemoryStore) FindPropertyByName(_ context.Context, name string) (types.Property, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.findPropertyByName(name)
	return p, ok, nil
}

func (s *MemoryStore) ListProperties(_ context.Context) ([]types.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listProperties(), nil
}

func (s *MemoryStore) GetTask(_ context.Context, id string) (types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getTask(id)
}

func (s *MemoryStore) ListTasks(_ context.Context, f TaskFilter) ([]types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listTasks(f), nil
}

func (s *MemoryStore) CountTasksByStatus(_ context.Context) (map[types.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.countByStatus(), nil
}

func (s *MemoryStore) ListAssignments(_ context.Context, batchID string) ([]types.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listAssignments(batchID), nil
}

func (s *MemoryStore) GetFeedback(_ context.Context, taskID string) (types.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getFeedback(taskID)
}

// memTx operates on a private copy. The store's write lock is held for the
// lifetime of the transaction, so no locking is needed here.
type memTx struct {
	state *memState
}

func (tx *memTx) GetProperty(_ context.Context, id string) (types.Property, error) {
	return tx.state.getProperty(id)
}

func (tx *memTx) FindPropertyByName(_ context.Context, name string) (types.Property, bool, error) {
	p, ok := tx.state.findPropertyByName(name)
	return p, ok, nil
}

func (tx *memTx) ListProperties(_ context.Context) ([]types.Property, error) {
	return tx.state.listProperties(), nil
}

func (tx *memTx) GetTask(_ context.Context, id string) (types.Task, error) {
	return tx.state.getTask(id)
}

func (tx *memTx) ListTasks(_ context.Context, f TaskFilter) ([]types.Task, error) {
	return tx.state.listTasks(f), nil
}

func (tx *memTx) CountTasksByStatus(_ context.Context) (map[types.Status]int, error) {
	return tx.state.countByStatus(), nil
}

func (tx *memTx) ListAssignments(_ context.Context, batchID string) ([]types.Assignment, error) {
	return tx.state.listAssignments(batchID), nil
}

func (tx *memTx) GetFeedback(_ context.Context, taskID string) (types.Feedback, error) {
	return tx.state.getFeedback(taskID)
}

func (tx *memTx) CreateProperty(_ context.Context, p types.Property) error {
	if _, exists := tx.state.properties[p.ID]; exists {
		return apperr.Validation("store.create_property", "property %s already exists", p.ID)
	}
	tx.state.properties[p.ID] = cloneProperty(p)
	return nil
}

func (tx *memTx) UpdateProperty(_ context.Context, p types.Property) error {
	if _, exists := tx.state.properties[p.ID]; !exists {
		return apperr.NotFound("store.update_property", "property %s not found", p.ID)
	}
	tx.state.properties[p.ID] = cloneProperty(p)
	return nil
}

func (tx *memTx) CreateTask(_ context.Context, t types.Task) error {
	if _, exists := tx.state.tasks[t.ID]; exists {
		return apperr.Validation("store.create_task", "task %s already exists", t.ID)
	}
	if _, ok := tx.state.properties[t.PropertyID]; !ok {
		return apperr.Validation("store.create_task", "unknown property %s", t.PropertyID)
	}
	tx.state.tasks[t.ID] = cloneTask(t)
	return nil
}

func (tx *memTx) UpdateTask(_ context.Context, t types.Task) error {
	if _, exists := tx.state.tasks[t.ID]; !exists {
		return apperr.NotFound("store.update_task", "task %s not found", t.ID)
	}
	tx.state.tasks[t.ID] = cloneTask(t)
	return nil
}

func (tx *memTx) CreateAssignment(_ context.Context, a types.Assignment) error {
	if _, ok := tx.state.tasks[a.TaskID]; !ok {
		return apperr.Validation("store.create_assignment", "unknown task %s", a.TaskID)
	}
	for _, existing := range tx.state.assignments {
		if existing.TaskID == a.TaskID {
			return apperr.Validation("store.create_assignment", "task %s is already assigned", a.TaskID)
		}
	}
	tx.state.assignments = append(tx.state.assignments, a)
	return nil
}

func (tx *memTx) CreateFeedback(_ context.Context, f types.Feedback) error {
	if _, exists := tx.state.feedback[f.TaskID]; exists {
		return apperr.Validation("store.create_feedback", "feedback for task %s already exists", f.TaskID)
	}
	tx.state.feedback[f.TaskID] = f
	return nil
}

// ── shared state helpers ─────────────────────────────────────────────────────

func (st *memState) clone() *memState {
	c := &memState{
		properties:  make(map[string]types.Property, len(st.properties)),
		tasks:       make(map[string]types.Task, len(st.tasks)),
		assignments: append([]types.Assignment(nil), st.assignments...),
		feedback:    make(map[string]types.Feedback, len(st.feedback)),
	}
	for k, v := range st.properties {
		c.properties[k] = v
	}
	for k, v := range st.tasks {
		c.tasks[k] = v
	}
	for k, v := range st.feedback {
		c.feedback[k] = v
	}
	return c
}

func (st *memState) getProperty(id string) (types.Property, error) {
	p, ok := st.properties[id]
	if !ok {
		return types.Property{}, apperr.NotFound("store.get_property", "property %s not found", id)
	}
	return cloneProperty(p), nil
}

func (st *memState) findPropertyByName(name string) (types.Property, bool) {
	for _, p := range st.properties {
		if p.Name == name {
			return cloneProperty(p), true
		}
	}
	return types.Property{}, false
}

func (st *memState) listProperties() []types.Property {
	out := make([]types.Property, 0, len(st.properties))
	for _, p := range st.properties {
		out = append(out, cloneProperty(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (st *memState) getTask(id string) (types.Task, error) {
	t, ok := st.tasks[id]
	if !ok {
		return types.Task{}, apperr.NotFound("store.get_task", "task %s not found", id)
	}
	return cloneTask(t), nil
}

func (st *memState) listTasks(f TaskFilter) []types.Task {
	var out []types.Task
	for _, t := range st.tasks {
		if f.Match(t) {
			out = append(out, cloneTask(t))
		}
	}
	SortByCreation(out)
	return out
}

func (st *memState) countByStatus() map[types.Status]int {
	counts := make(map[types.Status]int, len(types.Statuses))
	for _, s := range types.Statuses {
		counts[s] = 0
	}
	for _, t := range st.tasks {
		counts[t.Status]++
	}
	return counts
}

func (st *memState) listAssignments(batchID string) []types.Assignment {
	var out []types.Assignment
	for _, a := range st.assignments {
		if batchID == "" || a.BatchID == batchID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.Before(out[j].ScheduledFor)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

func (st *memState) getFeedback(taskID string) (types.Feedback, error) {
	f, ok := st.feedback[taskID]
	if !ok {
		return types.Feedback{}, apperr.NotFound("store.get_feedback", "no feedback for task %s", taskID)
	}
	return f, nil
}

// SortByCreation orders tasks by created_at, then id.
func SortByCreation(tasks []types.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func cloneProperty(p types.Property) types.Property {
	if p.Address != nil {
		p.Address = types.Ptr(*p.Address)
	}
	if p.YearBuilt != nil {
		p.YearBuilt = types.Ptr(*p.YearBuilt)
	}
	return p
}

func cloneTask(t types.Task) types.Task {
	if t.Priority != nil {
		t.Priority = types.Ptr(*t.Priority)
	}
	if t.Description != nil {
		t.Description = types.Ptr(*t.Description)
	}
	if t.AttachmentRef != nil {
		t.AttachmentRef = types.Ptr(*t.AttachmentRef)
	}
	if t.PredictedForDate != nil {
		t.PredictedForDate = types.Ptr(*t.PredictedForDate)
	}
	if t.ResolvedAt != nil {
		t.ResolvedAt = types.Ptr(*t.ResolvedAt)
	}
	return t
}
