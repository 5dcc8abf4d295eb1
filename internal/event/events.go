package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/propmaint/internal/types"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string            `json:"id"`
	EventType        string            `json:"event_type"`
	OccurredAt       time.Time         `json:"occurred_at"`
	AffectedEntities []types.SourceRef `json:"affected_entities"`
	Summary          string            `json:"summary"`
	Category         string            `json:"category"` // "task", "property", "assignment", "prediction"
	Actor            string            `json:"actor"`
	Payload          json.RawMessage   `json:"payload,omitempty"`
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func taskRefs(taskID, propertyID string) []types.SourceRef {
	return []types.SourceRef{
		{EntityType: "task", EntityID: taskID, Role: "subject"},
		{EntityType: "property", EntityID: propertyID, Role: "context"},
	}
}

// ── Task events ──────────────────────────────────────────────────────────────

// TaskCreatedPayload carries event-specific data for TaskCreated.
type TaskCreatedPayload struct {
	TaskID      string       `json:"task_id"`
	PropertyID  string       `json:"property_id"`
	Category    string       `json:"category"`
	Origin      types.Origin `json:"origin"`
	Level       types.Level  `json:"level"`
	RequesterID string       `json:"requester_id,omitempty"`
}

func NewTaskCreated(t types.Task, actor string, at time.Time) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "task_created",
		OccurredAt:       at,
		AffectedEntities: taskRefs(t.ID, t.PropertyID),
		Summary:          fmt.Sprintf("%s %s task %s created (%s)", t.Origin, t.Category, short(t.ID), t.Level()),
		Category:         "task",
		Actor:            actor,
		Payload: mustJSON(TaskCreatedPayload{
			TaskID:      t.ID,
			PropertyID:  t.PropertyID,
			Category:    t.Category,
			Origin:      t.Origin,
			Level:       t.Level(),
			RequesterID: t.RequesterID,
		}),
	}
}

// TaskStatusChangedPayload carries event-specific data for status changes,
// including promotion.
type TaskStatusChangedPayload struct {
	TaskID     string       `json:"task_id"`
	PropertyID string       `json:"property_id"`
	From       types.Status `json:"from"`
	To         types.Status `json:"to"`
}

func NewTaskStatusChanged(t types.Task, from types.Status, actor string, at time.Time) DomainEvent {
	eventType := "task_status_changed"
	if from == types.StatusPredicted && t.Status == types.StatusPending {
		eventType = "task_promoted"
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        eventType,
		OccurredAt:       at,
		AffectedEntities: taskRefs(t.ID, t.PropertyID),
		Summary:          fmt.Sprintf("Task %s moved %s → %s", short(t.ID), from, t.Status),
		Category:         "task",
		Actor:            actor,
		Payload:          mustJSON(TaskStatusChangedPayload{TaskID: t.ID, PropertyID: t.PropertyID, From: from, To: t.Status}),
	}
}

// TaskPrioritizedPayload carries event-specific data for TaskPrioritized.
type TaskPrioritizedPayload struct {
	TaskID     string `json:"task_id"`
	PropertyID string `json:"property_id"`
	From       *int   `json:"from"`
	To         int    `json:"to"`
}

func NewTaskPrioritized(t types.Task, from *int, actor string, at time.Time) DomainEvent {
	to := t.PriorityOr(0)
	return DomainEvent{
		ID:               newID(),
		EventType:        "task_prioritized",
		OccurredAt:       at,
		AffectedEntities: taskRefs(t.ID, t.PropertyID),
		Summary:          fmt.Sprintf("Task %s priority set to %d", short(t.ID), to),
		Category:         "task",
		Actor:            actor,
		Payload:          mustJSON(TaskPrioritizedPayload{TaskID: t.ID, PropertyID: t.PropertyID, From: from, To: to}),
	}
}

// FeedbackSubmittedPayload carries event-specific data for FeedbackSubmitted.
type FeedbackSubmittedPayload struct {
	TaskID     string `json:"task_id"`
	PropertyID string `json:"property_id"`
	Rating     int    `json:"rating"`
}

func NewFeedbackSubmitted(t types.Task, f types.Feedback, at time.Time) DomainEvent {
	return DomainEvent{
		ID:               newID(),
		EventType:        "feedback_submitted",
		OccurredAt:       at,
		AffectedEntities: taskRefs(t.ID, t.PropertyID),
		Summary:          fmt.Sprintf("Tenant rated task %s %d/5", short(t.ID), f.Rating),
		Category:         "task",
		Actor:            f.RequesterID,
		Payload:          mustJSON(FeedbackSubmittedPayload{TaskID: t.ID, PropertyID: t.PropertyID, Rating: f.Rating}),
	}
}

// ── Assignment events ────────────────────────────────────────────────────────

// BatchAssignedPayload carries event-specific data for BatchAssigned.
type BatchAssignedPayload struct {
	BatchID  string   `json:"batch_id"`
	Capacity int      `json:"capacity"`
	TaskIDs  []string `json:"task_ids"`
}

func NewBatchAssigned(batchID string, capacity int, assigned []types.Assignment, actor string, at time.Time) DomainEvent {
	refs := []types.SourceRef{{EntityType: "batch", EntityID: batchID, Role: "subject"}}
	ids := make([]string, 0, len(assigned))
	for _, a := range assigned {
		ids = append(ids, a.TaskID)
		refs = append(refs, types.SourceRef{EntityType: "task", EntityID: a.TaskID, Role: "target"})
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        "batch_assigned",
		OccurredAt:       at,
		AffectedEntities: refs,
		Summary:          fmt.Sprintf("Weekly batch %s assigned %d of capacity %d", short(batchID), len(assigned), capacity),
		Category:         "assignment",
		Actor:            actor,
		Payload:          mustJSON(BatchAssignedPayload{BatchID: batchID, Capacity: capacity, TaskIDs: ids}),
	}
}

// ── Prediction events ────────────────────────────────────────────────────────

// PredictionsGeneratedPayload carries event-specific data for PredictionsGenerated.
type PredictionsGeneratedPayload struct {
	Suggested int      `json:"suggested"`
	Created   int      `json:"created"`
	TaskIDs   []string `json:"task_ids"`
}

func NewPredictionsGenerated(suggested int, created []types.Task, actor string, at time.Time) DomainEvent {
	var refs []types.SourceRef
	ids := make([]string, 0, len(created))
	for _, t := range created {
		ids = append(ids, t.ID)
		refs = append(refs, types.SourceRef{EntityType: "task", EntityID: t.ID, Role: "target"})
	}
	return DomainEvent{
		ID:               newID(),
		EventType:        "predictions_generated",
		OccurredAt:       at,
		AffectedEntities: refs,
		Summary:          fmt.Sprintf("Prediction run created %d of %d candidates", len(created), suggested),
		Category:         "prediction",
		Actor:            actor,
		Payload:          mustJSON(PredictionsGeneratedPayload{Suggested: suggested, Created: len(created), TaskIDs: ids}),
	}
}

// ── Property events ──────────────────────────────────────────────────────────

// PropertyChangedPayload carries event-specific data for property creation
// and edits.
type PropertyChangedPayload struct {
	PropertyID string  `json:"property_id"`
	Name       string  `json:"name"`
	Address    *string `json:"address,omitempty"`
	YearBuilt  *int    `json:"year_built,omitempty"`
}

func NewPropertyCreated(p types.Property, actor string, at time.Time) DomainEvent {
	return propertyEvent("property_created", fmt.Sprintf("Property %q registered", p.Name), p, actor, at)
}

func NewPropertyUpdated(p types.Property, actor string, at time.Time) DomainEvent {
	return propertyEvent("property_updated", fmt.Sprintf("Property %q updated", p.Name), p, actor, at)
}

func propertyEvent(eventType, summary string, p types.Property, actor string, at time.Time) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  eventType,
		OccurredAt: at,
		AffectedEntities: []types.SourceRef{
			{EntityType: "property", EntityID: p.ID, Role: "subject"},
		},
		Summary:  summary,
		Category: "property",
		Actor:    actor,
		Payload:  mustJSON(PropertyChangedPayload{PropertyID: p.ID, Name: p.Name, Address: p.Address, YearBuilt: p.YearBuilt}),
	}
}
