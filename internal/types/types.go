// Package types provides the domain records shared by the engine, the
// stores and the HTTP layer.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPredicted Status = "predicted"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusResolved  Status = "resolved"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPredicted, StatusPending, StatusActive, StatusResolved}

// ParseStatus normalizes s. ok is false for unknown statuses.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Prioritized reports whether priority is meaningful in this status.
func (s Status) Prioritized() bool { return s == StatusPending || s == StatusActive }

// Level is the shared scale for reactive urgency and predictive severity.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ParseLevel normalizes s. "critical" is accepted as an alias of high.
func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelLow, LevelMedium, LevelHigh:
		return l, true
	case "critical":
		return LevelHigh, true
	}
	return "", false
}

// Raise returns the next level up, capped at high.
func (l Level) Raise() Level {
	switch l {
	case LevelLow:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Origin discriminates reactive from predictive tasks.
type Origin string

const (
	OriginReactive   Origin = "reactive"
	OriginPredictive Origin = "predictive"
)

// Property is a building or unit that tasks reference.
type Property struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   *string   `json:"address,omitempty"`
	YearBuilt *int      `json:"year_built,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is a maintenance work item of either origin. Urgency is set only for
// reactive tasks; Severity and PredictedForDate only for predictive ones.
type Task struct {
	ID               string     `json:"id"`
	PropertyID       string     `json:"property_id"`
	RequesterID      string     `json:"requester_id,omitempty"`
	Category         string     `json:"category"`
	Urgency          Level      `json:"urgency,omitempty"`
	Severity         Level      `json:"severity,omitempty"`
	Origin           Origin     `json:"origin"`
	Status           Status     `json:"status"`
	Priority         *int       `json:"priority"`
	Description      *string    `json:"description,omitempty"`
	AttachmentRef    *string    `json:"attachment_ref,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	PredictedForDate *time.Time `json:"predicted_for_date,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// Level returns urgency for reactive tasks and severity for predictive ones.
func (t Task) Level() Level {
	if t.Origin == OriginPredictive {
		return t.Severity
	}
	return t.Urgency
}

// PriorityOr returns the priority, or def when none has been computed.
func (t Task) PriorityOr(def int) int {
	if t.Priority == nil {
		return def
	}
	return *t.Priority
}

// Assignment records a task placed into a weekly batch.
type Assignment struct {
	BatchID      string    `json:"batch_id"`
	TaskID       string    `json:"task_id"`
	Priority     int       `json:"priority"`
	StaffID      string    `json:"staff_id,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
	CreatedAt    time.Time `json:"created_at"`
}

// Feedback is a tenant's rating of a resolved task.
type Feedback struct {
	TaskID      string    `json:"task_id"`
	RequesterID string    `json:"requester_id"`
	Rating      int       `json:"rating"`
	Comment     *string   `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SourceRef points an activity entry at an entity it concerns.
type SourceRef struct {
	EntityType string `json:"entity_type"` // "task", "property", "batch"
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "context"
}

// ActivityEntry is one row of the activity log: an event indexed under one
// affected entity.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"` // "task", "property", "assignment", "prediction"
	Actor             string          `json:"actor"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
