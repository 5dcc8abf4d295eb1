package sqlstore

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// PropertiesColumns holds the columns for the "properties" table.
	PropertiesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "name", Type: field.TypeString, Unique: true},
		{Name: "address", Type: field.TypeString, Nullable: true},
		{Name: "year_built", Type: field.TypeInt, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// PropertiesTable holds the schema information for the "properties" table.
	PropertiesTable = &schema.Table{
		Name:       "properties",
		Columns:    PropertiesColumns,
		PrimaryKey: []*schema.Column{PropertiesColumns[0]},
	}

	// TasksColumns holds the columns for the "tasks" table.
	TasksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "property_id", Type: field.TypeString},
		{Name: "requester_id", Type: field.TypeString, Default: ""},
		{Name: "category", Type: field.TypeString},
		{Name: "urgency", Type: field.TypeString, Default: ""},
		{Name: "severity", Type: field.TypeString, Default: ""},
		{Name: "origin", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "priority", Type: field.TypeInt, Nullable: true},
		{Name: "description", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "attachment_ref", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "predicted_for_date", Type: field.TypeTime, Nullable: true},
		{Name: "resolved_at", Type: field.TypeTime, Nullable: true},
	}
	// TasksTable holds the schema information for the "tasks" table.
	TasksTable = &schema.Table{
		Name:       "tasks",
		Columns:    TasksColumns,
		PrimaryKey: []*schema.Column{TasksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "tasks_properties_tasks",
				Columns:    []*schema.Column{TasksColumns[1]},
				RefColumns: []*schema.Column{PropertiesColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "task_status_created_at",
				Unique:  false,
				Columns: []*schema.Column{TasksColumns[7], TasksColumns[11]},
			},
			{
				Name:    "task_property_id_category",
				Unique:  false,
				Columns: []*schema.Column{TasksColumns[1], TasksColumns[3]},
			},
		},
	}

	// AssignmentsColumns holds the columns for the "assignments" table.
	AssignmentsColumns = []*schema.Column{
		{Name: "task_id", Type: field.TypeString},
		{Name: "batch_id", Type: field.TypeString},
		{Name: "priority", Type: field.TypeInt},
		{Name: "staff_id", Type: field.TypeString, Default: ""},
		{Name: "scheduled_for", Type: field.TypeTime},
		{Name: "created_at", Type: field.TypeTime},
	}
	// AssignmentsTable holds the schema information for the "assignments" table.
	AssignmentsTable = &schema.Table{
		Name:       "assignments",
		Columns:    AssignmentsColumns,
		PrimaryKey: []*schema.Column{AssignmentsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "assignments_tasks_assignment",
				Columns:    []*schema.Column{AssignmentsColumns[0]},
				RefColumns: []*schema.Column{TasksColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "assignment_batch_id",
				Unique:  false,
				Columns: []*schema.Column{AssignmentsColumns[1]},
			},
		},
	}

	// FeedbacksColumns holds the columns for the "feedbacks" table.
	FeedbacksColumns = []*schema.Column{
		{Name: "task_id", Type: field.TypeString},
		{Name: "requester_id", Type: field.TypeString},
		{Name: "rating", Type: field.TypeInt},
		{Name: "comment", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
	}
	// FeedbacksTable holds the schema information for the "feedbacks" table.
	FeedbacksTable = &schema.Table{
		Name:       "feedbacks",
		Columns:    FeedbacksColumns,
		PrimaryKey: []*schema.Column{FeedbacksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "feedbacks_tasks_feedback",
				Columns:    []*schema.Column{FeedbacksColumns[0]},
				RefColumns: []*schema.Column{TasksColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
	}

	// ActivityEntriesColumns holds the columns for the "activity_entries" table.
	ActivityEntriesColumns = []*schema.Column{
		{Name: "event_id", Type: field.TypeString},
		{Name: "event_type", Type: field.TypeString},
		{Name: "occurred_at", Type: field.TypeTime},
		{Name: "indexed_entity_type", Type: field.TypeString},
		{Name: "indexed_entity_id", Type: field.TypeString},
		{Name: "entity_role", Type: field.TypeString},
		{Name: "source_refs", Type: field.TypeJSON},
		{Name: "summary", Type: field.TypeString, Size: 2147483647},
		{Name: "category", Type: field.TypeString},
		{Name: "actor", Type: field.TypeString, Default: ""},
		{Name: "payload", Type: field.TypeJSON, Nullable: true},
	}
	// ActivityEntriesTable holds the schema information for the "activity_entries" table.
	ActivityEntriesTable = &schema.Table{
		Name:    "activity_entries",
		Columns: ActivityEntriesColumns,
		PrimaryKey: []*schema.Column{
			ActivityEntriesColumns[3], ActivityEntriesColumns[4], ActivityEntriesColumns[0],
		},
		Indexes: []*schema.Index{
			{
				Name:    "activity_entity_time",
				Unique:  false,
				Columns: []*schema.Column{ActivityEntriesColumns[3], ActivityEntriesColumns[4], ActivityEntriesColumns[2]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		PropertiesTable,
		TasksTable,
		AssignmentsTable,
		FeedbacksTable,
		ActivityEntriesTable,
	}
)

func init() {
	TasksTable.ForeignKeys[0].RefTable = PropertiesTable
	AssignmentsTable.ForeignKeys[0].RefTable = TasksTable
	FeedbacksTable.ForeignKeys[0].RefTable = TasksTable
}

var (
	propertyColumns = []string{"id", "name", "address", "year_built", "created_at", "updated_at"}
	taskColumns     = []string{
		"id", "property_id", "requester_id", "category", "urgency", "severity", "origin", "status",
		"priority", "description", "attachment_ref", "created_at", "updated_at", "predicted_for_date", "resolved_at",
	}
	assignmentColumns = []string{"task_id", "batch_id", "priority", "staff_id", "scheduled_for", "created_at"}
	feedbackColumns   = []string{"task_id", "requester_id", "rating", "comment", "created_at"}
	activityColumns   = []string{
		"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
		"entity_role", "source_refs", "summary", "category", "actor", "payload",
	}
)
