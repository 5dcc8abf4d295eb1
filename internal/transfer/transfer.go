// Package transfer moves maintenance tasks in and out as CSV.
//
// Export writes one row per task. Import is the bulk form of tenant
// submission: every row becomes a reactive task created through the
// lifecycle controller, properties named in the file are registered when
// missing, and the whole file commits in one transaction or not at all.
package transfer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/propmaint/internal/apperr"
	"github.com/matthewbaird/propmaint/internal/auth"
	"github.com/matthewbaird/propmaint/internal/lifecycle"
	"github.com/matthewbaird/propmaint/internal/priority"
	"github.com/matthewbaird/propmaint/internal/types"
)

// Columns is the export header.
var Columns = []string{
	"id", "requester_id", "property_id", "category", "origin", "urgency", "severity",
	"description", "status", "priority", "created_at", "resolved_at",
}

// Import defaults for blank cells.
const (
	DefaultCategory = "general"
	DefaultUrgency  = types.LevelMedium
)

// Export writes tasks as CSV with a header row.
func Export(w io.Writer, tasks []types.Task) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, t := range tasks {
		if err := cw.Write(row(t)); err != nil {
			return fmt.Errorf("writing task %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(t types.Task) []string {
	prio := ""
	if t.Priority != nil {
		prio = strconv.Itoa(*t.Priority)
	}
	return []string{
		t.ID,
		t.RequesterID,
		t.PropertyID,
		t.Category,
		string(t.Origin),
		string(t.Urgency),
		string(t.Severity),
		deref(t.Description),
		string(t.Status),
		prio,
		t.CreatedAt.UTC().Format(time.RFC3339),
		formatTime(t.ResolvedAt),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Result summarizes an import.
type Result struct {
	Imported          int      `json:"imported"`
	PropertiesCreated int      `json:"properties_created"`
	TaskIDs           []string `json:"task_ids"`
}

// importRow is one parsed data row. line is the 1-based line in the file.
type importRow struct {
	line        int
	property    string
	requester   string
	category    string
	urgency     string
	description string
	status      string
}

// Import reads a CSV with a header naming at least property_name. Optional
// columns: requester_id (or tenant_email), category, urgency, description,
// status. Blank category and urgency take the defaults; status may move the
// new task forward to active or resolved. Any invalid row aborts the import
// with that row's error and nothing is written. Only admins may import.
func Import(ctx context.Context, ctrl *lifecycle.Controller, caller auth.Caller, r io.Reader) (Result, error) {
	const op = "transfer.import"
	if !caller.IsAdmin() {
		return Result{}, apperr.Forbidden(op, "role %q may not import tasks", caller.Role)
	}
	rows, err := parse(op, r)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = ctrl.Atomically(ctx, func(tx *lifecycle.Op) error {
		res = Result{}
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, created, err := importOne(ctx, tx, caller, row)
			if err != nil {
				return fmt.Errorf("line %d: %w", row.line, err)
			}
			if created {
				res.PropertiesCreated++
			}
			res.Imported++
			res.TaskIDs = append(res.TaskIDs, id)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func importOne(ctx context.Context, op *lifecycle.Op, caller auth.Caller, row importRow) (string, bool, error) {
	var target types.Status
	if row.status != "" {
		st, ok := types.ParseStatus(row.status)
		if !ok {
			return "", false, apperr.Validation("transfer.import", "unknown status %q", row.status)
		}
		target = st
	}

	p, created, err := op.EnsureProperty(ctx, caller, row.property)
	if err != nil {
		return "", false, err
	}
	in := lifecycle.ReactiveInput{
		PropertyID:  p.ID,
		RequesterID: row.requester,
		Category:    orDefault(row.category, DefaultCategory),
		Urgency:     types.Level(orDefault(row.urgency, string(DefaultUrgency))),
	}
	if row.description != "" {
		in.Description = &row.description
	}
	t, err := op.CreateReactive(ctx, caller, in)
	if err != nil {
		return "", false, err
	}
	if t, err = priority.Score(ctx, op, t); err != nil {
		return "", false, err
	}
	if target != "" && target != t.Status {
		if _, err := op.SetStatus(ctx, caller, t.ID, target); err != nil {
			return "", false, err
		}
	}
	return t.ID, created, nil
}

func parse(op string, r io.Reader) ([]importRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperr.Validation(op, "file is empty")
	}
	if err != nil {
		return nil, readError(op, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["property_name"]; !ok {
		return nil, apperr.Validation(op, "header must include property_name")
	}
	cell := func(rec []string, names ...string) string {
		for _, n := range names {
			if i, ok := cols[n]; ok && i < len(rec) {
				if v := strings.TrimSpace(rec[i]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var rows []importRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(op, err)
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, importRow{
			line:        line,
			property:    cell(rec, "property_name"),
			requester:   cell(rec, "requester_id", "tenant_email"),
			category:    cell(rec, "category"),
			urgency:     cell(rec, "urgency"),
			description: cell(rec, "description"),
			status:      cell(rec, "status"),
		})
	}
	if len(rows) == 0 {
		return nil, apperr.Validation(op, "file has no rows")
	}
	return rows, nil
}

// readError reports malformed CSV as a validation error and passes I/O
// failures through.
func readError(op string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return apperr.Validation(op, "%v", pe)
	}
	return fmt.Errorf("reading csv: %w", err)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
