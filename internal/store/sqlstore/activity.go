package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/matthewbaird/propmaint/internal/activity"
	"github.com/matthewbaird/propmaint/internal/types"
)

var _ activity.Store = (*Store)(nil)

// WriteEntries inserts activity entries in one statement.
func (s *Store) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := s.build().Insert(ActivityEntriesTable.Name).Columns(activityColumns...)
	for _, e := range entries {
		refs, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("marshaling source refs: %w", err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UTC(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refs), e.Summary, e.Category, e.Actor, payload,
		)
	}
	q, args := ins.Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("inserting activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns entries indexed under one entity, newest first.
func (s *Store) QueryByEntity(ctx context.Context, entityType, entityID string, opts activity.QueryOptions) ([]types.ActivityEntry, string, int, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("indexed_entity_type", entityType),
		entsql.EQ("indexed_entity_id", entityID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", opts.Until.UTC()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", stringsToAny(opts.Categories)...))
	}
	if len(opts.EventTypes) > 0 {
		preds = append(preds, entsql.In("event_type", stringsToAny(opts.EventTypes)...))
	}
	if opts.Cursor != "" {
		if ct, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			preds = append(preds, entsql.LT("occurred_at", ct.UTC()))
		}
	}

	total, err := s.countActivity(ctx, preds)
	if err != nil {
		return nil, "", 0, err
	}

	limit := opts.PageSize()
	entries, err := s.selectActivity(ctx, preds, limit)
	if err != nil {
		return nil, "", 0, err
	}

	var nextCursor string
	if total > len(entries) && len(entries) > 0 {
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return entries, nextCursor, total, nil
}

// Search matches summaries case-insensitively.
func (s *Store) Search(ctx context.Context, query string, opts activity.SearchOptions) ([]types.ActivityEntry, int, error) {
	preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
	if opts.EntityType != "" {
		preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", stringsToAny(opts.Categories)...))
	}

	total, err := s.countActivity(ctx, preds)
	if err != nil {
		return nil, 0, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.selectActivity(ctx, preds, limit)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *Store) countActivity(ctx context.Context, preds []*entsql.Predicate) (int, error) {
	q, args := s.build().Select(entsql.Count("*")).
		From(s.build().Table(ActivityEntriesTable.Name)).
		Where(entsql.And(preds...)).
		Query()
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return n, nil
}

func (s *Store) selectActivity(ctx context.Context, preds []*entsql.Predicate, limit int) ([]types.ActivityEntry, error) {
	q, args := s.build().Select(activityColumns...).
		From(s.build().Table(ActivityEntriesTable.Name)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at"), "event_id").
		Limit(limit).
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var out []types.ActivityEntry
	for rows.Next() {
		var (
			e       types.ActivityEntry
			refs    []byte
			payload sql.NullString
		)
		if err := rows.Scan(
			&e.EventID, &e.EventType, &e.OccurredAt, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refs, &e.Summary, &e.Category, &e.Actor, &payload,
		); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if err := json.Unmarshal(refs, &e.SourceRefs); err != nil {
			return nil, fmt.Errorf("decoding source refs: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
