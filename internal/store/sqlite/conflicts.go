package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storykeeper/internal/merge"
)

func (c *Client) AppendConflict(ctx context.Context, conflict merge.Conflict) error {
	current, candidate, merged, err := encodeValues(conflict)
	if err != nil {
		return err
	}
	var resolvedAt any
	if conflict.ResolvedAt != nil {
		resolvedAt = conflict.ResolvedAt.UTC().Format(timeFormat)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO conflicts
			(id, entity_id, entity_type, field, current, candidate, tier, status,
			 source, merged, detected_at, resolved_at, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conflict.ID, conflict.EntityID, conflict.EntityType, conflict.Field,
		current, candidate, string(conflict.Tier), string(conflict.Status),
		conflict.Source, merged,
		conflict.DetectedAt.UTC().Format(timeFormat), resolvedAt, conflict.Note)
	if err != nil {
		return fmt.Errorf("appending conflict %s: %w", conflict.ID, err)
	}
	return nil
}

// UpdateConflict rewrites the mutable part of a conflict row. Field values
// and tier are fixed at detection time and never touched.
func (c *Client) UpdateConflict(ctx context.Context, conflict merge.Conflict) error {
	var resolvedAt any
	if conflict.ResolvedAt != nil {
		resolvedAt = conflict.ResolvedAt.UTC().Format(timeFormat)
	}
	var merged any
	if conflict.Merged != nil {
		data, err := json.Marshal(conflict.Merged)
		if err != nil {
			return fmt.Errorf("encoding merged value: %w", err)
		}
		merged = string(data)
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE conflicts
		SET status = ?, merged = ?, resolved_at = ?, note = ?
		WHERE id = ?`,
		string(conflict.Status), merged, resolvedAt, conflict.Note, conflict.ID)
	if err != nil {
		return fmt.Errorf("updating conflict %s: %w", conflict.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating conflict %s: %w", conflict.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("conflict %s not found", conflict.ID)
	}
	return nil
}

func (c *Client) GetConflict(ctx context.Context, id string) (*merge.Conflict, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, entity_id, entity_type, field, current, candidate, tier,
		       status, source, merged, detected_at, resolved_at, note
		FROM conflicts WHERE id = ?`, id)

	conflict, err := scanConflict(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying conflict %s: %w", id, err)
	}
	return conflict, nil
}

func (c *Client) ListConflicts(ctx context.Context, filter merge.LogFilter) ([]merge.Conflict, error) {
	var clauses []string
	var args []any
	if filter.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.Tier != "" {
		clauses = append(clauses, "tier = ?")
		args = append(args, string(filter.Tier))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.PendingOnly {
		clauses = append(clauses, "status IN ('detected', 'pending_review', 'blocked')")
	}

	query := `
		SELECT id, entity_id, entity_type, field, current, candidate, tier,
		       status, source, merged, detected_at, resolved_at, note
		FROM conflicts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY detected_at, id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []merge.Conflict
	for rows.Next() {
		conflict, err := scanConflict(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning conflict: %w", err)
		}
		conflicts = append(conflicts, *conflict)
	}
	return conflicts, rows.Err()
}

func encodeValues(conflict merge.Conflict) (current, candidate string, merged any, err error) {
	currentData, err := json.Marshal(conflict.Current)
	if err != nil {
		return "", "", nil, fmt.Errorf("encoding current value: %w", err)
	}
	candidateData, err := json.Marshal(conflict.Candidate)
	if err != nil {
		return "", "", nil, fmt.Errorf("encoding candidate value: %w", err)
	}
	if conflict.Merged != nil {
		mergedData, err := json.Marshal(conflict.Merged)
		if err != nil {
			return "", "", nil, fmt.Errorf("encoding merged value: %w", err)
		}
		merged = string(mergedData)
	}
	return string(currentData), string(candidateData), merged, nil
}

func scanConflict(scan func(dest ...any) error) (*merge.Conflict, error) {
	var conflict merge.Conflict
	var current, candidate, tier, status, detectedAt string
	var merged, resolvedAt sql.NullString
	if err := scan(&conflict.ID, &conflict.EntityID, &conflict.EntityType,
		&conflict.Field, &current, &candidate, &tier, &status,
		&conflict.Source, &merged, &detectedAt, &resolvedAt, &conflict.Note); err != nil {
		return nil, err
	}
	conflict.Tier = merge.Tier(tier)
	conflict.Status = merge.Status(status)

	if err := json.Unmarshal([]byte(current), &conflict.Current); err != nil {
		return nil, fmt.Errorf("decoding current value: %w", err)
	}
	if err := json.Unmarshal([]byte(candidate), &conflict.Candidate); err != nil {
		return nil, fmt.Errorf("decoding candidate value: %w", err)
	}
	if merged.Valid {
		conflict.Merged = &merge.Value{}
		if err := json.Unmarshal([]byte(merged.String), conflict.Merged); err != nil {
			return nil, fmt.Errorf("decoding merged value: %w", err)
		}
	}

	var err error
	if conflict.DetectedAt, err = time.Parse(timeFormat, detectedAt); err != nil {
		return nil, fmt.Errorf("parsing detected_at: %w", err)
	}
	if resolvedAt.Valid {
		ts, err := time.Parse(timeFormat, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing resolved_at: %w", err)
		}
		conflict.ResolvedAt = &ts
	}
	return &conflict, nil
}
