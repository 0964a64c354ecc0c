package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"storykeeper/internal/merge"
)

func (c *Client) AppendConflict(ctx context.Context, conflict merge.Conflict) error {
	current, err := json.Marshal(conflict.Current)
	if err != nil {
		return fmt.Errorf("encoding current value: %w", err)
	}
	candidate, err := json.Marshal(conflict.Candidate)
	if err != nil {
		return fmt.Errorf("encoding candidate value: %w", err)
	}
	var merged []byte
	if conflict.Merged != nil {
		if merged, err = json.Marshal(conflict.Merged); err != nil {
			return fmt.Errorf("encoding merged value: %w", err)
		}
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO conflicts
			(id, entity_id, entity_type, field, current, candidate, tier, status,
			 source, merged, detected_at, resolved_at, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		conflict.ID, conflict.EntityID, conflict.EntityType, conflict.Field,
		current, candidate, string(conflict.Tier), string(conflict.Status),
		conflict.Source, merged, conflict.DetectedAt, conflict.ResolvedAt, conflict.Note)
	if err != nil {
		return fmt.Errorf("appending conflict %s: %w", conflict.ID, err)
	}
	return nil
}

// UpdateConflict rewrites the mutable part of a conflict row. Field values
// and tier are fixed at detection time and never touched.
func (c *Client) UpdateConflict(ctx context.Context, conflict merge.Conflict) error {
	var merged []byte
	if conflict.Merged != nil {
		var err error
		if merged, err = json.Marshal(conflict.Merged); err != nil {
			return fmt.Errorf("encoding merged value: %w", err)
		}
	}
	tag, err := c.pool.Exec(ctx, `
		UPDATE conflicts
		SET status = $1, merged = $2, resolved_at = $3, note = $4
		WHERE id = $5`,
		string(conflict.Status), merged, conflict.ResolvedAt, conflict.Note, conflict.ID)
	if err != nil {
		return fmt.Errorf("updating conflict %s: %w", conflict.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conflict %s not found", conflict.ID)
	}
	return nil
}

func (c *Client) GetConflict(ctx context.Context, id string) (*merge.Conflict, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, entity_id, entity_type, field, current, candidate, tier,
		       status, source, merged, detected_at, resolved_at, note
		FROM conflicts WHERE id = $1`, id)

	conflict, err := scanConflict(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
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
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.EntityID != "" {
		clauses = append(clauses, "entity_id = "+arg(filter.EntityID))
	}
	if filter.Tier != "" {
		clauses = append(clauses, "tier = "+arg(string(filter.Tier)))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(string(filter.Status)))
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

	rows, err := c.pool.Query(ctx, query, args...)
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

func scanConflict(scan func(dest ...any) error) (*merge.Conflict, error) {
	var conflict merge.Conflict
	var current, candidate, merged []byte
	var tier, status string
	if err := scan(&conflict.ID, &conflict.EntityID, &conflict.EntityType,
		&conflict.Field, &current, &candidate, &tier, &status,
		&conflict.Source, &merged, &conflict.DetectedAt, &conflict.ResolvedAt,
		&conflict.Note); err != nil {
		return nil, err
	}
	conflict.Tier = merge.Tier(tier)
	conflict.Status = merge.Status(status)

	if err := json.Unmarshal(current, &conflict.Current); err != nil {
		return nil, fmt.Errorf("decoding current value: %w", err)
	}
	if err := json.Unmarshal(candidate, &conflict.Candidate); err != nil {
		return nil, fmt.Errorf("decoding candidate value: %w", err)
	}
	if len(merged) > 0 {
		conflict.Merged = &merge.Value{}
		if err := json.Unmarshal(merged, conflict.Merged); err != nil {
			return nil, fmt.Errorf("decoding merged value: %w", err)
		}
	}
	return &conflict, nil
}
