package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storykeeper/internal/detect"
)

func (c *Client) Baseline(ctx context.Context, path string) (*detect.FileState, error) {
	var state detect.FileState
	err := c.pool.QueryRow(ctx, `
		SELECT path, hash, size, mod_time, recorded_at
		FROM baselines WHERE path = $1`, path).
		Scan(&state.Path, &state.Hash, &state.Size, &state.ModTime, &state.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying baseline %s: %w", path, err)
	}
	return &state, nil
}

func (c *Client) PutBaseline(ctx context.Context, state detect.FileState) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO baselines (path, hash, size, mod_time, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (path) DO UPDATE SET
			hash = EXCLUDED.hash,
			size = EXCLUDED.size,
			mod_time = EXCLUDED.mod_time,
			recorded_at = EXCLUDED.recorded_at`,
		state.Path, state.Hash, state.Size, state.ModTime, state.RecordedAt)
	if err != nil {
		return fmt.Errorf("storing baseline %s: %w", state.Path, err)
	}
	return nil
}

func (c *Client) ListBaselines(ctx context.Context) ([]detect.FileState, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT path, hash, size, mod_time, recorded_at
		FROM baselines ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	defer rows.Close()

	var states []detect.FileState
	for rows.Next() {
		var state detect.FileState
		if err := rows.Scan(&state.Path, &state.Hash, &state.Size,
			&state.ModTime, &state.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning baseline: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func (c *Client) DeleteBaseline(ctx context.Context, path string) error {
	if _, err := c.pool.Exec(ctx, `DELETE FROM baselines WHERE path = $1`, path); err != nil {
		return fmt.Errorf("deleting baseline %s: %w", path, err)
	}
	return nil
}
