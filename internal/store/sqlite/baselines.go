package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"storykeeper/internal/detect"
)

func (c *Client) Baseline(ctx context.Context, path string) (*detect.FileState, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT path, hash, size, mod_time, recorded_at
		FROM baselines WHERE path = ?`, path)

	state, err := scanBaseline(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying baseline %s: %w", path, err)
	}
	return state, nil
}

func (c *Client) PutBaseline(ctx context.Context, state detect.FileState) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO baselines (path, hash, size, mod_time, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			hash = excluded.hash,
			size = excluded.size,
			mod_time = excluded.mod_time,
			recorded_at = excluded.recorded_at`,
		state.Path, state.Hash, state.Size,
		state.ModTime.UTC().Format(timeFormat),
		state.RecordedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("storing baseline %s: %w", state.Path, err)
	}
	return nil
}

func (c *Client) ListBaselines(ctx context.Context) ([]detect.FileState, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT path, hash, size, mod_time, recorded_at
		FROM baselines ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	defer rows.Close()

	var states []detect.FileState
	for rows.Next() {
		state, err := scanBaseline(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning baseline: %w", err)
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

func (c *Client) DeleteBaseline(ctx context.Context, path string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM baselines WHERE path = ?`, path); err != nil {
		return fmt.Errorf("deleting baseline %s: %w", path, err)
	}
	return nil
}

func scanBaseline(scan func(dest ...any) error) (*detect.FileState, error) {
	var state detect.FileState
	var modTime, recordedAt string
	if err := scan(&state.Path, &state.Hash, &state.Size, &modTime, &recordedAt); err != nil {
		return nil, err
	}
	var err error
	if state.ModTime, err = time.Parse(timeFormat, modTime); err != nil {
		return nil, fmt.Errorf("parsing mod_time: %w", err)
	}
	if state.RecordedAt, err = time.Parse(timeFormat, recordedAt); err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}
	return &state, nil
}
