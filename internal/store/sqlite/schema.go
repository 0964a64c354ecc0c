package sqlite

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS baselines (
		path        TEXT PRIMARY KEY,
		hash        TEXT NOT NULL,
		size        INTEGER NOT NULL,
		mod_time    TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS provenance (
		id           TEXT PRIMARY KEY,
		entity_id    TEXT NOT NULL,
		field        TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		source       TEXT NOT NULL,
		ts           TEXT NOT NULL,
		evidence     TEXT DEFAULT '[]',
		note         TEXT DEFAULT '',
		seq          INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conflicts (
		id          TEXT PRIMARY KEY,
		entity_id   TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		field       TEXT NOT NULL,
		current     TEXT NOT NULL,
		candidate   TEXT NOT NULL,
		tier        TEXT NOT NULL,
		status      TEXT NOT NULL,
		source      TEXT DEFAULT '',
		merged      TEXT,
		detected_at TEXT NOT NULL,
		resolved_at TEXT,
		note        TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_provenance_entity ON provenance (entity_id);
	CREATE INDEX IF NOT EXISTS idx_provenance_entity_field ON provenance (entity_id, field);
	CREATE INDEX IF NOT EXISTS idx_conflicts_entity ON conflicts (entity_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_status ON conflicts (status);
	CREATE INDEX IF NOT EXISTS idx_conflicts_tier ON conflicts (tier);
	`
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating sqlite schema: %w", err)
	}
	return nil
}
