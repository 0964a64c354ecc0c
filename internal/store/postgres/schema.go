package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS baselines (
    path        TEXT PRIMARY KEY,
    hash        TEXT NOT NULL,
    size        BIGINT NOT NULL,
    mod_time    TIMESTAMPTZ NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance (
    id           TEXT PRIMARY KEY,
    entity_id    TEXT NOT NULL,
    field        TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    source       TEXT NOT NULL,
    ts           TIMESTAMPTZ NOT NULL,
    evidence     JSONB DEFAULT '[]',
    note         TEXT DEFAULT '',
    seq          BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS conflicts (
    id          TEXT PRIMARY KEY,
    entity_id   TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    field       TEXT NOT NULL,
    current     JSONB NOT NULL,
    candidate   JSONB NOT NULL,
    tier        TEXT NOT NULL,
    status      TEXT NOT NULL,
    source      TEXT DEFAULT '',
    merged      JSONB,
    detected_at TIMESTAMPTZ NOT NULL,
    resolved_at TIMESTAMPTZ,
    note        TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_provenance_entity ON provenance (entity_id);
CREATE INDEX IF NOT EXISTS idx_provenance_entity_field ON provenance (entity_id, field);
CREATE INDEX IF NOT EXISTS idx_conflicts_entity ON conflicts (entity_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_status ON conflicts (status);
CREATE INDEX IF NOT EXISTS idx_conflicts_tier ON conflicts (tier);
`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating postgres schema: %w", err)
	}
	return nil
}
