package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storykeeper/internal/provenance"
)

func (c *Client) AppendRecord(ctx context.Context, rec provenance.Record) error {
	evidence, err := json.Marshal(rec.EvidenceIDs)
	if err != nil {
		return fmt.Errorf("encoding evidence ids: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO provenance (id, entity_id, field, content_hash, source, ts, evidence, note, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityID, rec.Field, rec.ContentHash, string(rec.Source),
		rec.Timestamp.UTC().Format(timeFormat), string(evidence), rec.Note, rec.Seq)
	if err != nil {
		return fmt.Errorf("appending provenance record %s: %w", rec.ID, err)
	}
	return nil
}

func (c *Client) LatestRecord(ctx context.Context, entityID, field string) (*provenance.Record, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, entity_id, field, content_hash, source, ts, evidence, note, seq
		FROM provenance
		WHERE entity_id = ? AND field = ?
		ORDER BY ts DESC, seq DESC
		LIMIT 1`, entityID, field)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest record for %s.%s: %w", entityID, field, err)
	}
	return rec, nil
}

func (c *Client) RecordsForEntity(ctx context.Context, entityID string) ([]provenance.Record, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, entity_id, field, content_hash, source, ts, evidence, note, seq
		FROM provenance
		WHERE entity_id = ?
		ORDER BY ts, seq`, entityID)
	if err != nil {
		return nil, fmt.Errorf("listing records for %s: %w", entityID, err)
	}
	defer rows.Close()

	var records []provenance.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning provenance record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (c *Client) MaxSeq(ctx context.Context) (int64, error) {
	var max int64
	err := c.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM provenance`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max provenance seq: %w", err)
	}
	return max, nil
}

func scanRecord(scan func(dest ...any) error) (*provenance.Record, error) {
	var rec provenance.Record
	var source, ts, evidence string
	if err := scan(&rec.ID, &rec.EntityID, &rec.Field, &rec.ContentHash,
		&source, &ts, &evidence, &rec.Note, &rec.Seq); err != nil {
		return nil, err
	}
	rec.Source = provenance.Source(source)
	var err error
	if rec.Timestamp, err = time.Parse(timeFormat, ts); err != nil {
		return nil, fmt.Errorf("parsing timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(evidence), &rec.EvidenceIDs); err != nil {
		return nil, fmt.Errorf("decoding evidence ids: %w", err)
	}
	return &rec, nil
}
