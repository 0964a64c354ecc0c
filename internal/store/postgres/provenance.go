package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storykeeper/internal/provenance"
)

func (c *Client) AppendRecord(ctx context.Context, rec provenance.Record) error {
	evidence, err := json.Marshal(rec.EvidenceIDs)
	if err != nil {
		return fmt.Errorf("encoding evidence ids: %w", err)
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO provenance (id, entity_id, field, content_hash, source, ts, evidence, note, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.EntityID, rec.Field, rec.ContentHash, string(rec.Source),
		rec.Timestamp, evidence, rec.Note, rec.Seq)
	if err != nil {
		return fmt.Errorf("appending provenance record %s: %w", rec.ID, err)
	}
	return nil
}

func (c *Client) LatestRecord(ctx context.Context, entityID, field string) (*provenance.Record, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, entity_id, field, content_hash, source, ts, evidence, note, seq
		FROM provenance
		WHERE entity_id = $1 AND field = $2
		ORDER BY ts DESC, seq DESC
		LIMIT 1`, entityID, field)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest record for %s.%s: %w", entityID, field, err)
	}
	return rec, nil
}

func (c *Client) RecordsForEntity(ctx context.Context, entityID string) ([]provenance.Record, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, entity_id, field, content_hash, source, ts, evidence, note, seq
		FROM provenance
		WHERE entity_id = $1
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
	err := c.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM provenance`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("querying max provenance seq: %w", err)
	}
	return max, nil
}

func scanRecord(scan func(dest ...any) error) (*provenance.Record, error) {
	var rec provenance.Record
	var source string
	var evidence []byte
	if err := scan(&rec.ID, &rec.EntityID, &rec.Field, &rec.ContentHash,
		&source, &rec.Timestamp, &evidence, &rec.Note, &rec.Seq); err != nil {
		return nil, err
	}
	rec.Source = provenance.Source(source)
	if err := json.Unmarshal(evidence, &rec.EvidenceIDs); err != nil {
		return nil, fmt.Errorf("decoding evidence ids: %w", err)
	}
	return &rec, nil
}
