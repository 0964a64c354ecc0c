// Package provenance keeps the append-only record of which source last wrote
// each entity field. The ledger is the audit trail the merge engine consults
// to tell a user's careful correction apart from ordinary extraction output.
package provenance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies what produced a field value.
type Source string

const (
	SourceExtraction Source = "extraction"
	SourceManualEdit Source = "manual_edit"
	SourceMerge      Source = "merge"
)

func (s Source) Valid() bool {
	switch s {
	case SourceExtraction, SourceManualEdit, SourceMerge:
		return true
	}
	return false
}

// Record is one ledger entry. Once appended it is never mutated or deleted;
// the current provenance for a field is the newest record for that
// (entity, field) pair.
type Record struct {
	ID          string    `json:"id"`
	EntityID    string    `json:"entity_id"`
	Field       string    `json:"field"`
	ContentHash string    `json:"content_hash"`
	Source      Source    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
	EvidenceIDs []string  `json:"evidence_ids,omitempty"`
	Note        string    `json:"note,omitempty"`
	Seq         int64     `json:"seq"`
}

// Journal is the persistence contract the ledger writes through. Appends are
// durable and ordered; nothing is ever rewritten.
type Journal interface {
	AppendRecord(ctx context.Context, rec Record) error
	LatestRecord(ctx context.Context, entityID, field string) (*Record, error)
	RecordsForEntity(ctx context.Context, entityID string) ([]Record, error)
	MaxSeq(ctx context.Context) (int64, error)
}

// Ledger appends and queries provenance records.
type Ledger struct {
	journal Journal
	now     func() time.Time
	seq     int64
	seeded  bool
}

func NewLedger(journal Journal, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{journal: journal, now: now}
}

// HashValue produces the content hash stored in a record: sha256 over the
// canonical encoding of the value (scalars as-is, collections sorted).
func HashValue(values ...string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Append writes a new record and returns it. Timestamps come from the build
// clock; ties on timestamp are broken by the monotonic sequence.
func (l *Ledger) Append(ctx context.Context, entityID, field, contentHash string, source Source, evidenceIDs []string) (Record, error) {
	if entityID == "" || field == "" {
		return Record{}, fmt.Errorf("provenance record needs entity id and field")
	}
	if !source.Valid() {
		return Record{}, fmt.Errorf("invalid provenance source: %q", source)
	}
	if !l.seeded {
		// The sequence continues where the journal left off so the
		// timestamp tiebreak holds across process restarts.
		max, err := l.journal.MaxSeq(ctx)
		if err != nil {
			return Record{}, fmt.Errorf("loading provenance sequence: %w", err)
		}
		if max > l.seq {
			l.seq = max
		}
		l.seeded = true
	}
	l.seq++
	rec := Record{
		ID:          "prov-" + uuid.NewString(),
		EntityID:    entityID,
		Field:       field,
		ContentHash: contentHash,
		Source:      source,
		Timestamp:   l.now().UTC(),
		EvidenceIDs: append([]string(nil), evidenceIDs...),
		Seq:         l.seq,
	}
	sort.Strings(rec.EvidenceIDs)
	if err := l.journal.AppendRecord(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("appending provenance for %s.%s: %w", entityID, field, err)
	}
	return rec, nil
}

// Latest returns the most recent record for a field, or nil when the field
// has no recorded provenance.
func (l *Ledger) Latest(ctx context.Context, entityID, field string) (*Record, error) {
	rec, err := l.journal.LatestRecord(ctx, entityID, field)
	if err != nil {
		return nil, fmt.Errorf("loading provenance for %s.%s: %w", entityID, field, err)
	}
	return rec, nil
}

// History returns every record for an entity ordered oldest first.
func (l *Ledger) History(ctx context.Context, entityID string) ([]Record, error) {
	recs, err := l.journal.RecordsForEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("loading provenance history for %s: %w", entityID, err)
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Timestamp.Equal(recs[j].Timestamp) {
			return recs[i].Timestamp.Before(recs[j].Timestamp)
		}
		return recs[i].Seq < recs[j].Seq
	})
	return recs, nil
}
