package provenance

import (
	"context"
	"testing"
	"time"
)

type memJournal struct {
	records []Record
}

func (m *memJournal) AppendRecord(ctx context.Context, rec Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memJournal) LatestRecord(ctx context.Context, entityID, field string) (*Record, error) {
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].EntityID == entityID && m.records[i].Field == field {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memJournal) RecordsForEntity(ctx context.Context, entityID string) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memJournal) MaxSeq(ctx context.Context) (int64, error) {
	var max int64
	for _, r := range m.records {
		if r.Seq > max {
			max = r.Seq
		}
	}
	return max, nil
}

func testLedger() (*Ledger, *memJournal) {
	journal := &memJournal{}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks int
	now := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	return NewLedger(journal, now), journal
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	l, journal := testLedger()

	rec, err := l.Append(ctx, "char-alice", "name", HashValue("Alice"), SourceExtraction, []string{"scene-001.md"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.ID == "" || rec.Seq != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Timestamp.IsZero() || rec.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v", rec.Timestamp)
	}
	if len(journal.records) != 1 {
		t.Errorf("journal holds %d records", len(journal.records))
	}

	t.Run("sequence is monotonic", func(t *testing.T) {
		second, err := l.Append(ctx, "char-alice", "name", HashValue("Alicia"), SourceManualEdit, nil)
		if err != nil {
			t.Fatal(err)
		}
		if second.Seq != 2 {
			t.Errorf("seq = %d, want 2", second.Seq)
		}
	})

	t.Run("missing identifiers rejected", func(t *testing.T) {
		if _, err := l.Append(ctx, "", "name", "h", SourceExtraction, nil); err == nil {
			t.Error("expected error for empty entity id")
		}
		if _, err := l.Append(ctx, "char-alice", "", "h", SourceExtraction, nil); err == nil {
			t.Error("expected error for empty field")
		}
	})

	t.Run("invalid source rejected", func(t *testing.T) {
		if _, err := l.Append(ctx, "char-alice", "name", "h", Source("guess"), nil); err == nil {
			t.Error("expected error for invalid source")
		}
	})
}

func TestAppend_SequenceContinuesAcrossRestart(t *testing.T) {
	ctx := context.Background()
	l, journal := testLedger()

	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, "char-alice", "aliases", HashValue("Al"), SourceExtraction, nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	restarted := NewLedger(journal, nil)
	rec, err := restarted.Append(ctx, "char-alice", "aliases", HashValue("Al", "Ally"), SourceManualEdit, nil)
	if err != nil {
		t.Fatalf("Append after restart: %v", err)
	}
	if rec.Seq != 4 {
		t.Errorf("seq = %d, want 4 after three persisted records", rec.Seq)
	}
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	l, _ := testLedger()

	if _, err := l.Append(ctx, "char-alice", "aliases", HashValue("Al"), SourceExtraction, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Append(ctx, "char-alice", "aliases", HashValue("Al", "Ally"), SourceManualEdit, nil); err != nil {
		t.Fatal(err)
	}

	latest, err := l.Latest(ctx, "char-alice", "aliases")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.Source != SourceManualEdit {
		t.Errorf("latest = %+v, want the manual edit", latest)
	}

	none, err := l.Latest(ctx, "char-alice", "attributes.hair")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Errorf("latest = %+v, want nil for unrecorded field", none)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	l, _ := testLedger()

	fields := []string{"name", "aliases", "attributes.hair"}
	for _, f := range fields {
		if _, err := l.Append(ctx, "char-alice", f, HashValue(f), SourceExtraction, nil); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := l.Append(ctx, "char-bob", "name", HashValue("Bob"), SourceExtraction, nil); err != nil {
		t.Fatal(err)
	}

	history, err := l.History(ctx, "char-alice")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d records, want 3", len(history))
	}
	for i, rec := range history {
		if rec.Field != fields[i] {
			t.Errorf("history[%d].Field = %s, want %s", i, rec.Field, fields[i])
		}
		if i > 0 && history[i-1].Seq >= rec.Seq {
			t.Errorf("history out of order at %d", i)
		}
	}
}

func TestHashValue(t *testing.T) {
	if HashValue("a", "b") != HashValue("b", "a") {
		t.Error("hash should not depend on collection order")
	}
	if HashValue("a") == HashValue("b") {
		t.Error("distinct values should hash apart")
	}
	if HashValue("ab") == HashValue("a", "b") {
		t.Error("joined scalars must not collide with a collection")
	}
}
