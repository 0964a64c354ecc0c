package store

import (
	"context"

	"storykeeper/internal/detect"
	"storykeeper/internal/merge"
	"storykeeper/internal/provenance"
)

// Store is the persistence layer behind a project: document baselines for
// change detection, the append-only provenance journal, and the conflict
// log. The canonical graph itself is a versioned JSON document on disk, not
// a Store concern.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	Baseline(ctx context.Context, path string) (*detect.FileState, error)
	PutBaseline(ctx context.Context, state detect.FileState) error
	ListBaselines(ctx context.Context) ([]detect.FileState, error)
	DeleteBaseline(ctx context.Context, path string) error

	AppendRecord(ctx context.Context, rec provenance.Record) error
	LatestRecord(ctx context.Context, entityID, field string) (*provenance.Record, error)
	RecordsForEntity(ctx context.Context, entityID string) ([]provenance.Record, error)
	MaxSeq(ctx context.Context) (int64, error)

	AppendConflict(ctx context.Context, c merge.Conflict) error
	UpdateConflict(ctx context.Context, c merge.Conflict) error
	GetConflict(ctx context.Context, id string) (*merge.Conflict, error)
	ListConflicts(ctx context.Context, filter merge.LogFilter) ([]merge.Conflict, error)
}

// A Store must satisfy every consumer-side contract.
var (
	_ detect.BaselineStore = (Store)(nil)
	_ provenance.Journal   = (Store)(nil)
	_ merge.Log            = (Store)(nil)
)
