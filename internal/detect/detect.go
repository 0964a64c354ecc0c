// Package detect decides which documents changed since the last successful
// build. The check is cheap-first: size and mtime against the stored baseline,
// with a full content hash only when the metadata differs.
package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const hashChunkSize = 8192

// FileState is the stored baseline for one document, recorded after a
// successful merge.
type FileState struct {
	Path       string    `json:"path"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ChangeKind classifies a detected change.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Change is one document that differs from its baseline.
type Change struct {
	Path    string
	Kind    ChangeKind
	OldHash string
	NewHash string
}

// BaselineStore persists file baselines between builds.
type BaselineStore interface {
	Baseline(ctx context.Context, path string) (*FileState, error)
	PutBaseline(ctx context.Context, state FileState) error
	ListBaselines(ctx context.Context) ([]FileState, error)
}

// Detector compares documents on disk against stored baselines.
type Detector struct {
	store BaselineStore
	now   func() time.Time
}

func New(store BaselineStore, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{store: store, now: now}
}

// HashFile computes the sha256 of a file's contents, reading in fixed-size
// chunks to bound memory on large documents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HasChanged reports whether a document differs from its baseline. A missing
// baseline counts as changed. An unreadable file is an error, never a silent
// skip.
func (d *Detector) HasChanged(ctx context.Context, path string) (bool, error) {
	state, err := d.store.Baseline(ctx, path)
	if err != nil {
		return false, fmt.Errorf("loading baseline for %s: %w", path, err)
	}
	if state == nil {
		return true, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == state.Size && info.ModTime().Equal(state.ModTime) {
		return false, nil
	}

	hash, err := HashFile(path)
	if err != nil {
		return false, err
	}
	return hash != state.Hash, nil
}

// Snapshot records the current state of a document as the new baseline.
// Called only after a successful merge.
func (d *Detector) Snapshot(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	hash, err := HashFile(path)
	if err != nil {
		return err
	}
	state := FileState{
		Path:       path,
		Hash:       hash,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		RecordedAt: d.now().UTC(),
	}
	if err := d.store.PutBaseline(ctx, state); err != nil {
		return fmt.Errorf("storing baseline for %s: %w", path, err)
	}
	return nil
}

// Changed scans the tree rooted at root for documents accepted by match and
// returns those that differ from their baselines, plus baselines whose files
// no longer exist. Hashing runs concurrently across files; results are sorted
// by path so scan parallelism never leaks into downstream ordering.
func (d *Detector) Changed(ctx context.Context, root string, match func(path string) bool) ([]Change, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("scanning %s: %w", path, err)
		}
		if entry.IsDir() {
			return nil
		}
		if match == nil || match(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	results := make([]*Change, len(paths))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(8)
	for i, path := range paths {
		grp.Go(func() error {
			state, err := d.store.Baseline(gctx, path)
			if err != nil {
				return fmt.Errorf("loading baseline for %s: %w", path, err)
			}
			if state == nil {
				hash, err := HashFile(path)
				if err != nil {
					return err
				}
				results[i] = &Change{Path: path, Kind: ChangeAdded, NewHash: hash}
				return nil
			}

			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if info.Size() == state.Size && info.ModTime().Equal(state.ModTime) {
				return nil
			}
			hash, err := HashFile(path)
			if err != nil {
				return err
			}
			if hash == state.Hash {
				return nil
			}
			results[i] = &Change{Path: path, Kind: ChangeModified, OldHash: state.Hash, NewHash: hash}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	var changes []Change
	for _, r := range results {
		if r != nil {
			changes = append(changes, *r)
		}
	}

	baselines, err := d.store.ListBaselines(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	present := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		present[p] = struct{}{}
	}
	for _, state := range baselines {
		if !within(root, state.Path) {
			continue
		}
		if _, ok := present[state.Path]; !ok {
			changes = append(changes, Change{Path: state.Path, Kind: ChangeDeleted, OldHash: state.Hash})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return filepath.IsLocal(rel)
}
