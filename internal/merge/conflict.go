package merge

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Tier classifies how a discrepancy may be handled.
type Tier string

const (
	TierSafe      Tier = "safe"      // additions only, auto-merged
	TierAmbiguous Tier = "ambiguous" // needs an external decision
	TierCritical  Tier = "critical"  // identity-affecting, blocks the value
)

// Status is the conflict's position in its lifecycle. CRITICAL conflicts move
// detected -> blocked and leave blocked only through an explicit resolution.
type Status string

const (
	StatusDetected      Status = "detected"
	StatusAutoResolved  Status = "auto_resolved"
	StatusPendingReview Status = "pending_review"
	StatusBlocked       Status = "blocked"
	StatusResolved      Status = "resolved"
	StatusDismissed     Status = "dismissed"
)

// Value is one side of a field comparison: either a scalar or an unordered
// string collection. Collections are kept sorted.
type Value struct {
	Scalar string   `json:"scalar,omitempty"`
	Set    []string `json:"set,omitempty"`
	IsSet  bool     `json:"is_set,omitempty"`
}

func ScalarValue(s string) Value {
	return Value{Scalar: s}
}

func SetValue(items []string) Value {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return Value{Set: dedupe(out), IsSet: true}
}

// Empty reports whether the value carries no content: a blank scalar or a
// collection with no members. An empty current value is a fill-in target, not
// a conflict side.
func (v Value) Empty() bool {
	if v.IsSet {
		return len(v.Set) == 0
	}
	return v.Scalar == ""
}

func (v Value) Equal(other Value) bool {
	if v.IsSet != other.IsSet {
		return false
	}
	if !v.IsSet {
		return v.Scalar == other.Scalar
	}
	if len(v.Set) != len(other.Set) {
		return false
	}
	for i := range v.Set {
		if v.Set[i] != other.Set[i] {
			return false
		}
	}
	return true
}

// Superset reports whether v contains every element of other. Both sides must
// be collections.
func (v Value) Superset(other Value) bool {
	if !v.IsSet || !other.IsSet {
		return false
	}
	members := make(map[string]struct{}, len(v.Set))
	for _, item := range v.Set {
		members[item] = struct{}{}
	}
	for _, item := range other.Set {
		if _, ok := members[item]; !ok {
			return false
		}
	}
	return true
}

// Union returns the sorted, deduplicated union of two collections.
func (v Value) Union(other Value) Value {
	merged := append(append([]string(nil), v.Set...), other.Set...)
	sort.Strings(merged)
	return Value{Set: dedupe(merged), IsSet: true}
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || sorted[i-1] != s {
			out = append(out, s)
		}
	}
	return out
}

// Conflict is one classified discrepancy between the current graph and a
// candidate value. Every classified conflict is appended to the log, SAFE
// ones included; the log is audit history and entries are never deleted.
type Conflict struct {
	ID         string     `json:"id"`
	EntityID   string     `json:"entity_id"`
	EntityType string     `json:"entity_type"`
	Field      string     `json:"field"`
	Current    Value      `json:"current"`
	Candidate  Value      `json:"candidate"`
	Tier       Tier       `json:"tier"`
	Status     Status     `json:"status"`
	Source     string     `json:"source,omitempty"` // originating document
	Merged     *Value     `json:"merged,omitempty"` // SAFE auto-merge result
	DetectedAt time.Time  `json:"detected_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Note       string     `json:"note,omitempty"`
}

// Pending reports whether the conflict still needs an external decision.
func (c *Conflict) Pending() bool {
	switch c.Status {
	case StatusDetected, StatusPendingReview, StatusBlocked:
		return true
	}
	return false
}

// ErrConflictBlocked marks an operation refused because a CRITICAL conflict
// holds the target field.
type ErrConflictBlocked struct {
	ConflictID string
	EntityID   string
	Field      string
}

func (e *ErrConflictBlocked) Error() string {
	return fmt.Sprintf("field %s.%s is blocked by critical conflict %s", e.EntityID, e.Field, e.ConflictID)
}

// Log persists conflicts. Appends are permanent; updates touch only status,
// resolution time and note.
type Log interface {
	AppendConflict(ctx context.Context, c Conflict) error
	UpdateConflict(ctx context.Context, c Conflict) error
	GetConflict(ctx context.Context, id string) (*Conflict, error)
	ListConflicts(ctx context.Context, filter LogFilter) ([]Conflict, error)
}

// LogFilter narrows ListConflicts. Zero values match everything.
type LogFilter struct {
	EntityID    string
	Tier        Tier
	Status      Status
	PendingOnly bool
}
