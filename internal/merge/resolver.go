package merge

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"storykeeper/internal/canon"
	"storykeeper/internal/provenance"
)

// Candidate is one entity's worth of freshly re-extracted field values. The
// extractor upstream is untrusted: nothing here touches the graph until it
// has been classified.
type Candidate struct {
	EntityID   string
	EntityType canon.EntityType
	SourceDoc  string
	Fields     map[string]Value
}

// Resolver classifies per-field discrepancies into SAFE / AMBIGUOUS /
// CRITICAL and applies only what is safe. Everything else waits for an
// explicit external decision.
type Resolver struct {
	ledger *provenance.Ledger
	log    Log
	now    func() time.Time
}

func NewResolver(ledger *provenance.Ledger, log Log, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{ledger: ledger, log: log, now: now}
}

// Classify compares current field values against a candidate and returns one
// conflict per differing field, in sorted field order. Matching values
// produce nothing. Fields absent from the current view are creations, not
// conflicts; Apply writes them directly.
func (r *Resolver) Classify(ctx context.Context, current map[string]Value, cand Candidate) ([]Conflict, error) {
	names := make([]string, 0, len(cand.Fields))
	for name := range cand.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var conflicts []Conflict
	for _, field := range names {
		candidate := cand.Fields[field]
		existing, ok := current[field]
		if !ok || existing.Empty() {
			continue
		}
		if existing.Equal(candidate) {
			continue
		}

		prior, err := r.priorConflict(ctx, cand.EntityID, field, existing, candidate)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			// Same discrepancy already on file: re-classifying is a no-op so
			// re-running an unchanged build appends nothing.
			conflicts = append(conflicts, *prior)
			continue
		}

		tier, status, err := r.classifyField(ctx, cand.EntityID, field, existing, candidate)
		if err != nil {
			return nil, err
		}
		conflict := Conflict{
			ID:         "conf-" + uuid.NewString(),
			EntityID:   cand.EntityID,
			EntityType: string(cand.EntityType),
			Field:      field,
			Current:    existing,
			Candidate:  candidate,
			Tier:       tier,
			Status:     status,
			Source:     cand.SourceDoc,
			DetectedAt: r.now().UTC(),
		}
		if tier == TierSafe {
			merged := existing.Union(candidate)
			conflict.Merged = &merged
			resolved := conflict.DetectedAt
			conflict.ResolvedAt = &resolved
			conflict.Note = "auto-merged collection additions"
		}
		if err := r.log.AppendConflict(ctx, conflict); err != nil {
			return nil, fmt.Errorf("recording conflict for %s.%s: %w", cand.EntityID, field, err)
		}
		conflicts = append(conflicts, conflict)
	}
	return conflicts, nil
}

// priorConflict finds an existing conflict for the same discrepancy whose
// record still stands: pending, auto-resolved, or dismissed.
func (r *Resolver) priorConflict(ctx context.Context, entityID, field string, current, candidate Value) (*Conflict, error) {
	existing, err := r.log.ListConflicts(ctx, LogFilter{EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("listing conflicts for %s: %w", entityID, err)
	}
	for i := range existing {
		c := &existing[i]
		if c.Field != field || !c.Current.Equal(current) || !c.Candidate.Equal(candidate) {
			continue
		}
		if c.Pending() || c.Status == StatusAutoResolved || c.Status == StatusDismissed {
			// A dismissal is a standing decision to keep the current value;
			// the same discrepancy does not re-ask.
			return c, nil
		}
	}
	return nil, nil
}

// classifyField implements the three tiers. A collection that only gains
// elements is SAFE unless the ledger shows the current value came from a
// manual edit; a human's deliberate state is never widened silently.
func (r *Resolver) classifyField(ctx context.Context, entityID, field string, current, candidate Value) (Tier, Status, error) {
	if identityFields[field] {
		return TierCritical, StatusBlocked, nil
	}
	if current.IsSet && candidate.IsSet && candidate.Superset(current) {
		rec, err := r.ledger.Latest(ctx, entityID, field)
		if err != nil {
			return "", "", fmt.Errorf("checking provenance for %s.%s: %w", entityID, field, err)
		}
		if rec != nil && rec.Source == provenance.SourceManualEdit {
			return TierAmbiguous, StatusPendingReview, nil
		}
		return TierSafe, StatusAutoResolved, nil
	}
	return TierAmbiguous, StatusPendingReview, nil
}

// Apply writes the candidate onto the scratch graph: new entities and new
// fields directly, SAFE conflicts as their merged union, everything else left
// untouched. Every accepted write lands in the ledger.
func (r *Resolver) Apply(ctx context.Context, g *canon.Graph, cand Candidate, conflicts []Conflict) error {
	byField := make(map[string]Conflict, len(conflicts))
	for _, c := range conflicts {
		byField[c.Field] = c
	}

	current := r.currentFields(g, cand.EntityID)
	if current == nil {
		if err := r.createEntity(ctx, g, cand); err != nil {
			return err
		}
		current = r.currentFields(g, cand.EntityID)
	}

	names := make([]string, 0, len(cand.Fields))
	for name := range cand.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	evidence := cand.Fields["evidence_ids"].Set
	for _, field := range names {
		candidate := cand.Fields[field]
		if conflict, ok := byField[field]; ok {
			if conflict.Tier != TierSafe || conflict.Merged == nil {
				continue
			}
			if err := applyField(g, cand.EntityID, field, *conflict.Merged); err != nil {
				return err
			}
			if _, err := r.ledger.Append(ctx, cand.EntityID, field, hashValue(*conflict.Merged), provenance.SourceMerge, evidence); err != nil {
				return err
			}
			continue
		}
		existing, ok := current[field]
		if ok && existing.Equal(candidate) {
			continue
		}
		if ok && !existing.Empty() {
			// Differing but unclassified: classification is the only gate
			// onto the graph, so leave the stored value alone.
			continue
		}
		if err := applyField(g, cand.EntityID, field, candidate); err != nil {
			return err
		}
		if _, err := r.ledger.Append(ctx, cand.EntityID, field, hashValue(candidate), provenance.SourceExtraction, evidence); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) currentFields(g *canon.Graph, entityID string) map[string]Value {
	if scene, ok := g.FindScene(entityID); ok {
		return SceneFields(scene)
	}
	if entity, ok := g.Find(entityID); ok {
		return EntityFields(entity)
	}
	return nil
}

// createEntity seeds a graph node for a candidate the graph has never seen.
// Creation only happens through accepted extraction, so the identity fields
// come straight from the candidate.
func (r *Resolver) createEntity(ctx context.Context, g *canon.Graph, cand Candidate) error {
	if cand.EntityType == canon.TypeScene {
		scene := &canon.Scene{ID: cand.EntityID}
		if err := g.UpsertScene(scene); err != nil {
			return fmt.Errorf("creating scene %s: %w", cand.EntityID, err)
		}
		return nil
	}
	entity := &canon.Entity{
		ID:   cand.EntityID,
		Type: cand.EntityType,
		Name: cand.Fields["name"].Scalar,
	}
	if err := g.Upsert(entity); err != nil {
		return fmt.Errorf("creating entity %s: %w", cand.EntityID, err)
	}
	if _, err := r.ledger.Append(ctx, cand.EntityID, "name", hashValue(cand.Fields["name"]), provenance.SourceExtraction, cand.Fields["evidence_ids"].Set); err != nil {
		return err
	}
	return nil
}

// Resolve applies an explicit external decision to a pending conflict. This
// is the only path by which an AMBIGUOUS or CRITICAL candidate value reaches
// the graph.
func (r *Resolver) Resolve(ctx context.Context, g *canon.Graph, conflictID string, chosen Value, note string) (*Conflict, error) {
	conflict, err := r.log.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("loading conflict %s: %w", conflictID, err)
	}
	if conflict == nil {
		return nil, fmt.Errorf("conflict %s not found", conflictID)
	}
	if !conflict.Pending() {
		return nil, fmt.Errorf("conflict %s already %s", conflictID, conflict.Status)
	}

	if conflict.Field == deletionField {
		return r.resolveDeletion(ctx, g, conflict, chosen, note)
	}

	if err := applyField(g, conflict.EntityID, conflict.Field, chosen); err != nil {
		return nil, err
	}
	if _, err := r.ledger.Append(ctx, conflict.EntityID, conflict.Field, hashValue(chosen), provenance.SourceMerge, nil); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	conflict.Status = StatusResolved
	conflict.ResolvedAt = &now
	conflict.Note = note
	conflict.Merged = &chosen
	if err := r.log.UpdateConflict(ctx, *conflict); err != nil {
		return nil, fmt.Errorf("updating conflict %s: %w", conflictID, err)
	}
	return conflict, nil
}

// resolveDeletion settles a document-deletion conflict. The synthetic field
// is not a graph field: choosing the candidate (the empty path) accepts the
// deletion and removes the entity; choosing the current path keeps it.
func (r *Resolver) resolveDeletion(ctx context.Context, g *canon.Graph, conflict *Conflict, chosen Value, note string) (*Conflict, error) {
	if !chosen.Equal(conflict.Current) && !chosen.Equal(conflict.Candidate) {
		return nil, fmt.Errorf("conflict %s: deletion decision must pick the current path or the empty value", conflict.ID)
	}
	if chosen.Equal(conflict.Candidate) {
		g.Delete(conflict.EntityID)
	}
	if _, err := r.ledger.Append(ctx, conflict.EntityID, conflict.Field, hashValue(chosen), provenance.SourceMerge, nil); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	conflict.Status = StatusResolved
	conflict.ResolvedAt = &now
	conflict.Note = note
	conflict.Merged = &chosen
	if err := r.log.UpdateConflict(ctx, *conflict); err != nil {
		return nil, fmt.Errorf("updating conflict %s: %w", conflict.ID, err)
	}
	return conflict, nil
}

// Dismiss records the decision to keep the current value. The stored graph is
// untouched.
func (r *Resolver) Dismiss(ctx context.Context, conflictID, note string) (*Conflict, error) {
	conflict, err := r.log.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("loading conflict %s: %w", conflictID, err)
	}
	if conflict == nil {
		return nil, fmt.Errorf("conflict %s not found", conflictID)
	}
	if !conflict.Pending() {
		return nil, fmt.Errorf("conflict %s already %s", conflictID, conflict.Status)
	}

	now := r.now().UTC()
	conflict.Status = StatusDismissed
	conflict.ResolvedAt = &now
	conflict.Note = note
	if err := r.log.UpdateConflict(ctx, *conflict); err != nil {
		return nil, fmt.Errorf("updating conflict %s: %w", conflictID, err)
	}
	return conflict, nil
}

// ManualEdit applies a direct human change to a field and records it with
// manual-edit provenance, which later classification treats as state that must
// not be widened silently. A field held by a pending CRITICAL conflict refuses
// the edit until the conflict is decided.
func (r *Resolver) ManualEdit(ctx context.Context, g *canon.Graph, entityID, field string, v Value) error {
	pending, err := r.log.ListConflicts(ctx, LogFilter{EntityID: entityID, PendingOnly: true})
	if err != nil {
		return fmt.Errorf("listing conflicts for %s: %w", entityID, err)
	}
	for i := range pending {
		c := &pending[i]
		if c.Field == field && c.Tier == TierCritical {
			return &ErrConflictBlocked{ConflictID: c.ID, EntityID: entityID, Field: field}
		}
	}

	if err := applyField(g, entityID, field, v); err != nil {
		return err
	}
	if _, err := r.ledger.Append(ctx, entityID, field, hashValue(v), provenance.SourceManualEdit, nil); err != nil {
		return err
	}
	return nil
}

// DocumentDeleted records the disappearance of a backing document as a
// CRITICAL conflict. Entities are never deleted automatically.
func (r *Resolver) DocumentDeleted(ctx context.Context, entityID, entityType, docPath string) (Conflict, error) {
	conflict := Conflict{
		ID:         "conf-" + uuid.NewString(),
		EntityID:   entityID,
		EntityType: entityType,
		Field:      deletionField,
		Current:    ScalarValue(docPath),
		Candidate:  ScalarValue(""),
		Tier:       TierCritical,
		Status:     StatusBlocked,
		Source:     docPath,
		DetectedAt: r.now().UTC(),
		Note:       "backing document deleted",
	}
	if err := r.log.AppendConflict(ctx, conflict); err != nil {
		return Conflict{}, fmt.Errorf("recording deletion conflict for %s: %w", entityID, err)
	}
	return conflict, nil
}

func hashValue(v Value) string {
	if v.IsSet {
		return provenance.HashValue(v.Set...)
	}
	return provenance.HashValue(v.Scalar)
}
