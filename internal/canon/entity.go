package canon

import (
	"fmt"
	"sort"
	"strings"
)

type EntityType string

const (
	TypeCharacter EntityType = "character"
	TypeLocation  EntityType = "location"
	TypeProp      EntityType = "prop"
	TypeScene     EntityType = "scene"
)

func (t EntityType) Valid() bool {
	switch t {
	case TypeCharacter, TypeLocation, TypeProp, TypeScene:
		return true
	}
	return false
}

// Entity is one node of the canon: a character, location, prop or scene
// header. The ID is stable once assigned; Name and Type are identity fields
// and only change through an explicit resolution.
type Entity struct {
	ID          string            `json:"id"`
	Type        EntityType        `json:"type"`
	Name        string            `json:"name"`
	Aliases     []string          `json:"aliases,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	EvidenceIDs []string          `json:"evidence_ids,omitempty"`
}

// Normalize sorts the entity's collections in place so that two entities with
// the same members compare and serialize identically.
func (e *Entity) Normalize() {
	sort.Strings(e.Aliases)
	sort.Strings(e.EvidenceIDs)
}

func (e *Entity) clone() *Entity {
	out := &Entity{
		ID:          e.ID,
		Type:        e.Type,
		Name:        e.Name,
		Aliases:     append([]string(nil), e.Aliases...),
		EvidenceIDs: append([]string(nil), e.EvidenceIDs...),
	}
	if e.Attributes != nil {
		out.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// IdentityConflictError reports an upsert whose id already exists with a
// different entity type. It is never resolved automatically.
type IdentityConflictError struct {
	ID           string
	ExistingType EntityType
	NewType      EntityType
}

func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("identity conflict: entity %s is %s, not %s", e.ID, e.ExistingType, e.NewType)
}

// AliasConflictError reports an alias string that already resolves to a
// different entity. Alias uniqueness is a graph-wide invariant.
type AliasConflictError struct {
	Alias      string
	OwnerID    string
	ClaimantID string
}

func (e *AliasConflictError) Error() string {
	return fmt.Sprintf("alias conflict: %q belongs to %s, claimed by %s", e.Alias, e.OwnerID, e.ClaimantID)
}

func normalizeAlias(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
