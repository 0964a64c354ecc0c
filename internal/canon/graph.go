package canon

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the canonical story model for one build. It is treated as an
// immutable snapshot outside of a build transaction: callers that need to
// mutate must Clone first and swap the result in atomically.
type Graph struct {
	entities map[string]*Entity
	scenes   map[string]*Scene
	aliases  map[string]string // normalized alias -> entity id
}

func NewGraph() *Graph {
	return &Graph{
		entities: make(map[string]*Entity),
		scenes:   make(map[string]*Scene),
		aliases:  make(map[string]string),
	}
}

func (g *Graph) Find(id string) (*Entity, bool) {
	e, ok := g.entities[id]
	return e, ok
}

func (g *Graph) FindScene(id string) (*Scene, bool) {
	s, ok := g.scenes[id]
	return s, ok
}

// ResolveAlias maps free text to an entity id. Exact name or alias matches
// resolve with confidence 1.0, case-insensitive matches with 0.95.
func (g *Graph) ResolveAlias(text string) (string, float64, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", 0, false
	}
	for id, e := range g.entities {
		if e.Name == trimmed {
			return id, 1.0, true
		}
		for _, a := range e.Aliases {
			if a == trimmed {
				return id, 1.0, true
			}
		}
	}
	if id, ok := g.aliases[normalizeAlias(trimmed)]; ok {
		return id, 0.95, true
	}
	return "", 0, false
}

// Upsert adds or replaces an entity. It fails with IdentityConflictError if
// the id exists with a different type, and with AliasConflictError if one of
// the entity's names already resolves to a different entity.
func (g *Graph) Upsert(e *Entity) error {
	if e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("invalid entity type: %q", e.Type)
	}
	if existing, ok := g.entities[e.ID]; ok && existing.Type != e.Type {
		return &IdentityConflictError{ID: e.ID, ExistingType: existing.Type, NewType: e.Type}
	}
	for _, name := range append([]string{e.Name}, e.Aliases...) {
		key := normalizeAlias(name)
		if key == "" {
			continue
		}
		if owner, ok := g.aliases[key]; ok && owner != e.ID {
			return &AliasConflictError{Alias: name, OwnerID: owner, ClaimantID: e.ID}
		}
	}

	entity := e.clone()
	entity.Normalize()
	if old, ok := g.entities[e.ID]; ok {
		g.dropAliases(old)
	}
	g.entities[entity.ID] = entity
	g.indexAliases(entity)
	return nil
}

func (g *Graph) UpsertScene(s *Scene) error {
	if s.ID == "" {
		return fmt.Errorf("scene id is required")
	}
	scene := s.clone()
	scene.Normalize()
	g.scenes[scene.ID] = scene
	return nil
}

// Delete removes an entity or scene and releases its alias claims. Unknown
// ids are a no-op.
func (g *Graph) Delete(id string) {
	if e, ok := g.entities[id]; ok {
		g.dropAliases(e)
		delete(g.entities, id)
	}
	delete(g.scenes, id)
}

func (g *Graph) dropAliases(e *Entity) {
	for _, name := range append([]string{e.Name}, e.Aliases...) {
		key := normalizeAlias(name)
		if g.aliases[key] == e.ID {
			delete(g.aliases, key)
		}
	}
}

func (g *Graph) indexAliases(e *Entity) {
	for _, name := range append([]string{e.Name}, e.Aliases...) {
		if key := normalizeAlias(name); key != "" {
			g.aliases[key] = e.ID
		}
	}
}

// Entities returns all entities sorted by id.
func (g *Graph) Entities() []*Entity {
	out := make([]*Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EntitiesByType returns entities of one type sorted by id.
func (g *Graph) EntitiesByType(t EntityType) []*Entity {
	var out []*Entity
	for _, e := range g.entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Scenes returns all scenes ordered by position, ties broken by id.
func (g *Graph) Scenes() []*Scene {
	out := make([]*Scene, 0, len(g.scenes))
	for _, s := range g.scenes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Clone returns a deep copy for use as a build transaction scratch graph.
func (g *Graph) Clone() *Graph {
	out := NewGraph()
	for id, e := range g.entities {
		out.entities[id] = e.clone()
	}
	for id, s := range g.scenes {
		out.scenes[id] = s.clone()
	}
	for k, v := range g.aliases {
		out.aliases[k] = v
	}
	return out
}

// Check verifies the graph's structural invariants: alias uniqueness across
// entities, valid types, and scene references that resolve. A failure here is
// fatal to the build.
func (g *Graph) Check() error {
	seen := make(map[string]string)
	for _, e := range g.Entities() {
		if !e.Type.Valid() {
			return fmt.Errorf("entity %s: invalid type %q", e.ID, e.Type)
		}
		for _, name := range append([]string{e.Name}, e.Aliases...) {
			key := normalizeAlias(name)
			if key == "" {
				continue
			}
			if owner, ok := seen[key]; ok && owner != e.ID {
				return &AliasConflictError{Alias: name, OwnerID: owner, ClaimantID: e.ID}
			}
			seen[key] = e.ID
		}
	}
	for _, s := range g.Scenes() {
		if s.LocationID != "" {
			loc, ok := g.entities[s.LocationID]
			if !ok {
				return fmt.Errorf("scene %s: unknown location %s", s.ID, s.LocationID)
			}
			if loc.Type != TypeLocation {
				return fmt.Errorf("scene %s: location %s is a %s", s.ID, s.LocationID, loc.Type)
			}
		}
		for _, id := range s.Characters {
			ch, ok := g.entities[id]
			if !ok {
				return fmt.Errorf("scene %s: unknown character %s", s.ID, id)
			}
			if ch.Type != TypeCharacter {
				return fmt.Errorf("scene %s: character %s is a %s", s.ID, id, ch.Type)
			}
		}
	}
	return nil
}
