package merge

import (
	"fmt"
	"strconv"
	"strings"

	"storykeeper/internal/canon"
)

const attrPrefix = "attributes."

// deletionField is the synthetic field carried by document-deletion
// conflicts. It never maps onto a graph field.
const deletionField = "document"

// identityFields are the fields whose change always classifies CRITICAL.
var identityFields = map[string]bool{
	"id":   true,
	"name": true,
	"type": true,
}

// EntityFields flattens an entity into comparable field values. Attribute
// keys are namespaced as "attributes.<key>".
func EntityFields(e *canon.Entity) map[string]Value {
	fields := map[string]Value{
		"name":         ScalarValue(e.Name),
		"type":         ScalarValue(string(e.Type)),
		"aliases":      SetValue(e.Aliases),
		"evidence_ids": SetValue(e.EvidenceIDs),
	}
	for k, v := range e.Attributes {
		fields[attrPrefix+k] = ScalarValue(v)
	}
	return fields
}

// SceneFields flattens a scene. Characters keep their order in the scene
// itself but compare as an unordered collection, matching how re-extraction
// reports presence.
func SceneFields(s *canon.Scene) map[string]Value {
	return map[string]Value{
		"position":     ScalarValue(strconv.Itoa(s.Position)),
		"location_id":  ScalarValue(s.LocationID),
		"time_of_day":  ScalarValue(s.TimeOfDay),
		"continuity":   ScalarValue(string(s.Continuity)),
		"characters":   SetValue(s.Characters),
		"content":      ScalarValue(s.Content),
		"evidence_ids": SetValue(s.EvidenceIDs),
	}
}

// applyField writes one accepted value onto the scratch graph.
func applyField(g *canon.Graph, entityID, field string, v Value) error {
	if scene, ok := g.FindScene(entityID); ok {
		return applySceneField(g, scene, field, v)
	}
	entity, ok := g.Find(entityID)
	if !ok {
		return fmt.Errorf("apply %s.%s: entity not found", entityID, field)
	}
	updated := *entity
	updated.Aliases = append([]string(nil), entity.Aliases...)
	updated.EvidenceIDs = append([]string(nil), entity.EvidenceIDs...)
	updated.Attributes = make(map[string]string, len(entity.Attributes)+1)
	for k, val := range entity.Attributes {
		updated.Attributes[k] = val
	}

	switch {
	case field == "name":
		updated.Name = v.Scalar
	case field == "type":
		updated.Type = canon.EntityType(v.Scalar)
	case field == "aliases":
		updated.Aliases = append([]string(nil), v.Set...)
	case field == "evidence_ids":
		updated.EvidenceIDs = append([]string(nil), v.Set...)
	case strings.HasPrefix(field, attrPrefix):
		updated.Attributes[strings.TrimPrefix(field, attrPrefix)] = v.Scalar
	default:
		return fmt.Errorf("apply %s.%s: unknown field", entityID, field)
	}
	return g.Upsert(&updated)
}

func applySceneField(g *canon.Graph, scene *canon.Scene, field string, v Value) error {
	updated := *scene
	updated.Characters = append([]string(nil), scene.Characters...)
	updated.EvidenceIDs = append([]string(nil), scene.EvidenceIDs...)

	switch field {
	case "position":
		n, err := strconv.Atoi(v.Scalar)
		if err != nil {
			return fmt.Errorf("apply %s.position: %w", scene.ID, err)
		}
		updated.Position = n
	case "location_id":
		updated.LocationID = v.Scalar
	case "time_of_day":
		updated.TimeOfDay = v.Scalar
	case "continuity":
		updated.Continuity = canon.ContinuityMark(v.Scalar)
	case "characters":
		updated.Characters = append([]string(nil), v.Set...)
	case "content":
		updated.Content = v.Scalar
	case "evidence_ids":
		updated.EvidenceIDs = append([]string(nil), v.Set...)
	default:
		return fmt.Errorf("apply %s.%s: unknown scene field", scene.ID, field)
	}
	return g.UpsertScene(&updated)
}
