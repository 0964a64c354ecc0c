package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"storykeeper/internal/canon"
	"storykeeper/internal/merge"
	"storykeeper/internal/parser"
)

// extractCandidates turns one parsed document into merge candidates: the
// entities it declares, implicit entities for scene names the graph has never
// seen, and the scene header itself. Names resolve against the document's own
// declarations first, then the graph's alias index, then fall back to a
// deterministic slug id so the same name always lands on the same entity.
func extractCandidates(g *canon.Graph, doc *parser.Document) ([]merge.Candidate, error) {
	local := localNames(doc)

	// Evidence accumulates across documents: a second mention widens the
	// collection instead of replacing it.
	evidenceFor := func(entityID string) merge.Value {
		if e, ok := g.Find(entityID); ok {
			return merge.SetValue(append([]string{doc.SourceFile}, e.EvidenceIDs...))
		}
		if s, ok := g.FindScene(entityID); ok {
			return merge.SetValue(append([]string{doc.SourceFile}, s.EvidenceIDs...))
		}
		return merge.SetValue([]string{doc.SourceFile})
	}

	var out []merge.Candidate
	for _, decl := range doc.Entities {
		if !canon.EntityType(decl.Type).Valid() || canon.EntityType(decl.Type) == canon.TypeScene {
			return nil, fmt.Errorf("%s: entity %s has unsupported type %q", doc.SourceFile, decl.ID, decl.Type)
		}
		fields := map[string]merge.Value{
			"name":         merge.ScalarValue(decl.Name),
			"type":         merge.ScalarValue(decl.Type),
			"evidence_ids": evidenceFor(decl.ID),
		}
		if len(decl.Aliases) > 0 {
			fields["aliases"] = merge.SetValue(decl.Aliases)
		}
		for k, v := range decl.Attributes {
			fields["attributes."+k] = merge.ScalarValue(v)
		}
		out = append(out, merge.Candidate{
			EntityID:   decl.ID,
			EntityType: canon.EntityType(decl.Type),
			SourceDoc:  doc.SourceFile,
			Fields:     fields,
		})
	}

	if doc.Scene == nil {
		return out, nil
	}

	implicit := func(typ canon.EntityType, name string) string {
		id, known := resolveName(g, local, typ, name)
		if known {
			return id
		}
		if _, exists := g.Find(id); !exists {
			out = append(out, merge.Candidate{
				EntityID:   id,
				EntityType: typ,
				SourceDoc:  doc.SourceFile,
				Fields: map[string]merge.Value{
					"name":         merge.ScalarValue(strings.TrimSpace(name)),
					"type":         merge.ScalarValue(string(typ)),
					"evidence_ids": merge.SetValue([]string{doc.SourceFile}),
				},
			})
			local[normalizeName(name)] = id
		}
		return id
	}

	sc := doc.Scene
	fields := map[string]merge.Value{
		"position":     merge.ScalarValue(strconv.Itoa(sc.Position)),
		"evidence_ids": evidenceFor(sc.ID),
	}
	if strings.TrimSpace(sc.Location) != "" {
		fields["location_id"] = merge.ScalarValue(implicit(canon.TypeLocation, sc.Location))
	}
	if sc.TimeOfDay != "" {
		fields["time_of_day"] = merge.ScalarValue(sc.TimeOfDay)
	}
	if sc.Continuity != "" {
		fields["continuity"] = merge.ScalarValue(sc.Continuity)
	}
	if len(sc.Characters) > 0 {
		ids := make([]string, 0, len(sc.Characters))
		for _, name := range sc.Characters {
			ids = append(ids, implicit(canon.TypeCharacter, name))
		}
		fields["characters"] = merge.SetValue(ids)
	}
	out = append(out, merge.Candidate{
		EntityID:   sc.ID,
		EntityType: canon.TypeScene,
		SourceDoc:  doc.SourceFile,
		Fields:     fields,
	})
	return out, nil
}

// localNames indexes the document's own entity declarations so a scene header
// can reference them before they exist in the graph.
func localNames(doc *parser.Document) map[string]string {
	local := make(map[string]string)
	for _, decl := range doc.Entities {
		local[normalizeName(decl.Name)] = decl.ID
		for _, a := range decl.Aliases {
			local[normalizeName(a)] = decl.ID
		}
	}
	return local
}

func resolveName(g *canon.Graph, local map[string]string, typ canon.EntityType, name string) (string, bool) {
	if id, ok := local[normalizeName(name)]; ok {
		return id, true
	}
	if id, _, ok := g.ResolveAlias(name); ok {
		return id, true
	}
	return slugID(typ, name), false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// slugID derives a stable entity id from a free-text name.
func slugID(typ canon.EntityType, name string) string {
	prefix := map[canon.EntityType]string{
		canon.TypeCharacter: "char",
		canon.TypeLocation:  "loc",
		canon.TypeProp:      "prop",
	}[typ]

	var b strings.Builder
	lastDash := true
	for _, r := range normalizeName(name) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return prefix + "-" + strings.TrimSuffix(b.String(), "-")
}
