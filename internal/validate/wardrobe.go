package validate

import (
	"fmt"
	"regexp"
	"strings"

	"storykeeper/internal/canon"
)

// Wardrobe checks costume continuity per character across the scene order.
//
//   - WARD-01: costume changes between adjacent appearances with no
//     intervening cause (no time skip, no on-page change) - WARNING
//   - WARD-02: costume differs across a continuous timespan - ERROR
//   - WARD-03: a configured signature item is absent from a described
//     wardrobe - INFO

var wardrobePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)wearing\s+(?:a|an|the|her|his|their)?\s*([^.,\n]+)`),
	regexp.MustCompile(`(?i)dressed\s+in\s+(?:a|an|the)?\s*([^.,\n]+)`),
	regexp.MustCompile(`(?i)(?:puts? on|donning|dons)\s+(?:a|an|the|her|his|their)\s+([^.,\n]+)`),
	regexp.MustCompile(`(?i)in\s+(?:a|the)\s+(\w+\s+(?:coat|jacket|dress|suit|tuxedo|gown|uniform|robe|cloak))`),
}

var costumeChangePattern = regexp.MustCompile(`(?i)(?:changes?\s+(?:into|clothes)|puts? on|takes? off|strips?\s+off|undress)`)

type wardrobeAppearance struct {
	scene    *canon.Scene
	costume  string
	marker   markerKind
	simult   bool
	evidence []string
}

func Wardrobe(g *canon.Graph, cfg Config) []Issue {
	var issues []Issue
	timeline := wardrobeTimeline(g)

	for _, charID := range sortedKeys(timeline) {
		appearances := timeline[charID]
		name := entityName(g, charID)

		for i := 1; i < len(appearances); i++ {
			prev, curr := appearances[i-1], appearances[i]
			if prev.costume == curr.costume {
				continue
			}
			if curr.simult {
				issues = append(issues, Issue{
					Category: CategoryWardrobe,
					Severity: SeverityError,
					Rule:     RuleWardrobeConflict,
					Title:    "Wardrobe conflict in continuous time",
					Description: fmt.Sprintf(
						"%s wears %q in scene %d but %q in scene %d, and the scenes share a continuous timespan",
						name, prev.costume, prev.scene.Position, curr.costume, curr.scene.Position),
					SceneID:       curr.scene.ID,
					ScenePosition: curr.scene.Position,
					EntityIDs:     []string{charID},
					EvidenceIDs:   curr.evidence,
					SuggestedFix:  fmt.Sprintf("change the continuity marker between scenes %d and %d, or keep %s's wardrobe consistent", prev.scene.Position, curr.scene.Position, name),
				})
				continue
			}
			if curr.marker == markerTimeSkip {
				continue
			}
			if costumeChangePattern.MatchString(curr.scene.Content) || costumeChangePattern.MatchString(prev.scene.Content) {
				continue
			}
			issues = append(issues, Issue{
				Category: CategoryWardrobe,
				Severity: SeverityWarn,
				Rule:     RuleWardrobeChange,
				Title:    "Unexplained wardrobe change",
				Description: fmt.Sprintf(
					"%s's wardrobe changes from %q to %q between scenes %d and %d with no time skip or on-page change",
					name, prev.costume, curr.costume, prev.scene.Position, curr.scene.Position),
				SceneID:       curr.scene.ID,
				ScenePosition: curr.scene.Position,
				EntityIDs:     []string{charID},
				EvidenceIDs:   curr.evidence,
				SuggestedFix:  fmt.Sprintf("add a time skip between scenes %d and %d, or show %s changing", prev.scene.Position, curr.scene.Position, name),
			})
		}

		for _, item := range cfg.SignatureItems[charID] {
			for _, ap := range appearances {
				if strings.Contains(strings.ToLower(ap.costume), strings.ToLower(item)) {
					continue
				}
				issues = append(issues, Issue{
					Category: CategoryWardrobe,
					Severity: SeverityInfo,
					Rule:     RuleSignatureMissing,
					Title:    "Signature item not mentioned",
					Description: fmt.Sprintf(
						"%s's signature item %q is absent from the described wardrobe in scene %d",
						name, item, ap.scene.Position),
					SceneID:       ap.scene.ID,
					ScenePosition: ap.scene.Position,
					EntityIDs:     []string{charID},
					EvidenceIDs:   ap.evidence,
					SuggestedFix:  fmt.Sprintf("mention %s's %s in scene %d for continuity", name, item, ap.scene.Position),
				})
			}
		}
	}
	return issues
}

// wardrobeTimeline maps each character id to its costume states in scene
// order. Only scenes with a detectable costume mention near the character's
// name contribute.
func wardrobeTimeline(g *canon.Graph) map[string][]wardrobeAppearance {
	timeline := make(map[string][]wardrobeAppearance)
	for _, scene := range g.Scenes() {
		marker := sceneMarker(scene)
		for _, charID := range charactersPresent(g, scene) {
			costume := costumeState(g, scene.Content, charID)
			if costume == "" {
				continue
			}
			timeline[charID] = append(timeline[charID], wardrobeAppearance{
				scene:    scene,
				costume:  costume,
				marker:   marker,
				simult:   scene.Continuity.Simultaneous() || marker == markerContinuous,
				evidence: scene.EvidenceIDs,
			})
		}
	}
	return timeline
}

func costumeState(g *canon.Graph, content, charID string) string {
	names := namesOf(g, charID)
	for _, pattern := range wardrobePatterns {
		for _, m := range pattern.FindAllStringSubmatchIndex(content, -1) {
			if !mentionsNear(content, m[0], m[1], 100, names) {
				continue
			}
			return strings.ToLower(strings.TrimSpace(content[m[2]:m[3]]))
		}
	}
	return ""
}
