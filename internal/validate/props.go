package validate

import (
	"fmt"
	"regexp"
	"strings"

	"storykeeper/internal/canon"
)

// Props checks prop continuity across the scene order.
//
//   - PROP-01: first appearance uses a verb implying prior possession and no
//     earlier scene introduced the prop - WARNING
//   - PROP-02: holder changes between consecutive appearances without a
//     transfer action in between - ERROR
//   - PROP-03: a prop damaged earlier appears intact with no repair - WARNING

type propAction string

const (
	actionIntroduce propAction = "introduce" // picking up, finding, receiving
	actionCarry     propAction = "carry"     // holding, drawing: implies prior possession
	actionTransfer  propAction = "transfer"  // handing to someone
	actionDamage    propAction = "damage"
	actionRepair    propAction = "repair"
)

var propPatterns = []struct {
	action  propAction
	pattern *regexp.Regexp
}{
	{actionIntroduce, regexp.MustCompile(`(?i)(?:picks? up|takes?|grabs?|finds?|receives?|retrieves?|buys?|is handed)\s+(?:a|an|the|her|his|their)\s+([^.,\n]+)`)},
	{actionCarry, regexp.MustCompile(`(?i)(?:holds?|holding|carries?|carrying|pulls?(?:\s+out)?|draws?|brandishes?|wields?|clutch(?:es)?)\s+(?:a|an|the|her|his|their)\s+([^.,\n]+)`)},
	{actionTransfer, regexp.MustCompile(`(?i)(?:gives?|hands?|passes?|offers?|returns?|delivers?)\s+(?:a|an|the|her|his|their)?\s*([^.,\n]+?)\s+to\s+`)},
	{actionDamage, regexp.MustCompile(`(?i)(?:drops?|breaks?|shatters?|smashes?|destroys?|cracks?|tears?|burns?)\s+(?:a|an|the|her|his|their)\s+([^.,\n]+)`)},
	{actionRepair, regexp.MustCompile(`(?i)(?:fixes?|repairs?|mends?|restores?|patches?)\s+(?:a|an|the|her|his|their)\s+([^.,\n]+)`)},
}

type propAppearance struct {
	scene    *canon.Scene
	action   propAction
	holder   string // character id, "" when attribution failed
	raw      string
	evidence []string
}

func Props(g *canon.Graph, cfg Config) []Issue {
	var issues []Issue
	timeline := propTimeline(g)

	for _, prop := range sortedKeys(timeline) {
		appearances := timeline[prop]
		issues = append(issues, checkIntroduction(prop, appearances)...)
		issues = append(issues, checkTransfers(g, prop, appearances)...)
		issues = append(issues, checkDamage(prop, appearances)...)
	}
	return issues
}

// propTimeline maps normalized prop names to their appearances in scene
// order. Named prop entities resolve through the alias index so "the
// revolver" and "gun" collapse when the canon says they are the same prop.
func propTimeline(g *canon.Graph) map[string][]propAppearance {
	timeline := make(map[string][]propAppearance)
	for _, scene := range g.Scenes() {
		for _, entry := range propPatterns {
			for _, m := range entry.pattern.FindAllStringSubmatchIndex(scene.Content, -1) {
				raw := strings.TrimSpace(scene.Content[m[2]:m[3]])
				name := normalizeProp(g, raw)
				if name == "" {
					continue
				}
				timeline[name] = append(timeline[name], propAppearance{
					scene:    scene,
					action:   entry.action,
					holder:   attributeSpeaker(g, scene.Content, m[0]),
					raw:      raw,
					evidence: scene.EvidenceIDs,
				})
			}
		}
	}
	return timeline
}

// propStopwords cut a captured phrase down to the object itself: "gun from
// the desk drawer" keys as "gun".
var propStopwords = map[string]struct{}{
	"from": {}, "and": {}, "at": {}, "on": {}, "in": {}, "to": {},
	"into": {}, "over": {}, "with": {}, "again": {}, "off": {}, "out": {},
	"toward": {}, "towards": {}, "under": {}, "behind": {},
}

func normalizeProp(g *canon.Graph, raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimRight(name, ".,!?;:")
	for _, article := range []string{"a ", "an ", "the ", "her ", "his ", "their "} {
		name = strings.TrimPrefix(name, article)
	}
	words := strings.Fields(name)
	if len(words) == 0 {
		return ""
	}

	// Longest prefix that resolves to a known prop entity wins.
	limit := min(len(words), 4)
	for n := limit; n >= 1; n-- {
		candidate := strings.Join(words[:n], " ")
		if id, _, ok := g.ResolveAlias(candidate); ok {
			if e, found := g.Find(id); found && e.Type == canon.TypeProp {
				return id
			}
		}
	}

	for i, w := range words {
		if _, stop := propStopwords[w]; stop {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

func checkIntroduction(prop string, appearances []propAppearance) []Issue {
	if len(appearances) == 0 {
		return nil
	}
	first := appearances[0]
	if first.action == actionIntroduce || first.action == actionTransfer {
		return nil
	}
	return []Issue{{
		Category: CategoryProps,
		Severity: SeverityWarn,
		Rule:     RulePropUnintroduced,
		Title:    "Prop appears without introduction",
		Description: fmt.Sprintf(
			"prop %q first appears in scene %d already in someone's possession, with no earlier introduction",
			first.raw, first.scene.Position),
		SceneID:       first.scene.ID,
		ScenePosition: first.scene.Position,
		EvidenceIDs:   first.evidence,
		SuggestedFix:  fmt.Sprintf("introduce %q on or before scene %d", first.raw, first.scene.Position),
	}}
}

func checkTransfers(g *canon.Graph, prop string, appearances []propAppearance) []Issue {
	var issues []Issue
	lastHolder := ""
	lastScene := 0
	transferSeen := false
	for _, ap := range appearances {
		if ap.action == actionTransfer {
			transferSeen = true
		}
		if ap.holder == "" {
			continue
		}
		if lastHolder != "" && ap.holder != lastHolder && !transferSeen {
			issues = append(issues, Issue{
				Category: CategoryProps,
				Severity: SeverityError,
				Rule:     RulePropTransfer,
				Title:    "Prop changes hands off the page",
				Description: fmt.Sprintf(
					"prop %q moves from %s (scene %d) to %s (scene %d) with no transfer shown",
					ap.raw, entityName(g, lastHolder), lastScene, entityName(g, ap.holder), ap.scene.Position),
				SceneID:       ap.scene.ID,
				ScenePosition: ap.scene.Position,
				EntityIDs:     []string{lastHolder, ap.holder},
				EvidenceIDs:   ap.evidence,
				SuggestedFix: fmt.Sprintf("show %s giving %q to %s, or explain the transfer",
					entityName(g, lastHolder), ap.raw, entityName(g, ap.holder)),
			})
		}
		lastHolder = ap.holder
		lastScene = ap.scene.Position
		transferSeen = ap.action == actionTransfer
	}
	return issues
}

func checkDamage(prop string, appearances []propAppearance) []Issue {
	var damaged *propAppearance
	for i := range appearances {
		ap := &appearances[i]
		switch ap.action {
		case actionDamage:
			damaged = ap
		case actionRepair:
			damaged = nil
		case actionCarry, actionIntroduce:
			if damaged != nil && ap.scene.Position > damaged.scene.Position {
				return []Issue{{
					Category: CategoryProps,
					Severity: SeverityWarn,
					Rule:     RulePropDamage,
					Title:    "Damaged prop appears intact",
					Description: fmt.Sprintf(
						"prop %q is damaged in scene %d but appears intact in scene %d with no repair recorded",
						ap.raw, damaged.scene.Position, ap.scene.Position),
					SceneID:       ap.scene.ID,
					ScenePosition: ap.scene.Position,
					EvidenceIDs:   ap.evidence,
					SuggestedFix:  fmt.Sprintf("show %q being repaired, or keep its damage state", ap.raw),
				}}
			}
		}
	}
	return nil
}
