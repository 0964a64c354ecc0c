package validate

import (
	"fmt"
	"regexp"
	"strings"

	"storykeeper/internal/canon"
)

// Timeline checks temporal and logistic continuity.
//
//   - TIME-01: a character changes location with less elapsed time than the
//     minimum plausible travel time for the pair - ERROR
//   - TIME-02: a relative time phrase has no resolvable anchor - WARNING
//   - TIME-04: simultaneous scenes put one character in two locations - ERROR

var relativeTimePhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)later\s+that\s+(?:day|night|morning|evening|afternoon)`),
	regexp.MustCompile(`(?i)earlier\s+that\s+(?:day|night|morning|evening|afternoon)`),
	regexp.MustCompile(`(?i)(?:a\s+few|several)\s+(?:hours?|minutes?|days?)\s+(?:later|earlier)`),
	regexp.MustCompile(`(?i)not\s+long\s+(?:after|before)`),
	regexp.MustCompile(`(?i)shortly\s+(?:after|before)`),
}

var anchorPattern = regexp.MustCompile(`(?i)(?:\d{1,2}(?::\d{2})?\s*(?:am|pm)|at\s+(?:noon|midnight|dawn|dusk|sunrise|sunset)|\d+\s+(?:minutes?|hours?|days?)\s+after\s+)`)

type travelStop struct {
	scene    *canon.Scene
	location string
	evidence []string
}

func Timeline(g *canon.Graph, cfg Config) []Issue {
	var issues []Issue
	issues = append(issues, checkTravel(g, cfg)...)
	issues = append(issues, checkUnanchoredPhrases(g)...)
	issues = append(issues, checkBilocation(g)...)
	return issues
}

func characterStops(g *canon.Graph) map[string][]travelStop {
	stops := make(map[string][]travelStop)
	for _, scene := range g.Scenes() {
		if scene.LocationID == "" {
			continue
		}
		for _, charID := range charactersPresent(g, scene) {
			stops[charID] = append(stops[charID], travelStop{
				scene:    scene,
				location: scene.LocationID,
				evidence: scene.EvidenceIDs,
			})
		}
	}
	return stops
}

func checkTravel(g *canon.Graph, cfg Config) []Issue {
	var issues []Issue
	stops := characterStops(g)
	for _, charID := range sortedKeys(stops) {
		route := stops[charID]
		for i := 1; i < len(route); i++ {
			prev, curr := route[i-1], route[i]
			if prev.location == curr.location {
				continue
			}
			elapsed := elapsedMinutes(curr.scene, cfg.DefaultGapMinutes, cfg.TimeSkipMinutes)
			needed := cfg.travelMinutes(g, prev.location, curr.location)
			if needed <= 0 || elapsed >= needed {
				continue
			}
			issues = append(issues, Issue{
				Category: CategoryTimeline,
				Severity: SeverityError,
				Rule:     RuleImpossibleTravel,
				Title:    "Implausible travel time",
				Description: fmt.Sprintf(
					"%s is at %s in scene %d and at %s in scene %d, but only ~%d minutes elapse where at least %d are plausible",
					entityName(g, charID), entityName(g, prev.location), prev.scene.Position,
					entityName(g, curr.location), curr.scene.Position, elapsed, needed),
				SceneID:       curr.scene.ID,
				ScenePosition: curr.scene.Position,
				EntityIDs:     []string{charID},
				EvidenceIDs:   curr.evidence,
				SuggestedFix: fmt.Sprintf("add a time skip between scenes %d and %d, or show the travel",
					prev.scene.Position, curr.scene.Position),
			})
		}
	}
	return issues
}

func checkUnanchoredPhrases(g *canon.Graph) []Issue {
	var issues []Issue
	for _, scene := range g.Scenes() {
		for _, pattern := range relativeTimePhrases {
			for _, m := range pattern.FindAllStringIndex(scene.Content, -1) {
				phrase := scene.Content[m[0]:m[1]]
				lo := max(0, m[0]-200)
				if anchorPattern.MatchString(scene.Content[lo:m[0]]) {
					continue
				}
				if scene.TimeOfDay != "" {
					continue
				}
				issues = append(issues, Issue{
					Category: CategoryTimeline,
					Severity: SeverityWarn,
					Rule:     RuleUnanchoredTime,
					Title:    "Relative time phrase without anchor",
					Description: fmt.Sprintf(
						"phrase %q in scene %d has no resolvable time anchor", phrase, scene.Position),
					SceneID:       scene.ID,
					ScenePosition: scene.Position,
					EvidenceIDs:   scene.EvidenceIDs,
					SuggestedFix:  fmt.Sprintf("give %q an explicit reference point", phrase),
				})
			}
		}
	}
	return issues
}

// checkBilocation groups runs of scenes chained by simultaneous continuity
// marks and flags characters appearing at two locations inside one run.
func checkBilocation(g *canon.Graph) []Issue {
	var issues []Issue
	scenes := g.Scenes()

	var group []*canon.Scene
	flush := func() {
		if len(group) > 1 {
			issues = append(issues, bilocationIn(g, group)...)
		}
		group = nil
	}
	for _, scene := range scenes {
		if scene.Continuity.Simultaneous() && len(group) > 0 {
			group = append(group, scene)
			continue
		}
		flush()
		group = []*canon.Scene{scene}
	}
	flush()
	return issues
}

func bilocationIn(g *canon.Graph, group []*canon.Scene) []Issue {
	var issues []Issue
	type sighting struct {
		scene    *canon.Scene
		location string
	}
	seen := make(map[string]sighting)
	for _, scene := range group {
		if scene.LocationID == "" {
			continue
		}
		for _, charID := range charactersPresent(g, scene) {
			first, ok := seen[charID]
			if !ok {
				seen[charID] = sighting{scene: scene, location: scene.LocationID}
				continue
			}
			if first.location == scene.LocationID {
				continue
			}
			issues = append(issues, Issue{
				Category: CategoryTimeline,
				Severity: SeverityError,
				Rule:     RuleBilocation,
				Title:    "Character in two places at once",
				Description: fmt.Sprintf(
					"%s is at %s in scene %d and at %s in scene %d, but the scenes are marked simultaneous",
					entityName(g, charID), entityName(g, first.location), first.scene.Position,
					entityName(g, scene.LocationID), scene.Position),
				SceneID:       scene.ID,
				ScenePosition: scene.Position,
				EntityIDs:     []string{charID},
				EvidenceIDs:   scene.EvidenceIDs,
				SuggestedFix:  fmt.Sprintf("either move %s out of one scene or drop the simultaneity marker", entityName(g, charID)),
			})
		}
	}
	return issues
}

// travelMinutes is the minimum plausible travel time between two locations:
// the configured pair lookup first, then a word-overlap heuristic (shared
// name words mean the same general area), then the configured default for
// distinct unrelated locations.
func (c Config) travelMinutes(g *canon.Graph, fromID, toID string) int {
	from := strings.ToLower(entityName(g, fromID))
	to := strings.ToLower(entityName(g, toID))
	if m, ok := c.TravelMinutes[TravelKey(from, to)]; ok {
		return m
	}
	wa := significantWords(from)
	wb := significantWords(to)
	for w := range wa {
		if _, ok := wb[w]; ok {
			return c.NearbyMinutes
		}
	}
	return c.DefaultTravelMinutes
}

// TravelKey builds the order-independent lookup key for a location pair.
func TravelKey(a, b string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
