package validate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"storykeeper/internal/canon"
)

// Shared content scanning used by the validators. All of it is plain
// pattern matching over scene text.

var timeSkipMarkers = []string{
	"LATER",
	"THE NEXT DAY",
	"THE FOLLOWING DAY",
	"THE NEXT MORNING",
	"THAT NIGHT",
	"HOURS LATER",
	"DAYS LATER",
	"A WEEK LATER",
	"MONTHS LATER",
	"YEARS LATER",
}

var continuousMarkers = []string{
	"CONTINUOUS",
	"MOMENTS LATER",
	"SAME TIME",
	"AT THE SAME TIME",
}

// markerKind classifies the strongest time marker visible on a scene, looking
// at the continuity mark first and the content as fallback.
type markerKind int

const (
	markerNone markerKind = iota
	markerContinuous
	markerTimeSkip
)

func sceneMarker(s *canon.Scene) markerKind {
	if s.Continuity.Simultaneous() {
		return markerContinuous
	}
	if s.Continuity != canon.ContinuityNone {
		return markerTimeSkip
	}
	upper := strings.ToUpper(s.Content)
	for _, m := range continuousMarkers {
		if strings.Contains(upper, m) {
			return markerContinuous
		}
	}
	for _, m := range timeSkipMarkers {
		if strings.Contains(upper, m) {
			return markerTimeSkip
		}
	}
	return markerNone
}

var elapsedPattern = regexp.MustCompile(`(?i)^\s*(\d+)\s*(minute|hour|day|week|month|year)s?\s+later\s*$`)

// elapsedMinutes derives the minimum elapsed story time implied by a scene's
// continuity marker. Unknown skips count as generous; absence of any marker
// counts as negligible.
func elapsedMinutes(s *canon.Scene, defaultGap, skipGap int) int {
	switch sceneMarker(s) {
	case markerContinuous:
		return 0
	case markerNone:
		return defaultGap
	}
	if m := elapsedPattern.FindStringSubmatch(string(s.Continuity)); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch strings.ToLower(m[2]) {
		case "minute":
			return n
		case "hour":
			return n * 60
		case "day":
			return n * 60 * 24
		case "week":
			return n * 60 * 24 * 7
		case "month":
			return n * 60 * 24 * 30
		case "year":
			return n * 60 * 24 * 365
		}
	}
	return skipGap
}

var dialogueHeader = regexp.MustCompile(`(?m)^([A-Z][A-Z .'-]+)$`)

// charactersPresent returns the character ids for a scene: the scene's own
// presence list when recorded, otherwise dialogue headers resolved through
// the alias index.
func charactersPresent(g *canon.Graph, s *canon.Scene) []string {
	if len(s.Characters) > 0 {
		return s.Characters
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, m := range dialogueHeader.FindAllStringSubmatch(s.Content, -1) {
		id, _, ok := g.ResolveAlias(strings.TrimSpace(m[1]))
		if !ok {
			continue
		}
		if e, found := g.Find(id); !found || e.Type != canon.TypeCharacter {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// entityName is a display helper: falls back to the id when the entity is
// missing from the graph.
func entityName(g *canon.Graph, id string) string {
	if e, ok := g.Find(id); ok {
		return e.Name
	}
	return id
}

// namesOf returns every name a character answers to, for proximity checks.
func namesOf(g *canon.Graph, id string) []string {
	e, ok := g.Find(id)
	if !ok {
		return nil
	}
	return append([]string{e.Name}, e.Aliases...)
}

// mentionsNear reports whether any of names appears within window bytes
// around [start, end) in content.
func mentionsNear(content string, start, end, window int, names []string) bool {
	lo := max(0, start-window)
	hi := min(len(content), end+window)
	context := strings.ToLower(content[lo:hi])
	for _, name := range names {
		if name != "" && strings.Contains(context, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// attributeSpeaker walks backwards from an offset looking for the nearest
// dialogue header or leading capitalized name and resolves it to a character.
// Returns "" when attribution is uncertain; validators skip rather than
// guess.
var leadingName = regexp.MustCompile(`([A-Z][a-zA-Z]+)(?:\s+[a-z]+)*\s*$`)

func attributeSpeaker(g *canon.Graph, content string, offset int) string {
	lo := max(0, offset-200)
	context := content[lo:offset]
	if m := dialogueHeader.FindAllStringSubmatch(context, -1); len(m) > 0 {
		name := strings.TrimSpace(m[len(m)-1][1])
		if id, _, ok := g.ResolveAlias(name); ok {
			return id
		}
	}
	if m := leadingName.FindStringSubmatch(context); m != nil {
		if id, _, ok := g.ResolveAlias(m[1]); ok {
			return id
		}
	}
	return ""
}

var fillerWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "that": {}, "this": {}, "is": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "to": {}, "of": {}, "and": {}, "in": {},
	"it": {}, "his": {}, "her": {}, "their": {}, "about": {},
}

func significantWords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) < 3 {
			continue
		}
		if _, filler := fillerWords[w]; filler {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// sortedKeys gives deterministic iteration order over a timeline map.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// relatedFacts reports whether two fact phrases share at least two
// significant words.
func relatedFacts(a, b string) bool {
	wa := significantWords(a)
	wb := significantWords(b)
	overlap := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			overlap++
			if overlap >= 2 {
				return true
			}
		}
	}
	return false
}
