package validate

import (
	"fmt"
	"regexp"
	"strings"

	"storykeeper/internal/canon"
)

// Knowledge tracks who learns which facts, scene by scene.
//
//   - KNOW-01: a character references a fact never shown reaching them - ERROR
//   - KNOW-04: a restricted secret is referenced outside its audience - ERROR
//   - KNOW-03: a stated goal is contradicted by a later action - WARNING
//   - KNOW-03b: a character asks about something they already learned - WARNING

var revealPattern = regexp.MustCompile(
	`(?i)(?:reveals?|confesses?|admits?|discloses?|confides?)\s+(?:that\s+)?([^.?!\n]+)`)

var restrictedPattern = regexp.MustCompile(
	`(?i)(?:privately|in\s+private|in\s+confidence|only\s+between|just\s+between|no\s+one\s+else|swear(?:s)?\s+\w+\s+to\s+secrecy)`)

var referencePattern = regexp.MustCompile(
	`(?i)(asks\s+about|mentions|brings\s+up|references|talks\s+about|whispers\s+about)\s+([^.?!\n]+)`)

var goalPattern = regexp.MustCompile(
	`(?i)(?:vows?|swears?|promises?)\s+(?:never\s+to|not\s+to)\s+([^.?!\n]+)|(?i)refuses?\s+to\s+([^.?!\n]+)`)

type fact struct {
	text       string
	scene      *canon.Scene
	restricted bool
	audience   map[string]struct{} // who the reveal was restricted to
	present    map[string]struct{} // who was in the scene at the reveal
	knowers    map[string]struct{} // audience plus shown transmissions
}

type statedGoal struct {
	charID string
	text   string
	scene  *canon.Scene
}

func Knowledge(g *canon.Graph, cfg Config) []Issue {
	var issues []Issue
	var facts []*fact
	var goals []statedGoal

	for _, scene := range g.Scenes() {
		present := charactersPresent(g, scene)

		issues = append(issues, referenceIssues(g, scene, present, facts)...)
		issues = append(issues, contradictionIssues(g, scene, present, goals)...)

		facts = append(facts, revealsIn(g, scene, present)...)
		goals = append(goals, goalsIn(g, scene)...)
	}
	return issues
}

// revealsIn extracts new facts from a scene. An unrestricted reveal is heard
// by everyone present; a restricted one only by the characters named near it.
func revealsIn(g *canon.Graph, scene *canon.Scene, present []string) []*fact {
	var facts []*fact
	for _, m := range revealPattern.FindAllStringSubmatchIndex(scene.Content, -1) {
		text := scene.Content[m[2]:m[3]]
		lo := max(0, m[0]-150)
		hi := min(len(scene.Content), m[1]+150)
		restricted := restrictedPattern.MatchString(scene.Content[lo:hi])

		audience := make(map[string]struct{})
		if restricted {
			for _, charID := range present {
				if mentionsNear(scene.Content, m[0], m[1], 150, namesOf(g, charID)) {
					audience[charID] = struct{}{}
				}
			}
		}
		if len(audience) == 0 {
			for _, charID := range present {
				audience[charID] = struct{}{}
			}
		}
		knowers := make(map[string]struct{}, len(audience))
		for id := range audience {
			knowers[id] = struct{}{}
		}
		inScene := make(map[string]struct{}, len(present))
		for _, id := range present {
			inScene[id] = struct{}{}
		}
		facts = append(facts, &fact{
			text:       text,
			scene:      scene,
			restricted: restricted,
			audience:   audience,
			present:    inScene,
			knowers:    knowers,
		})
	}
	return facts
}

func referenceIssues(g *canon.Graph, scene *canon.Scene, present []string, facts []*fact) []Issue {
	var issues []Issue
	for _, m := range referencePattern.FindAllStringSubmatchIndex(scene.Content, -1) {
		verb := scene.Content[m[2]:m[3]]
		subject := scene.Content[m[4]:m[5]]
		asking := strings.HasPrefix(strings.ToLower(verb), "asks")

		speaker := attributeSpeaker(g, scene.Content, m[0])
		if speaker == "" {
			continue
		}
		for _, f := range facts {
			if !relatedFacts(f.text, subject) {
				continue
			}
			_, knows := f.knowers[speaker]
			_, wasThere := f.present[speaker]
			switch {
			case !knows && f.restricted && wasThere:
				issues = append(issues, Issue{
					Category: CategoryKnowledge,
					Severity: SeverityError,
					Rule:     RuleSecretLeak,
					Title:    "Restricted secret leaks",
					Description: fmt.Sprintf(
						"%s references in scene %d a secret restricted to %s in scene %d, with no shown transmission",
						entityName(g, speaker), scene.Position,
						audienceNames(g, f.audience), f.scene.Position),
					SceneID:       scene.ID,
					ScenePosition: scene.Position,
					EntityIDs:     []string{speaker},
					EvidenceIDs:   scene.EvidenceIDs,
					SuggestedFix:  "show how the secret reached them, or widen the original audience",
				})
			case !knows:
				issues = append(issues, Issue{
					Category: CategoryKnowledge,
					Severity: SeverityError,
					Rule:     RuleUnlearnedFact,
					Title:    "Character references an unlearned fact",
					Description: fmt.Sprintf(
						"%s references in scene %d a fact revealed in scene %d where they were not present",
						entityName(g, speaker), scene.Position, f.scene.Position),
					SceneID:       scene.ID,
					ScenePosition: scene.Position,
					EntityIDs:     []string{speaker},
					EvidenceIDs:   scene.EvidenceIDs,
					SuggestedFix:  "add a scene where they learn it, or reattribute the line",
				})
			case asking && knows:
				issues = append(issues, Issue{
					Category: CategoryKnowledge,
					Severity: SeverityWarn,
					Rule:     RuleRedundantQuestion,
					Title:    "Character asks about known information",
					Description: fmt.Sprintf(
						"%s asks about %q in scene %d but already learned it in scene %d",
						entityName(g, speaker), strings.TrimSpace(subject), scene.Position, f.scene.Position),
					SceneID:       scene.ID,
					ScenePosition: scene.Position,
					EntityIDs:     []string{speaker},
					EvidenceIDs:   scene.EvidenceIDs,
					SuggestedFix:  "cut the question or move the earlier reveal",
				})
			}

			// A spoken reference is transmission: everyone in the room knows.
			f.knowers[speaker] = struct{}{}
			for _, charID := range present {
				f.knowers[charID] = struct{}{}
			}
		}
	}
	return issues
}

func goalsIn(g *canon.Graph, scene *canon.Scene) []statedGoal {
	var goals []statedGoal
	for _, m := range goalPattern.FindAllStringSubmatchIndex(scene.Content, -1) {
		var text string
		if m[2] >= 0 {
			text = scene.Content[m[2]:m[3]]
		} else if m[4] >= 0 {
			text = scene.Content[m[4]:m[5]]
		}
		if text == "" {
			continue
		}
		charID := attributeSpeaker(g, scene.Content, m[0])
		if charID == "" {
			continue
		}
		goals = append(goals, statedGoal{charID: charID, text: text, scene: scene})
	}
	return goals
}

func contradictionIssues(g *canon.Graph, scene *canon.Scene, present []string, goals []statedGoal) []Issue {
	var issues []Issue
	for _, goal := range goals {
		if !contains(present, goal.charID) {
			continue
		}
		names := namesOf(g, goal.charID)
		for _, sentence := range sentencesOf(scene.Content) {
			if goalPattern.MatchString(sentence) {
				continue
			}
			if !nameIn(sentence, names) || !relatedFacts(goal.text, sentence) {
				continue
			}
			issues = append(issues, Issue{
				Category: CategoryKnowledge,
				Severity: SeverityWarn,
				Rule:     RuleGoalContradiction,
				Title:    "Action contradicts stated goal",
				Description: fmt.Sprintf(
					"%s declared in scene %d they would not %q, but scene %d shows them acting against that with no explanation",
					entityName(g, goal.charID), goal.scene.Position,
					strings.TrimSpace(goal.text), scene.Position),
				SceneID:       scene.ID,
				ScenePosition: scene.Position,
				EntityIDs:     []string{goal.charID},
				EvidenceIDs:   scene.EvidenceIDs,
				SuggestedFix:  "explain the reversal, or soften the earlier vow",
			})
			break
		}
	}
	return issues
}

var sentenceBreak = regexp.MustCompile(`[.?!]\s+|\n`)

func sentencesOf(content string) []string {
	return sentenceBreak.Split(content, -1)
}

func nameIn(sentence string, names []string) bool {
	lower := strings.ToLower(sentence)
	for _, name := range names {
		if strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func audienceNames(g *canon.Graph, audience map[string]struct{}) string {
	names := make([]string, 0, len(audience))
	for _, id := range sortedKeys(audience) {
		names = append(names, entityName(g, id))
	}
	return strings.Join(names, " and ")
}
