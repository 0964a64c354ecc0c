package validate

import (
	"context"
	"reflect"
	"testing"

	"storykeeper/internal/canon"
)

func addEntity(t *testing.T, g *canon.Graph, id string, typ canon.EntityType, name string, aliases ...string) {
	t.Helper()
	if err := g.Upsert(&canon.Entity{ID: id, Type: typ, Name: name, Aliases: aliases}); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
}

func addScene(t *testing.T, g *canon.Graph, s *canon.Scene) {
	t.Helper()
	if err := g.UpsertScene(s); err != nil {
		t.Fatalf("upsert scene %s: %v", s.ID, err)
	}
}

func issuesWithRule(issues []Issue, rule string) []Issue {
	var out []Issue
	for _, issue := range issues {
		if issue.Rule == rule {
			out = append(out, issue)
		}
	}
	return out
}

func TestWardrobe_ConflictAcrossContinuousScenes(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-maya", canon.TypeCharacter, "Maya")
	addScene(t, g, &canon.Scene{
		ID: "scene-5", Position: 5,
		Characters: []string{"char-maya"},
		Content:    "Maya leans against the bar, wearing a leather jacket over a white shirt.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-6", Position: 6,
		Continuity: canon.ContinuityContinuous,
		Characters: []string{"char-maya"},
		Content:    "Maya crosses the room, wearing a tuxedo.",
	})

	report, err := Run(context.Background(), g, Config{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	conflicts := issuesWithRule(report.Issues, RuleWardrobeConflict)
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleWardrobeConflict, len(conflicts))
	}
	issue := conflicts[0]
	if issue.Severity != SeverityError {
		t.Fatalf("severity = %s, want %s", issue.Severity, SeverityError)
	}
	if issue.ScenePosition != 6 {
		t.Fatalf("scene position = %d, want 6", issue.ScenePosition)
	}
}

func TestWardrobe_TimeSkipSuppressesChangeWarning(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-maya", canon.TypeCharacter, "Maya")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-maya"},
		Content:    "Maya waits outside, wearing a leather jacket.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Continuity: "2 days later",
		Characters: []string{"char-maya"},
		Content:    "Maya steps off the train, wearing a wool coat.",
	})

	issues := Wardrobe(g, DefaultConfig())
	if n := len(issuesWithRule(issues, RuleWardrobeChange)); n != 0 {
		t.Fatalf("expected no %s issues across a time skip, got %d", RuleWardrobeChange, n)
	}
}

func TestWardrobe_SignatureItemMissing(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-maya", canon.TypeCharacter, "Maya")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-maya"},
		Content:    "Maya leans against the bar, wearing a leather jacket.",
	})

	cfg := DefaultConfig()
	cfg.SignatureItems = map[string][]string{"char-maya": {"red scarf"}}
	issues := issuesWithRule(Wardrobe(g, cfg), RuleSignatureMissing)
	if len(issues) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleSignatureMissing, len(issues))
	}
	if issues[0].Severity != SeverityInfo {
		t.Fatalf("severity = %s, want %s", issues[0].Severity, SeverityInfo)
	}

	t.Run("present item suppresses the note", func(t *testing.T) {
		g := canon.NewGraph()
		addEntity(t, g, "char-maya", canon.TypeCharacter, "Maya")
		addScene(t, g, &canon.Scene{
			ID: "scene-1", Position: 1,
			Characters: []string{"char-maya"},
			Content:    "Maya leans against the bar, wearing her red scarf and a gray coat.",
		})
		if n := len(issuesWithRule(Wardrobe(g, cfg), RuleSignatureMissing)); n != 0 {
			t.Fatalf("expected no %s issues when the item is worn, got %d", RuleSignatureMissing, n)
		}
	})
}

func TestProps_UnintroducedProp(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-rick", canon.TypeCharacter, "Rick")
	addEntity(t, g, "prop-gun", canon.TypeProp, "gun", "revolver")
	for pos := 1; pos <= 6; pos++ {
		addScene(t, g, &canon.Scene{
			ID: "scene-" + string(rune('0'+pos)), Position: pos,
			Characters: []string{"char-rick"},
			Content:    "Rick paces the office.",
		})
	}
	addScene(t, g, &canon.Scene{
		ID: "scene-7", Position: 7,
		Characters: []string{"char-rick"},
		Content:    "Rick pulls a gun and levels it at the door.",
	})

	report, err := Run(context.Background(), g, Config{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	warnings := issuesWithRule(report.Issues, RulePropUnintroduced)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RulePropUnintroduced, len(warnings))
	}
	if warnings[0].Severity != SeverityWarn {
		t.Fatalf("severity = %s, want %s", warnings[0].Severity, SeverityWarn)
	}
	if warnings[0].ScenePosition != 7 {
		t.Fatalf("scene position = %d, want 7", warnings[0].ScenePosition)
	}
}

func TestProps_IntroductionSuppressesWarning(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-rick", canon.TypeCharacter, "Rick")
	addEntity(t, g, "prop-gun", canon.TypeProp, "gun")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-rick"},
		Content:    "Rick picks up the gun from the desk drawer.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Characters: []string{"char-rick"},
		Content:    "Rick pulls the gun again.",
	})

	issues := Props(g, DefaultConfig())
	if n := len(issuesWithRule(issues, RulePropUnintroduced)); n != 0 {
		t.Fatalf("expected no %s issues after an introduction, got %d", RulePropUnintroduced, n)
	}
}

func TestProps_HolderChangeWithoutTransfer(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-rick", canon.TypeCharacter, "Rick")
	addEntity(t, g, "char-ilsa", canon.TypeCharacter, "Ilsa")
	addEntity(t, g, "prop-letters", canon.TypeProp, "letters")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-rick"},
		Content:    "Rick takes the letters from the safe.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Characters: []string{"char-ilsa"},
		Content:    "Ilsa holds the letters up to the light.",
	})

	issues := Props(g, DefaultConfig())
	errors := issuesWithRule(issues, RulePropTransfer)
	if len(errors) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RulePropTransfer, len(errors))
	}
	if errors[0].Severity != SeverityError {
		t.Fatalf("severity = %s, want %s", errors[0].Severity, SeverityError)
	}
}

func TestProps_DamagedPropAppearsIntact(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-rick", canon.TypeCharacter, "Rick")
	addEntity(t, g, "prop-vase", canon.TypeProp, "vase")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-rick"},
		Content:    "Rick picks up the vase from the desk.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Characters: []string{"char-rick"},
		Content:    "Rick drops the vase on the floor.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-3", Position: 3,
		Characters: []string{"char-rick"},
		Content:    "Rick holds the vase again.",
	})

	warnings := issuesWithRule(Props(g, DefaultConfig()), RulePropDamage)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RulePropDamage, len(warnings))
	}
	if warnings[0].Severity != SeverityWarn {
		t.Fatalf("severity = %s, want %s", warnings[0].Severity, SeverityWarn)
	}
	if warnings[0].ScenePosition != 3 {
		t.Fatalf("scene position = %d, want 3", warnings[0].ScenePosition)
	}

	t.Run("repair clears the damage state", func(t *testing.T) {
		addScene(t, g, &canon.Scene{
			ID: "scene-3", Position: 3,
			Characters: []string{"char-rick"},
			Content:    "Rick repairs the vase with glue.",
		})
		addScene(t, g, &canon.Scene{
			ID: "scene-4", Position: 4,
			Characters: []string{"char-rick"},
			Content:    "Rick holds the vase again.",
		})
		if n := len(issuesWithRule(Props(g, DefaultConfig()), RulePropDamage)); n != 0 {
			t.Fatalf("expected no %s issues after a repair, got %d", RulePropDamage, n)
		}
	})
}

func TestTimeline_ImpossibleTravel(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-dana", canon.TypeCharacter, "Dana")
	addEntity(t, g, "loc-ny", canon.TypeLocation, "New York")
	addEntity(t, g, "loc-la", canon.TypeLocation, "Los Angeles")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		LocationID: "loc-ny",
		Characters: []string{"char-dana"},
		Content:    "Dana hails a cab.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		LocationID: "loc-la",
		Continuity: "30 minutes later",
		Characters: []string{"char-dana"},
		Content:    "Dana walks into the sunlight.",
	})

	report, err := Run(context.Background(), g, Config{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	errors := issuesWithRule(report.Issues, RuleImpossibleTravel)
	if len(errors) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleImpossibleTravel, len(errors))
	}
	if errors[0].Severity != SeverityError {
		t.Fatalf("severity = %s, want %s", errors[0].Severity, SeverityError)
	}
}

func TestTimeline_ConfiguredTravelTimeAllowsMove(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-dana", canon.TypeCharacter, "Dana")
	addEntity(t, g, "loc-ny", canon.TypeLocation, "New York")
	addEntity(t, g, "loc-la", canon.TypeLocation, "Los Angeles")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		LocationID: "loc-ny",
		Characters: []string{"char-dana"},
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		LocationID: "loc-la",
		Continuity: "30 minutes later",
		Characters: []string{"char-dana"},
	})

	cfg := DefaultConfig()
	cfg.TravelMinutes = map[string]int{"los angeles|new york": 20}
	issues := Timeline(g, cfg)
	if n := len(issuesWithRule(issues, RuleImpossibleTravel)); n != 0 {
		t.Fatalf("expected no %s issues with a configured travel time, got %d", RuleImpossibleTravel, n)
	}
}

func TestTimeline_BilocationInSimultaneousScenes(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-dana", canon.TypeCharacter, "Dana")
	addEntity(t, g, "loc-bar", canon.TypeLocation, "the bar")
	addEntity(t, g, "loc-dock", canon.TypeLocation, "the dock")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		LocationID: "loc-bar",
		Characters: []string{"char-dana"},
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		LocationID: "loc-dock",
		Continuity: canon.ContinuitySameTime,
		Characters: []string{"char-dana"},
	})

	issues := Timeline(g, DefaultConfig())
	errors := issuesWithRule(issues, RuleBilocation)
	if len(errors) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleBilocation, len(errors))
	}
}

func TestTimeline_UnanchoredTimePhrase(t *testing.T) {
	g := canon.NewGraph()
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Content: "Later that night, the lights go out across the pier.",
	})

	warnings := issuesWithRule(Timeline(g, DefaultConfig()), RuleUnanchoredTime)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleUnanchoredTime, len(warnings))
	}
	if warnings[0].Severity != SeverityWarn {
		t.Fatalf("severity = %s, want %s", warnings[0].Severity, SeverityWarn)
	}

	t.Run("scene time of day anchors the phrase", func(t *testing.T) {
		g := canon.NewGraph()
		addScene(t, g, &canon.Scene{
			ID: "scene-1", Position: 1,
			TimeOfDay: "night",
			Content:   "Later that night, the lights go out across the pier.",
		})
		if n := len(issuesWithRule(Timeline(g, DefaultConfig()), RuleUnanchoredTime)); n != 0 {
			t.Fatalf("expected no %s issues with a time of day, got %d", RuleUnanchoredTime, n)
		}
	})
}

func TestKnowledge_GoalContradiction(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-rick", canon.TypeCharacter, "Rick")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-rick"},
		Content:    "RICK\nRick vows never to help the police.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Characters: []string{"char-rick"},
		Content:    "Rick is seen with the police, ready to help with the search.",
	})

	warnings := issuesWithRule(Knowledge(g, DefaultConfig()), RuleGoalContradiction)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleGoalContradiction, len(warnings))
	}
	issue := warnings[0]
	if issue.Severity != SeverityWarn {
		t.Fatalf("severity = %s, want %s", issue.Severity, SeverityWarn)
	}
	if len(issue.EntityIDs) != 1 || issue.EntityIDs[0] != "char-rick" {
		t.Fatalf("entity ids = %v, want [char-rick]", issue.EntityIDs)
	}
}

func TestKnowledge_RestrictedSecretLeaks(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-alice", canon.TypeCharacter, "Alice")
	addEntity(t, g, "char-bob", canon.TypeCharacter, "Bob")
	addEntity(t, g, "char-carol", canon.TypeCharacter, "Carol")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-alice", "char-bob", "char-carol"},
		Content:    "Alice reveals that the vault code is hidden inside the painting. Alice swears Carol to secrecy.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Characters: []string{"char-bob"},
		Content:    "BOB\nBob mentions the vault code inside the painting.",
	})

	errors := issuesWithRule(Knowledge(g, DefaultConfig()), RuleSecretLeak)
	if len(errors) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleSecretLeak, len(errors))
	}
	issue := errors[0]
	if issue.Severity != SeverityError {
		t.Fatalf("severity = %s, want %s", issue.Severity, SeverityError)
	}
	if len(issue.EntityIDs) != 1 || issue.EntityIDs[0] != "char-bob" {
		t.Fatalf("entity ids = %v, want [char-bob]", issue.EntityIDs)
	}
}

func TestKnowledge_UnlearnedFact(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-alice", canon.TypeCharacter, "Alice")
	addEntity(t, g, "char-bob", canon.TypeCharacter, "Bob")
	addEntity(t, g, "char-carol", canon.TypeCharacter, "Carol")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-alice", "char-carol"},
		Content:    "Alice reveals that the vault code is hidden inside the painting. Just between Alice and Carol.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Characters: []string{"char-bob"},
		Content:    "BOB\nBob mentions the vault code inside the painting.",
	})

	report, err := Run(context.Background(), g, Config{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	errors := issuesWithRule(report.Issues, RuleUnlearnedFact)
	if len(errors) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleUnlearnedFact, len(errors))
	}
	issue := errors[0]
	if issue.Severity != SeverityError {
		t.Fatalf("severity = %s, want %s", issue.Severity, SeverityError)
	}
	if len(issue.EntityIDs) != 1 || issue.EntityIDs[0] != "char-bob" {
		t.Fatalf("entity ids = %v, want [char-bob]", issue.EntityIDs)
	}
}

func TestKnowledge_RedundantQuestion(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-alice", canon.TypeCharacter, "Alice")
	addEntity(t, g, "char-bob", canon.TypeCharacter, "Bob")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-alice", "char-bob"},
		Content:    "Alice reveals that the shipment arrives at the north dock.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Characters: []string{"char-bob"},
		Content:    "BOB\nBob asks about the shipment at the north dock.",
	})

	issues := Knowledge(g, DefaultConfig())
	warnings := issuesWithRule(issues, RuleRedundantQuestion)
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one %s issue, got %d", RuleRedundantQuestion, len(warnings))
	}
	if warnings[0].Severity != SeverityWarn {
		t.Fatalf("severity = %s, want %s", warnings[0].Severity, SeverityWarn)
	}
}

func TestRun_SortsAndRenumbersDeterministically(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-maya", canon.TypeCharacter, "Maya")
	addEntity(t, g, "char-rick", canon.TypeCharacter, "Rick")
	addEntity(t, g, "prop-gun", canon.TypeProp, "gun")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-maya", "char-rick"},
		Content:    "Maya waits, wearing a leather jacket. Rick pulls a gun on her.",
	})
	addScene(t, g, &canon.Scene{
		ID: "scene-2", Position: 2,
		Continuity: canon.ContinuityContinuous,
		Characters: []string{"char-maya"},
		Content:    "Maya ducks behind the counter, wearing a tuxedo.",
	})

	first, err := Run(context.Background(), g, Config{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), g, Config{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated runs diverge:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if len(first.Issues) == 0 {
		t.Fatalf("expected issues from the fixture")
	}
	for i, issue := range first.Issues {
		if i > 0 {
			prev := first.Issues[i-1]
			if severityRank(issue.Severity) < severityRank(prev.Severity) {
				t.Fatalf("issues not sorted by severity at index %d", i)
			}
		}
	}
	if first.Issues[0].ID != "issue-000001" {
		t.Fatalf("first issue id = %s, want issue-000001", first.Issues[0].ID)
	}
}

func TestRun_CleanGraphProducesEmptyReport(t *testing.T) {
	g := canon.NewGraph()
	addEntity(t, g, "char-maya", canon.TypeCharacter, "Maya")
	addScene(t, g, &canon.Scene{
		ID: "scene-1", Position: 1,
		Characters: []string{"char-maya"},
		Content:    "Maya reads quietly by the window.",
	})

	report, err := Run(context.Background(), g, Config{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(report.Issues) != 0 {
		t.Fatalf("expected no issues, got %d: %+v", len(report.Issues), report.Issues)
	}
	if report.Summary.Total != 0 {
		t.Fatalf("summary total = %d, want 0", report.Summary.Total)
	}
}
