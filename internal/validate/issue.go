// Package validate detects narrative contradictions in a canon snapshot.
// Every validator is a pure function over an immutable graph: inconsistencies
// are returned as data, never raised as errors.
package validate

import (
	"fmt"
	"sort"
)

type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warning"
	SeverityInfo  Severity = "info"
)

func severityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarn:
		return 1
	default:
		return 2
	}
}

type Category string

const (
	CategoryWardrobe  Category = "wardrobe"
	CategoryProps     Category = "props"
	CategoryTimeline  Category = "timeline"
	CategoryKnowledge Category = "knowledge"
)

// Rule codes. One code per detectable contradiction class.
const (
	RuleWardrobeChange    = "WARD-01"
	RuleWardrobeConflict  = "WARD-02"
	RuleSignatureMissing  = "WARD-03"
	RulePropUnintroduced  = "PROP-01"
	RulePropTransfer      = "PROP-02"
	RulePropDamage        = "PROP-03"
	RuleImpossibleTravel  = "TIME-01"
	RuleUnanchoredTime    = "TIME-02"
	RuleBilocation        = "TIME-04"
	RuleUnlearnedFact     = "KNOW-01"
	RuleGoalContradiction = "KNOW-03"
	RuleRedundantQuestion = "KNOW-03b"
	RuleSecretLeak        = "KNOW-04"
)

// Issue is one detected inconsistency. Issues are regenerated fresh on every
// run; they carry no resolution state of their own.
type Issue struct {
	ID            string   `json:"id"`
	Category      Category `json:"category"`
	Severity      Severity `json:"severity"`
	Rule          string   `json:"rule"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	SceneID       string   `json:"scene_id,omitempty"`
	ScenePosition int      `json:"scene_position,omitempty"`
	EntityIDs     []string `json:"entity_ids,omitempty"`
	EvidenceIDs   []string `json:"evidence_ids,omitempty"`
	SuggestedFix  string   `json:"suggested_fix,omitempty"`
	Resolved      bool     `json:"resolved,omitempty"`
}

// sortIssues orders issues deterministically: severity first, then scene
// position, then rule and title so equal-severity issues have a stable order.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if severityRank(a.Severity) != severityRank(b.Severity) {
			return severityRank(a.Severity) < severityRank(b.Severity)
		}
		if a.ScenePosition != b.ScenePosition {
			return a.ScenePosition < b.ScenePosition
		}
		if a.Rule != b.Rule {
			return a.Rule < b.Rule
		}
		return a.Title < b.Title
	})
}

// renumber assigns sequential ids after the deterministic sort, so identical
// inputs always produce identical reports.
func renumber(issues []Issue) {
	for i := range issues {
		issues[i].ID = fmt.Sprintf("issue-%06d", i+1)
	}
}

// Summary aggregates an issue list for reporting.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByRule     map[string]int `json:"by_rule"`
}

func Summarize(issues []Issue) Summary {
	s := Summary{
		Total:      len(issues),
		BySeverity: make(map[string]int),
		ByRule:     make(map[string]int),
	}
	for _, issue := range issues {
		s.BySeverity[string(issue.Severity)]++
		s.ByRule[issue.Rule]++
	}
	return s
}
