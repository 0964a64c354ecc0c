package report

import (
	"encoding/json"
	"fmt"
	"io"

	"storykeeper/internal/merge"
	"storykeeper/internal/validate"
)

// Exit codes for the CLI contract: clean, findings, structural failure.
const (
	ExitClean      = 0
	ExitFindings   = 1
	ExitStructural = 2
)

// ExitCode maps a finished run to its exit code. Findings are ERROR issues
// or conflicts still awaiting a decision; warnings and infos stay clean.
func ExitCode(summary validate.Summary, pendingConflicts int) int {
	if summary.BySeverity[string(validate.SeverityError)] > 0 {
		return ExitFindings
	}
	if pendingConflicts > 0 {
		return ExitFindings
	}
	return ExitClean
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteIssuesJSON emits the full validation report. The issue order is the
// orchestrator's deterministic order, so identical inputs produce
// byte-identical output.
func WriteIssuesJSON(w io.Writer, r *validate.Report) error {
	return writeJSON(w, r)
}

func WriteIssuesText(w io.Writer, r *validate.Report) {
	if len(r.Issues) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return
	}

	grouped := make(map[validate.Severity][]validate.Issue)
	for _, issue := range r.Issues {
		grouped[issue.Severity] = append(grouped[issue.Severity], issue)
	}
	order := []struct {
		severity validate.Severity
		heading  string
	}{
		{validate.SeverityError, "Errors"},
		{validate.SeverityWarn, "Warnings"},
		{validate.SeverityInfo, "Notes"},
	}

	first := true
	for _, section := range order {
		issues := grouped[section.severity]
		if len(issues) == 0 {
			continue
		}
		if !first {
			fmt.Fprintln(w, "")
		}
		first = false
		fmt.Fprintf(w, "%s (%d):\n", section.heading, len(issues))
		for _, issue := range issues {
			location := ""
			if issue.SceneID != "" {
				location = fmt.Sprintf("scene %d: ", issue.ScenePosition)
			}
			fmt.Fprintf(w, "  - %s%s (%s)\n", location, issue.Description, issue.Rule)
			if issue.SuggestedFix != "" {
				fmt.Fprintf(w, "    fix: %s\n", issue.SuggestedFix)
			}
		}
	}
}

func WriteConflictsJSON(w io.Writer, conflicts []merge.Conflict) error {
	if conflicts == nil {
		conflicts = []merge.Conflict{}
	}
	return writeJSON(w, conflicts)
}

func WriteConflictsText(w io.Writer, conflicts []merge.Conflict) {
	if len(conflicts) == 0 {
		fmt.Fprintln(w, "No conflicts.")
		return
	}
	for _, c := range conflicts {
		fmt.Fprintf(w, "%s  [%s/%s]  %s.%s\n", c.ID, c.Tier, c.Status, c.EntityID, c.Field)
		fmt.Fprintf(w, "    current:   %s\n", formatValue(c.Current))
		fmt.Fprintf(w, "    candidate: %s\n", formatValue(c.Candidate))
		if c.Merged != nil {
			fmt.Fprintf(w, "    merged:    %s\n", formatValue(*c.Merged))
		}
		if c.Source != "" {
			fmt.Fprintf(w, "    source:    %s\n", c.Source)
		}
		if c.Note != "" {
			fmt.Fprintf(w, "    note:      %s\n", c.Note)
		}
	}
}

func formatValue(v merge.Value) string {
	if v.IsSet {
		return fmt.Sprintf("%v", v.Set)
	}
	if v.Scalar == "" {
		return "(empty)"
	}
	return v.Scalar
}
