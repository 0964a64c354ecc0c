package report

import (
	"bytes"
	"strings"
	"testing"

	"storykeeper/internal/merge"
	"storykeeper/internal/validate"
)

func sampleReport() *validate.Report {
	issues := []validate.Issue{
		{
			ID: "issue-000001", Category: validate.CategoryWardrobe,
			Severity: validate.SeverityError, Rule: "WARD-02",
			Title: "Wardrobe conflict in continuous time", ScenePosition: 6, SceneID: "scene-6",
			Description: "Maya wears \"leather jacket\" in scene 5 but \"tuxedo\" in scene 6",
		},
		{
			ID: "issue-000002", Category: validate.CategoryProps,
			Severity: validate.SeverityWarn, Rule: "PROP-01",
			Title: "Prop appears without introduction", ScenePosition: 7, SceneID: "scene-7",
			Description: "prop \"gun\" first appears in scene 7",
		},
	}
	return &validate.Report{Issues: issues, Summary: validate.Summarize(issues)}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name     string
		severity map[string]int
		pending  int
		want     int
	}{
		{"clean", nil, 0, ExitClean},
		{"warnings only", map[string]int{"warning": 3}, 0, ExitClean},
		{"errors", map[string]int{"error": 1}, 0, ExitFindings},
		{"pending conflicts", nil, 2, ExitFindings},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary := validate.Summary{BySeverity: tc.severity}
			if summary.BySeverity == nil {
				summary.BySeverity = map[string]int{}
			}
			if got := ExitCode(summary, tc.pending); got != tc.want {
				t.Fatalf("ExitCode = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestWriteIssuesJSONDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if err := WriteIssuesJSON(&a, sampleReport()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := WriteIssuesJSON(&b, sampleReport()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if a.String() != b.String() {
		t.Fatalf("repeated encodings differ")
	}
	if !strings.Contains(a.String(), `"WARD-02"`) {
		t.Fatalf("missing rule code in output: %s", a.String())
	}
}

func TestWriteIssuesTextGroupsBySeverity(t *testing.T) {
	var buf bytes.Buffer
	WriteIssuesText(&buf, sampleReport())
	out := buf.String()

	errIdx := strings.Index(out, "Errors (1):")
	warnIdx := strings.Index(out, "Warnings (1):")
	if errIdx < 0 || warnIdx < 0 {
		t.Fatalf("missing section headings:\n%s", out)
	}
	if errIdx > warnIdx {
		t.Fatalf("errors should precede warnings:\n%s", out)
	}
	if !strings.Contains(out, "scene 6:") {
		t.Fatalf("missing scene reference:\n%s", out)
	}
}

func TestWriteIssuesTextEmpty(t *testing.T) {
	var buf bytes.Buffer
	WriteIssuesText(&buf, &validate.Report{})
	if got := buf.String(); got != "No issues found.\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestWriteConflictsText(t *testing.T) {
	var buf bytes.Buffer
	WriteConflictsText(&buf, []merge.Conflict{{
		ID: "conf-1", EntityID: "char-maya", Field: "attributes.hair",
		Current: merge.ScalarValue("black"), Candidate: merge.ScalarValue("red"),
		Tier: merge.TierAmbiguous, Status: merge.StatusPendingReview,
		Source: "docs/ep2.md",
	}})
	out := buf.String()
	for _, want := range []string{"conf-1", "ambiguous/pending_review", "char-maya.attributes.hair", "black", "red", "docs/ep2.md"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
