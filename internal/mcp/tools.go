package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"storykeeper/internal/canon"
	"storykeeper/internal/merge"
	"storykeeper/internal/validate"
)

type SearchCanonInput struct {
	Query string `json:"query" jsonschema:"search terms"`
	Type  string `json:"type,omitempty" jsonschema:"restrict to character, location or prop"`
}

type GetEntityInput struct {
	Ref string `json:"ref" jsonschema:"entity id, name or alias"`
}

type ListScenesInput struct{}

type ListConflictsInput struct {
	EntityID string `json:"entity_id,omitempty" jsonschema:"restrict to one entity"`
}

type ResolveConflictInput struct {
	ID     string   `json:"id" jsonschema:"conflict id"`
	Value  string   `json:"value,omitempty" jsonschema:"scalar value to accept"`
	Values []string `json:"values,omitempty" jsonschema:"collection value to accept"`
	Note   string   `json:"note,omitempty" jsonschema:"reason for the decision"`
}

type DismissConflictInput struct {
	ID   string `json:"id" jsonschema:"conflict id"`
	Note string `json:"note,omitempty" jsonschema:"reason for keeping the current value"`
}

type RunValidationInput struct{}

type EntityOutput struct {
	ID         string            `json:"id"`
	EntityType string            `json:"type"`
	Name       string            `json:"name"`
	Aliases    []string          `json:"aliases"`
	Attributes map[string]string `json:"attributes"`
	Evidence   []string          `json:"evidence"`
}

type SearchResultOutput struct {
	ID         string  `json:"id"`
	EntityType string  `json:"type"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
}

type SearchCanonOutput struct {
	Results []SearchResultOutput `json:"results"`
}

type SceneOutput struct {
	ID         string   `json:"id"`
	Position   int      `json:"position"`
	Location   string   `json:"location,omitempty"`
	TimeOfDay  string   `json:"time_of_day,omitempty"`
	Continuity string   `json:"continuity,omitempty"`
	Characters []string `json:"characters"`
}

type ListScenesOutput struct {
	Scenes []SceneOutput `json:"scenes"`
}

type ConflictOutput struct {
	ID         string `json:"id"`
	EntityID   string `json:"entity_id"`
	Field      string `json:"field"`
	Tier       string `json:"tier"`
	Status     string `json:"status"`
	Current    string `json:"current"`
	Candidate  string `json:"candidate"`
	Source     string `json:"source,omitempty"`
	Note       string `json:"note,omitempty"`
	DetectedAt string `json:"detected_at"`
}

type ListConflictsOutput struct {
	Conflicts []ConflictOutput `json:"conflicts"`
}

type IssueOutput struct {
	ID       string `json:"id"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Scene    int    `json:"scene"`
}

type RunValidationOutput struct {
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
	Notes    int           `json:"notes"`
	Issues   []IssueOutput `json:"issues"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "search_canon",
		Description: "Search canon entities by name, alias or attribute text",
	}, s.handleSearchCanon)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_entity",
		Description: "Retrieve one entity by id, name or alias",
	}, s.handleGetEntity)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_scenes",
		Description: "List scenes in story order with locations and characters",
	}, s.handleListScenes)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_conflicts",
		Description: "List merge conflicts awaiting a decision",
	}, s.handleListConflicts)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "resolve_conflict",
		Description: "Accept a value for a pending conflict",
	}, s.handleResolveConflict)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "dismiss_conflict",
		Description: "Close a pending conflict, keeping the current value",
	}, s.handleDismissConflict)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "run_validation",
		Description: "Run the continuity validators against the current canon",
	}, s.handleRunValidation)
}

func (s *Server) handleSearchCanon(ctx context.Context, req *sdk.CallToolRequest, input SearchCanonInput) (*sdk.CallToolResult, SearchCanonOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchCanonOutput{}, fmt.Errorf("query is required")
	}
	g, err := s.project.LoadGraph()
	if err != nil {
		return nil, SearchCanonOutput{}, err
	}

	query := strings.ToLower(strings.TrimSpace(input.Query))
	results := make([]SearchResultOutput, 0)
	for _, e := range g.Entities() {
		if input.Type != "" && string(e.Type) != input.Type {
			continue
		}
		score := scoreEntity(e, query)
		if score == 0 {
			continue
		}
		results = append(results, SearchResultOutput{
			ID:         e.ID,
			EntityType: string(e.Type),
			Name:       e.Name,
			Score:      score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return nil, SearchCanonOutput{Results: results}, nil
}

func scoreEntity(e *canon.Entity, query string) float64 {
	if strings.ToLower(e.Name) == query {
		return 1.0
	}
	for _, a := range e.Aliases {
		if strings.ToLower(a) == query {
			return 0.9
		}
	}
	if strings.Contains(strings.ToLower(e.Name), query) {
		return 0.5
	}
	for _, a := range e.Aliases {
		if strings.Contains(strings.ToLower(a), query) {
			return 0.4
		}
	}
	for _, v := range e.Attributes {
		if strings.Contains(strings.ToLower(v), query) {
			return 0.2
		}
	}
	return 0
}

func (s *Server) handleGetEntity(ctx context.Context, req *sdk.CallToolRequest, input GetEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	if strings.TrimSpace(input.Ref) == "" {
		return nil, EntityOutput{}, fmt.Errorf("ref is required")
	}
	g, err := s.project.LoadGraph()
	if err != nil {
		return nil, EntityOutput{}, err
	}

	entity, ok := g.Find(input.Ref)
	if !ok {
		if id, _, found := g.ResolveAlias(input.Ref); found {
			entity, ok = g.Find(id)
		}
		if !ok {
			return nil, EntityOutput{}, fmt.Errorf("entity not found: %s", input.Ref)
		}
	}

	attrs := map[string]string{}
	for k, v := range entity.Attributes {
		attrs[k] = v
	}
	return nil, EntityOutput{
		ID:         entity.ID,
		EntityType: string(entity.Type),
		Name:       entity.Name,
		Aliases:    append([]string{}, entity.Aliases...),
		Attributes: attrs,
		Evidence:   append([]string{}, entity.EvidenceIDs...),
	}, nil
}

func (s *Server) handleListScenes(ctx context.Context, req *sdk.CallToolRequest, input ListScenesInput) (*sdk.CallToolResult, ListScenesOutput, error) {
	g, err := s.project.LoadGraph()
	if err != nil {
		return nil, ListScenesOutput{}, err
	}

	scenes := g.Scenes()
	out := make([]SceneOutput, 0, len(scenes))
	for _, sc := range scenes {
		names := make([]string, 0, len(sc.Characters))
		for _, id := range sc.Characters {
			if ch, ok := g.Find(id); ok {
				names = append(names, ch.Name)
			} else {
				names = append(names, id)
			}
		}
		location := ""
		if sc.LocationID != "" {
			if loc, ok := g.Find(sc.LocationID); ok {
				location = loc.Name
			}
		}
		out = append(out, SceneOutput{
			ID:         sc.ID,
			Position:   sc.Position,
			Location:   location,
			TimeOfDay:  sc.TimeOfDay,
			Continuity: string(sc.Continuity),
			Characters: names,
		})
	}
	return nil, ListScenesOutput{Scenes: out}, nil
}

func (s *Server) handleListConflicts(ctx context.Context, req *sdk.CallToolRequest, input ListConflictsInput) (*sdk.CallToolResult, ListConflictsOutput, error) {
	pending, err := s.project.PendingConflicts(ctx)
	if err != nil {
		return nil, ListConflictsOutput{}, err
	}

	out := make([]ConflictOutput, 0, len(pending))
	for _, c := range pending {
		if input.EntityID != "" && c.EntityID != input.EntityID {
			continue
		}
		out = append(out, conflictOutput(c))
	}
	return nil, ListConflictsOutput{Conflicts: out}, nil
}

func (s *Server) handleResolveConflict(ctx context.Context, req *sdk.CallToolRequest, input ResolveConflictInput) (*sdk.CallToolResult, ConflictOutput, error) {
	if input.ID == "" {
		return nil, ConflictOutput{}, fmt.Errorf("id is required")
	}
	if input.Value != "" && len(input.Values) > 0 {
		return nil, ConflictOutput{}, fmt.Errorf("value and values are mutually exclusive")
	}
	chosen := merge.ScalarValue(input.Value)
	if len(input.Values) > 0 {
		chosen = merge.SetValue(input.Values)
	}

	resolved, err := s.project.ResolveConflict(ctx, input.ID, chosen, input.Note)
	if err != nil {
		return nil, ConflictOutput{}, err
	}
	return nil, conflictOutput(*resolved), nil
}

func (s *Server) handleDismissConflict(ctx context.Context, req *sdk.CallToolRequest, input DismissConflictInput) (*sdk.CallToolResult, ConflictOutput, error) {
	if input.ID == "" {
		return nil, ConflictOutput{}, fmt.Errorf("id is required")
	}
	dismissed, err := s.project.DismissConflict(ctx, input.ID, input.Note)
	if err != nil {
		return nil, ConflictOutput{}, err
	}
	return nil, conflictOutput(*dismissed), nil
}

func (s *Server) handleRunValidation(ctx context.Context, req *sdk.CallToolRequest, input RunValidationInput) (*sdk.CallToolResult, RunValidationOutput, error) {
	report, err := s.project.Validate(ctx)
	if err != nil {
		return nil, RunValidationOutput{}, err
	}

	out := RunValidationOutput{
		Errors:   report.Summary.BySeverity[string(validate.SeverityError)],
		Warnings: report.Summary.BySeverity[string(validate.SeverityWarn)],
		Notes:    report.Summary.BySeverity[string(validate.SeverityInfo)],
		Issues:   make([]IssueOutput, 0, len(report.Issues)),
	}
	for _, issue := range report.Issues {
		out.Issues = append(out.Issues, issueOutput(issue))
	}
	return nil, out, nil
}

func conflictOutput(c merge.Conflict) ConflictOutput {
	return ConflictOutput{
		ID:         c.ID,
		EntityID:   c.EntityID,
		Field:      c.Field,
		Tier:       string(c.Tier),
		Status:     string(c.Status),
		Current:    valueText(c.Current),
		Candidate:  valueText(c.Candidate),
		Source:     c.Source,
		Note:       c.Note,
		DetectedAt: c.DetectedAt.Format(time.RFC3339),
	}
}

func valueText(v merge.Value) string {
	if v.IsSet {
		return strings.Join(v.Set, ", ")
	}
	return v.Scalar
}

func issueOutput(issue validate.Issue) IssueOutput {
	return IssueOutput{
		ID:       issue.ID,
		Rule:     issue.Rule,
		Severity: string(issue.Severity),
		Title:    issue.Title,
		Detail:   issue.Description,
		Scene:    issue.ScenePosition,
	}
}
