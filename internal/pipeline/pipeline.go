// Package pipeline runs the build transaction: change detection, extraction,
// conflict classification, graph persistence and validation, in that order.
// The stored graph is only replaced after the scratch copy passes its
// integrity check, so a failing build leaves the previous canon untouched.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"storykeeper/internal/canon"
	"storykeeper/internal/config"
	"storykeeper/internal/detect"
	"storykeeper/internal/merge"
	"storykeeper/internal/parser"
	"storykeeper/internal/provenance"
	"storykeeper/internal/region"
	"storykeeper/internal/store"
	"storykeeper/internal/validate"
)

// StructuralError marks a failure that invalidates the whole build: an
// unreadable graph, a document that will not parse, or a graph that fails its
// integrity check. Findings and pending conflicts are not structural.
type StructuralError struct {
	Stage string
	Err   error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

func structural(stage string, err error) error {
	return &StructuralError{Stage: stage, Err: err}
}

// Result summarizes one build.
type Result struct {
	DocsAdded    int
	DocsModified int
	DocsDeleted  int
	Candidates   int
	Conflicts    []merge.Conflict
	Pending      int
	Report       *validate.Report
}

// Pipeline wires the project's configuration to its store and runs builds
// against it.
type Pipeline struct {
	cfg      *config.ProjectConfig
	store    store.Store
	detector *detect.Detector
	ledger   *provenance.Ledger
	resolver *merge.Resolver
	codec    region.Codec
}

func New(cfg *config.ProjectConfig, st store.Store, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	ledger := provenance.NewLedger(st, now)
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		detector: detect.New(st, now),
		ledger:   ledger,
		resolver: merge.NewResolver(ledger, st, now),
		codec:    region.NewCodec(cfg.Region.Begin, cfg.Region.End),
	}
}

// Build processes every changed document and returns the merged outcome. Only
// successfully merged documents get new baselines, so a document that fails
// mid-build stays "changed" for the next run.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	g, err := p.LoadGraph()
	if err != nil {
		return nil, err
	}
	scratch := g.Clone()

	changes, err := p.detector.Changed(ctx, p.cfg.Documents.Root, p.matches)
	if err != nil {
		return nil, structural("detecting changes", err)
	}

	result := &Result{}
	var snapshot []string
	for _, change := range changes {
		switch change.Kind {
		case detect.ChangeDeleted:
			result.DocsDeleted++
			conflicts, err := p.handleDeletion(ctx, scratch, change.Path)
			if err != nil {
				return nil, err
			}
			result.Conflicts = append(result.Conflicts, conflicts...)
		default:
			if change.Kind == detect.ChangeAdded {
				result.DocsAdded++
			} else {
				result.DocsModified++
			}
			candidates, conflicts, err := p.mergeDocument(ctx, scratch, change.Path)
			if err != nil {
				return nil, err
			}
			result.Candidates += candidates
			result.Conflicts = append(result.Conflicts, conflicts...)
			snapshot = append(snapshot, change.Path)
		}
	}

	if err := scratch.Check(); err != nil {
		return nil, structural("graph integrity", err)
	}
	if err := p.SaveGraph(scratch); err != nil {
		return nil, err
	}

	for _, path := range snapshot {
		if err := p.writeRegion(scratch, path); err != nil {
			return nil, err
		}
		if err := p.detector.Snapshot(ctx, path); err != nil {
			return nil, structural("recording baseline", err)
		}
	}

	report, err := validate.Run(ctx, scratch, validatorConfig(p.cfg.Rules))
	if err != nil {
		return nil, structural("validation", err)
	}
	result.Report = report

	pending, err := p.store.ListConflicts(ctx, merge.LogFilter{PendingOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing pending conflicts: %w", err)
	}
	result.Pending = len(pending)
	return result, nil
}

// Validate runs the continuity validators against the stored graph without
// merging anything.
func (p *Pipeline) Validate(ctx context.Context) (*validate.Report, error) {
	g, err := p.LoadGraph()
	if err != nil {
		return nil, err
	}
	report, err := validate.Run(ctx, g, validatorConfig(p.cfg.Rules))
	if err != nil {
		return nil, structural("validation", err)
	}
	return report, nil
}

// PendingConflicts lists every conflict still awaiting a decision.
func (p *Pipeline) PendingConflicts(ctx context.Context) ([]merge.Conflict, error) {
	return p.store.ListConflicts(ctx, merge.LogFilter{PendingOnly: true})
}

// ResolveConflict applies an explicit decision and persists the updated graph.
func (p *Pipeline) ResolveConflict(ctx context.Context, conflictID string, chosen merge.Value, note string) (*merge.Conflict, error) {
	g, err := p.LoadGraph()
	if err != nil {
		return nil, err
	}
	scratch := g.Clone()
	conflict, err := p.resolver.Resolve(ctx, scratch, conflictID, chosen, note)
	if err != nil {
		return nil, err
	}
	if err := scratch.Check(); err != nil {
		return nil, structural("graph integrity", err)
	}
	if err := p.SaveGraph(scratch); err != nil {
		return nil, err
	}
	return conflict, nil
}

// DismissConflict keeps the current value and closes the conflict.
func (p *Pipeline) DismissConflict(ctx context.Context, conflictID, note string) (*merge.Conflict, error) {
	return p.resolver.Dismiss(ctx, conflictID, note)
}

// EditField records a direct human change to an entity field. The manual-edit
// provenance keeps later builds from silently widening the value again.
func (p *Pipeline) EditField(ctx context.Context, entityID, field string, v merge.Value) error {
	g, err := p.LoadGraph()
	if err != nil {
		return err
	}
	scratch := g.Clone()
	if err := p.resolver.ManualEdit(ctx, scratch, entityID, field, v); err != nil {
		return err
	}
	if err := scratch.Check(); err != nil {
		return structural("graph integrity", err)
	}
	return p.SaveGraph(scratch)
}

// LoadGraph reads the stored graph. A project that has never built resolves to
// an empty graph.
func (p *Pipeline) LoadGraph() (*canon.Graph, error) {
	data, err := os.ReadFile(p.cfg.Graph.Path)
	if errors.Is(err, os.ErrNotExist) {
		return canon.NewGraph(), nil
	}
	if err != nil {
		return nil, structural("loading graph", err)
	}
	g, err := canon.DecodeJSON(data)
	if err != nil {
		return nil, structural("loading graph", err)
	}
	return g, nil
}

// SaveGraph serializes the graph and swaps it into place atomically, so a
// crash mid-write never leaves a truncated canon behind.
func (p *Pipeline) SaveGraph(g *canon.Graph) error {
	data, err := g.EncodeJSON()
	if err != nil {
		return structural("saving graph", err)
	}
	dir := filepath.Dir(p.cfg.Graph.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return structural("saving graph", err)
	}
	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return structural("saving graph", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return structural("saving graph", err)
	}
	if err := tmp.Close(); err != nil {
		return structural("saving graph", err)
	}
	if err := os.Rename(tmp.Name(), p.cfg.Graph.Path); err != nil {
		return structural("saving graph", err)
	}
	return nil
}

// mergeDocument parses one document, extracts candidates and classifies them
// against the scratch graph. Scene prose is applied directly: the document is
// the authority on its own body.
func (p *Pipeline) mergeDocument(ctx context.Context, scratch *canon.Graph, path string) (int, []merge.Conflict, error) {
	doc, err := parser.ParseFile(path)
	if err != nil {
		return 0, nil, structural("parsing "+path, err)
	}

	candidates, err := extractCandidates(scratch, doc)
	if err != nil {
		return 0, nil, structural("extracting "+path, err)
	}

	var all []merge.Conflict
	for _, cand := range candidates {
		conflicts, err := p.resolver.Classify(ctx, currentFields(scratch, cand), cand)
		if err != nil {
			return 0, nil, err
		}
		if err := p.resolver.Apply(ctx, scratch, cand, conflicts); err != nil {
			return 0, nil, err
		}
		all = append(all, conflicts...)
	}

	if doc.Scene != nil {
		if err := p.applyContent(ctx, scratch, doc); err != nil {
			return 0, nil, err
		}
	}
	return len(candidates), all, nil
}

// applyContent writes the human-owned prose onto the scene, skipping the
// machine-owned region so generated text never feeds back into extraction.
func (p *Pipeline) applyContent(ctx context.Context, g *canon.Graph, doc *parser.Document) error {
	scene, ok := g.FindScene(doc.Scene.ID)
	if !ok {
		return fmt.Errorf("scene %s missing after merge", doc.Scene.ID)
	}
	content := strings.TrimSpace(p.humanContent(doc.Body))
	if scene.Content == content {
		return nil
	}
	updated := *scene
	updated.Content = content
	if err := g.UpsertScene(&updated); err != nil {
		return fmt.Errorf("updating scene %s content: %w", doc.Scene.ID, err)
	}
	_, err := p.ledger.Append(ctx, doc.Scene.ID, "content",
		provenance.HashValue(content), provenance.SourceExtraction, []string{doc.SourceFile})
	return err
}

// humanContent strips the machine-owned region and its markers from a body.
func (p *Pipeline) humanContent(body string) string {
	parts := p.codec.Split(body)
	if !parts.Found {
		return body
	}
	pre := strings.TrimSuffix(parts.Preamble, p.codec.Begin)
	post := strings.TrimPrefix(parts.Epilogue, p.codec.End)
	return pre + post
}

// handleDeletion records CRITICAL conflicts for every entity and scene backed
// by the vanished document. Nothing is removed from the graph; a missing file
// is a question, not an answer.
func (p *Pipeline) handleDeletion(ctx context.Context, g *canon.Graph, path string) ([]merge.Conflict, error) {
	var conflicts []merge.Conflict
	for _, e := range g.Entities() {
		if containsString(e.EvidenceIDs, path) {
			c, err := p.resolver.DocumentDeleted(ctx, e.ID, string(e.Type), path)
			if err != nil {
				return nil, err
			}
			conflicts = append(conflicts, c)
		}
	}
	for _, s := range g.Scenes() {
		if containsString(s.EvidenceIDs, path) {
			c, err := p.resolver.DocumentDeleted(ctx, s.ID, string(canon.TypeScene), path)
			if err != nil {
				return nil, err
			}
			conflicts = append(conflicts, c)
		}
	}
	if err := p.store.DeleteBaseline(ctx, path); err != nil {
		return nil, fmt.Errorf("dropping baseline for %s: %w", path, err)
	}
	return conflicts, nil
}

// writeRegion refreshes the machine-owned region of a document that carries
// markers. Documents without markers are never touched.
func (p *Pipeline) writeRegion(g *canon.Graph, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return structural("refreshing region in "+path, err)
	}
	body := string(data)
	parts := p.codec.Split(body)
	if !parts.Found {
		return nil
	}
	content := renderRegion(g, path)
	if parts.Region == content {
		return nil
	}
	updated := p.codec.Replace(body, content)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return structural("refreshing region in "+path, err)
	}
	return nil
}

// renderRegion produces the generated canon block for one document: the
// entities and scenes it backs, in deterministic order.
func renderRegion(g *canon.Graph, path string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, e := range g.Entities() {
		if !containsString(e.EvidenceIDs, path) {
			continue
		}
		fmt.Fprintf(&b, "%s %s: %s", e.Type, e.ID, e.Name)
		if len(e.Aliases) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(e.Aliases, ", "))
		}
		b.WriteString("\n")
	}
	for _, s := range g.Scenes() {
		if !containsString(s.EvidenceIDs, path) {
			continue
		}
		fmt.Fprintf(&b, "scene %s: position %d", s.ID, s.Position)
		if s.LocationID != "" {
			if loc, ok := g.Find(s.LocationID); ok {
				fmt.Fprintf(&b, ", at %s", loc.Name)
			}
		}
		if len(s.Characters) > 0 {
			names := make([]string, 0, len(s.Characters))
			for _, id := range s.Characters {
				if ch, ok := g.Find(id); ok {
					names = append(names, ch.Name)
				}
			}
			fmt.Fprintf(&b, ", with %s", strings.Join(names, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// matches applies the configured include and exclude globs to a file name.
func (p *Pipeline) matches(path string) bool {
	base := filepath.Base(path)
	for _, pat := range p.cfg.Documents.Exclude {
		if ok, _ := filepath.Match(pat, base); ok {
			return false
		}
	}
	for _, pat := range p.cfg.Documents.Include {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
	}
	return false
}

func currentFields(g *canon.Graph, cand merge.Candidate) map[string]merge.Value {
	if cand.EntityType == canon.TypeScene {
		if s, ok := g.FindScene(cand.EntityID); ok {
			return merge.SceneFields(s)
		}
		return nil
	}
	if e, ok := g.Find(cand.EntityID); ok {
		return merge.EntityFields(e)
	}
	return nil
}

func containsString(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}

// validatorConfig translates the project's rule settings into validator knobs.
func validatorConfig(rules config.RulesConfig) validate.Config {
	cfg := validate.Config{
		SignatureItems:       rules.SignatureItems,
		DefaultTravelMinutes: rules.DefaultTravelMinutes,
		NearbyMinutes:        rules.NearbyMinutes,
		DefaultGapMinutes:    rules.DefaultGapMinutes,
		TimeSkipMinutes:      rules.TimeSkipMinutes,
	}
	if len(rules.Travel) > 0 {
		cfg.TravelMinutes = make(map[string]int, len(rules.Travel))
		for _, t := range rules.Travel {
			cfg.TravelMinutes[validate.TravelKey(t.From, t.To)] = t.Minutes
		}
	}
	return cfg
}
