package validate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"storykeeper/internal/canon"
)

// Config carries the tunable knobs the validators read. The zero value is
// usable; DefaultConfig fills in the timing heuristics.
type Config struct {
	// SignatureItems maps a character entity id to wardrobe items that
	// should appear whenever the character is described.
	SignatureItems map[string][]string

	// TravelMinutes overrides the minimum plausible travel time for a
	// location pair, keyed by the sorted lowercase pair of names.
	TravelMinutes map[string]int

	// DefaultTravelMinutes applies to location pairs with no override and
	// no name overlap. NearbyMinutes applies when the two location names
	// share a significant word, which we read as the same general area.
	DefaultTravelMinutes int
	NearbyMinutes        int

	// DefaultGapMinutes is the assumed elapsed time across an unmarked
	// scene break; TimeSkipMinutes across an explicit time-skip marker.
	DefaultGapMinutes int
	TimeSkipMinutes   int
}

func DefaultConfig() Config {
	return Config{
		DefaultTravelMinutes: 240,
		NearbyMinutes:        10,
		DefaultGapMinutes:    5,
		TimeSkipMinutes:      480,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTravelMinutes == 0 {
		c.DefaultTravelMinutes = d.DefaultTravelMinutes
	}
	if c.NearbyMinutes == 0 {
		c.NearbyMinutes = d.NearbyMinutes
	}
	if c.DefaultGapMinutes == 0 {
		c.DefaultGapMinutes = d.DefaultGapMinutes
	}
	if c.TimeSkipMinutes == 0 {
		c.TimeSkipMinutes = d.TimeSkipMinutes
	}
	return c
}

type Report struct {
	Issues  []Issue `json:"issues"`
	Summary Summary `json:"summary"`
}

// Run executes every registered validator against a shared immutable graph
// snapshot, then merges the results into one deterministically ordered
// report. Validators never fail on detected inconsistencies; an error here
// means the input graph itself was unusable.
func Run(ctx context.Context, g *canon.Graph, cfg Config) (*Report, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if err := g.Check(); err != nil {
		return nil, fmt.Errorf("graph integrity: %w", err)
	}
	cfg = cfg.withDefaults()

	checks := validators()
	results := make([][]Issue, len(checks))

	eg, ctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = check.fn(g, cfg)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("run validators: %w", err)
	}

	var issues []Issue
	for _, r := range results {
		issues = append(issues, r...)
	}
	sortIssues(issues)
	renumber(issues)
	if issues == nil {
		issues = []Issue{}
	}
	return &Report{Issues: issues, Summary: Summarize(issues)}, nil
}
