package canon

import (
	"sort"
	"strings"
)

// ContinuityMark is the raw continuity marker on a scene heading: "", or free
// text such as "continuous", "same time", "moments later", "2 hours later".
type ContinuityMark string

const (
	ContinuityNone       ContinuityMark = ""
	ContinuityContinuous ContinuityMark = "continuous"
	ContinuitySameTime   ContinuityMark = "same time"
)

func (m ContinuityMark) normalized() string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(string(m), "_", " ")))
}

// Simultaneous reports whether the mark places the scene in the same
// continuous timespan as its predecessor.
func (m ContinuityMark) Simultaneous() bool {
	switch m.normalized() {
	case "continuous", "same time", "at the same time", "meanwhile":
		return true
	}
	return false
}

// Scene is an ordered story unit. Content is the free-form text the
// validators scan for wardrobe, prop and knowledge mentions.
type Scene struct {
	ID          string         `json:"id"`
	Position    int            `json:"position"`
	LocationID  string         `json:"location_id,omitempty"`
	TimeOfDay   string         `json:"time_of_day,omitempty"`
	Continuity  ContinuityMark `json:"continuity,omitempty"`
	Characters  []string       `json:"characters,omitempty"`
	Content     string         `json:"content,omitempty"`
	EvidenceIDs []string       `json:"evidence_ids,omitempty"`
}

func (s *Scene) Normalize() {
	sort.Strings(s.EvidenceIDs)
}

func (s *Scene) clone() *Scene {
	out := *s
	out.Characters = append([]string(nil), s.Characters...)
	out.EvidenceIDs = append([]string(nil), s.EvidenceIDs...)
	return &out
}
