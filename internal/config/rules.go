package config

import (
	"fmt"
	"strings"
)

// RulesConfig tunes the continuity validators. Zero values fall back to the
// validators' defaults.
type RulesConfig struct {
	SignatureItems map[string][]string `yaml:"signature_items"`
	Travel         []TravelTime        `yaml:"travel"`

	DefaultTravelMinutes int `yaml:"default_travel_minutes"`
	NearbyMinutes        int `yaml:"nearby_minutes"`
	DefaultGapMinutes    int `yaml:"default_gap_minutes"`
	TimeSkipMinutes      int `yaml:"time_skip_minutes"`
}

// TravelTime declares the minimum plausible minutes between two named
// locations. Direction does not matter.
type TravelTime struct {
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Minutes int    `yaml:"minutes"`
}

func validateRules(rules *RulesConfig) error {
	for i, t := range rules.Travel {
		if strings.TrimSpace(t.From) == "" || strings.TrimSpace(t.To) == "" {
			return fmt.Errorf("travel entry %d needs both from and to", i)
		}
		if t.Minutes <= 0 {
			return fmt.Errorf("travel entry %d needs positive minutes", i)
		}
	}
	for charID, items := range rules.SignatureItems {
		if strings.TrimSpace(charID) == "" {
			return fmt.Errorf("signature items need a character id")
		}
		for _, item := range items {
			if strings.TrimSpace(item) == "" {
				return fmt.Errorf("signature item for %s is empty", charID)
			}
		}
	}
	if rules.DefaultTravelMinutes < 0 || rules.NearbyMinutes < 0 ||
		rules.DefaultGapMinutes < 0 || rules.TimeSkipMinutes < 0 {
		return fmt.Errorf("rule minutes cannot be negative")
	}
	return nil
}
