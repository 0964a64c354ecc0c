package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ProjectConfig struct {
	Project   string          `yaml:"project"`
	Version   int             `yaml:"version"`
	Store     StoreConfig     `yaml:"store"`
	Documents DocumentsConfig `yaml:"documents"`
	Graph     GraphConfig     `yaml:"graph"`
	Region    RegionConfig    `yaml:"region"`
	Rules     RulesConfig     `yaml:"rules"`
}

type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

type DocumentsConfig struct {
	Root    string   `yaml:"root"`
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// GraphConfig locates the serialized canonical graph. The file is replaced
// atomically on every successful build.
type GraphConfig struct {
	Path string `yaml:"path"`
}

// RegionConfig overrides the machine-owned region markers. Empty values keep
// the defaults.
type RegionConfig struct {
	Begin string `yaml:"begin"`
	End   string `yaml:"end"`
}

func LoadProjectConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	if err := validateProjectConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	return &cfg, nil
}

func validateProjectConfig(cfg *ProjectConfig) error {
	if strings.TrimSpace(cfg.Project) == "" {
		return fmt.Errorf("project name is required")
	}
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if strings.TrimSpace(cfg.Store.DSN) == "" {
		return fmt.Errorf("store dsn is required")
	}
	if strings.TrimSpace(cfg.Documents.Root) == "" {
		return fmt.Errorf("documents root is required")
	}
	if (cfg.Region.Begin == "") != (cfg.Region.End == "") {
		return fmt.Errorf("region markers must be set together")
	}
	if cfg.Region.Begin != "" && cfg.Region.Begin == cfg.Region.End {
		return fmt.Errorf("region markers must differ")
	}
	if strings.TrimSpace(cfg.Graph.Path) == "" {
		cfg.Graph.Path = "storykeeper/graph.json"
	}
	if len(cfg.Documents.Include) == 0 {
		cfg.Documents.Include = []string{"*.md"}
	}
	return validateRules(&cfg.Rules)
}
