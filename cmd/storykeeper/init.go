package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var projectName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new storykeeper project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(projectName) == "" {
				return fmt.Errorf("--name is required")
			}
			return runInit(projectName)
		},
	}
	cmd.Flags().StringVar(&projectName, "name", "", "Project name")
	return cmd
}

func runInit(projectName string) error {
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists", configFile)
	}

	contents := fmt.Sprintf(`project: %s
version: 1

store:
  dsn: sqlite://storykeeper/store.db

documents:
  root: ./scenes
  include:
    - "*.md"

graph:
  path: storykeeper/graph.json

rules:
  default_travel_minutes: 240
  nearby_minutes: 10
`, projectName)
	if err := os.WriteFile(configFile, []byte(contents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configFile, err)
	}
	if err := os.MkdirAll("scenes", 0o755); err != nil {
		return fmt.Errorf("creating scenes directory: %w", err)
	}
	if err := os.MkdirAll("storykeeper", 0o755); err != nil {
		return fmt.Errorf("creating storykeeper directory: %w", err)
	}
	return nil
}
