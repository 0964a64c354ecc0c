package main

import (
	"os"

	"github.com/spf13/cobra"

	"storykeeper/internal/report"
)

func main() {
	root := &cobra.Command{
		Use:   "storykeeper",
		Short: "Narrative continuity tracker for long-form fiction",
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.AddCommand(initCmd())
	root.AddCommand(buildCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(conflictsCmd())
	root.AddCommand(editCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(report.ExitStructural)
	}
}
