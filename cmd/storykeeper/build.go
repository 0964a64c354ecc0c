package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"storykeeper/internal/report"
	"storykeeper/internal/validate"
)

var buildJSON bool

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Merge changed documents into the canon and validate it",
		RunE:  runBuild,
	}
	cmd.Flags().BoolVar(&buildJSON, "json", false, "Emit the validation report as JSON")
	return cmd
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, st, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	result, err := p.Build(ctx)
	if err != nil {
		return err
	}

	if buildJSON {
		if err := report.WriteIssuesJSON(os.Stdout, result.Report); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(os.Stdout, "Build complete.")
		fmt.Fprintf(os.Stdout, "  Documents added:    %d\n", result.DocsAdded)
		fmt.Fprintf(os.Stdout, "  Documents modified: %d\n", result.DocsModified)
		fmt.Fprintf(os.Stdout, "  Documents deleted:  %d\n", result.DocsDeleted)
		fmt.Fprintf(os.Stdout, "  Candidates merged:  %d\n", result.Candidates)

		if len(result.Conflicts) > 0 {
			fmt.Fprintf(os.Stdout, "\nConflicts (%d):\n", len(result.Conflicts))
			report.WriteConflictsText(os.Stdout, result.Conflicts)
		}
		fmt.Fprintln(os.Stdout, "")
		report.WriteIssuesText(os.Stdout, result.Report)
	}

	exitForFindings(result.Report.Summary, result.Pending)
	return nil
}

// exitForFindings terminates the process when the run found errors or left
// conflicts pending. A clean run falls through.
func exitForFindings(summary validate.Summary, pending int) {
	if code := report.ExitCode(summary, pending); code != report.ExitClean {
		os.Exit(code)
	}
}
