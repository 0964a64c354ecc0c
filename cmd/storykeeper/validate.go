package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"storykeeper/internal/report"
)

var validateJSON bool

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the continuity validators against the stored canon",
		RunE:  runValidate,
	}
	cmd.Flags().BoolVar(&validateJSON, "json", false, "Emit the report as JSON")
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, st, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	rep, err := p.Validate(ctx)
	if err != nil {
		return err
	}
	pending, err := p.PendingConflicts(ctx)
	if err != nil {
		return err
	}

	if validateJSON {
		if err := report.WriteIssuesJSON(os.Stdout, rep); err != nil {
			return err
		}
	} else {
		report.WriteIssuesText(os.Stdout, rep)
	}

	exitForFindings(rep.Summary, len(pending))
	return nil
}
