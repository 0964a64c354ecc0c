package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"storykeeper/internal/merge"
	"storykeeper/internal/report"
)

func conflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and settle merge conflicts",
	}
	cmd.AddCommand(conflictsListCmd())
	cmd.AddCommand(conflictsResolveCmd())
	cmd.AddCommand(conflictsDismissCmd())
	return cmd
}

func conflictsListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conflicts awaiting a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, st, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			pending, err := p.PendingConflicts(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return report.WriteConflictsJSON(os.Stdout, pending)
			}
			report.WriteConflictsText(os.Stdout, pending)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit conflicts as JSON")
	return cmd
}

func conflictsResolveCmd() *cobra.Command {
	var value string
	var values []string
	var note string
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Accept a value for a pending conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if value != "" && len(values) > 0 {
				return fmt.Errorf("--value and --values are mutually exclusive")
			}
			chosen := merge.ScalarValue(value)
			if len(values) > 0 {
				chosen = merge.SetValue(values)
			}

			ctx := context.Background()
			p, st, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			resolved, err := p.ResolveConflict(ctx, args[0], chosen, note)
			if err != nil {
				return err
			}
			report.WriteConflictsText(os.Stdout, []merge.Conflict{*resolved})
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "Scalar value to accept")
	cmd.Flags().StringSliceVar(&values, "values", nil, "Collection value to accept")
	cmd.Flags().StringVar(&note, "note", "", "Reason for the decision")
	return cmd
}

func conflictsDismissCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "dismiss <conflict-id>",
		Short: "Close a pending conflict, keeping the current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, st, err := openProject(ctx)
			if err != nil {
				return err
			}
			defer st.Close(ctx)

			dismissed, err := p.DismissConflict(ctx, args[0], note)
			if err != nil {
				return err
			}
			report.WriteConflictsText(os.Stdout, []merge.Conflict{*dismissed})
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Reason for keeping the current value")
	return cmd
}
