package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"storykeeper/internal/merge"
)

func editCmd() *cobra.Command {
	var value string
	var values []string
	cmd := &cobra.Command{
		Use:   "edit <entity-id> <field>",
		Short: "Apply a manual change to an entity field",
		Long: "Writes a field value directly and records it as a manual edit. " +
			"Later builds will not silently widen a manually edited field.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if value != "" && len(values) > 0 {
				return fmt.Errorf("--value and --values are mutually exclusive")
			}
			if value == "" && len(values) == 0 {
				return fmt.Errorf("one of --value or --values is required")
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

			return p.EditField(ctx, args[0], args[1], chosen)
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "Scalar value to write")
	cmd.Flags().StringSliceVar(&values, "values", nil, "Collection value to write")
	return cmd
}
