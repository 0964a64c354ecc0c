package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"storykeeper/internal/canon"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the canon and the conflict queue",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, st, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	g, err := p.LoadGraph()
	if err != nil {
		return err
	}
	pending, err := p.PendingConflicts(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Characters: %d\n", len(g.EntitiesByType(canon.TypeCharacter)))
	fmt.Fprintf(os.Stdout, "Locations:  %d\n", len(g.EntitiesByType(canon.TypeLocation)))
	fmt.Fprintf(os.Stdout, "Props:      %d\n", len(g.EntitiesByType(canon.TypeProp)))
	fmt.Fprintf(os.Stdout, "Scenes:     %d\n", len(g.Scenes()))
	fmt.Fprintf(os.Stdout, "Pending conflicts: %d\n", len(pending))
	return nil
}
