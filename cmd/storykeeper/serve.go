package main

import (
	"context"

	"github.com/spf13/cobra"

	"storykeeper/internal/mcp"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	p, st, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	server := mcp.NewServer(p, version)
	return server.Run(ctx, &sdk.StdioTransport{})
}
