// Package mcp exposes the canon and the conflict queue over the Model Context
// Protocol, so writing assistants can query continuity state and settle
// conflicts without touching the store directly.
package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"storykeeper/internal/canon"
	"storykeeper/internal/merge"
	"storykeeper/internal/validate"
)

// Project is what the server needs from the build pipeline.
type Project interface {
	LoadGraph() (*canon.Graph, error)
	Validate(ctx context.Context) (*validate.Report, error)
	PendingConflicts(ctx context.Context) ([]merge.Conflict, error)
	ResolveConflict(ctx context.Context, conflictID string, chosen merge.Value, note string) (*merge.Conflict, error)
	DismissConflict(ctx context.Context, conflictID, note string) (*merge.Conflict, error)
}

type Server struct {
	project Project
	mcp     *sdk.Server
}

func NewServer(project Project, version string) *Server {
	s := &Server{
		project: project,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "storykeeper",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
