// Package mcp exposes the search service over the Model Context Protocol
// so coding assistants can query ingested sources. Tools run on the same
// service layer as the HTTP API and return the same JSON payloads.
package mcp

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/mcp-brag/internal/config"
	"github.com/mvp-joe/mcp-brag/internal/search"
)

const serverName = "Brag"

// Deps are the services the MCP tools run on.
type Deps struct {
	Config *config.Config
	Search *search.Service
	Active *search.ActiveSources
}

// Server wraps an MCP server speaking stdio.
type Server struct {
	mcp *server.MCPServer
	log zerolog.Logger
}

// New builds the MCP server with the search tools registered. The
// instructions text comes from configuration so deployments can steer how
// assistants use the tools.
func New(deps Deps, version string, log zerolog.Logger) *Server {
	srv := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(deps.Config.Str(config.KeyMCPInstructions)),
	)
	AddSearchTools(srv, deps.Search, deps.Active, deps.Config)

	return &Server{
		mcp: srv,
		log: log.With().Str("component", "mcp").Logger(),
	}
}

// Serve runs the server on stdio until the stream closes, the context is
// canceled, or a shutdown signal arrives.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Msg("serving MCP on stdio")
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case <-sigCh:
		s.log.Info().Msg("shutdown signal received")
		return nil
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
