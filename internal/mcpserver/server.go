// Package mcpserver exposes read-only audit tools over MCP so a client can
// fetch rounds and replay their commitments and draws.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"round-settlement/internal/game"
	"round-settlement/internal/store"
)

// Rounds is the slice of the settlement service the tools read from.
type Rounds interface {
	Get(ctx context.Context, id string) (*game.Round, error)
	Proof(ctx context.Context, id string) (*game.SelectionProof, error)
	List(ctx context.Context, f store.RoundFilter) ([]*game.Round, error)
}

type Server struct {
	rounds Rounds

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(rounds Rounds, version string) *Server {
	mcpSrv := server.NewMCPServer(
		"round-settlement",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		rounds:     rounds,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerRoundTools()
	s.registerVerifyTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"round://{round_id}/proof",
			"round_selection_proof",
			mcp.WithTemplateDescription("Selection proof of a completed round"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := request.Params.URI
			if !strings.HasPrefix(raw, "round://") || !strings.HasSuffix(raw, "/proof") {
				return nil, nil
			}
			roundID := strings.TrimSuffix(strings.TrimPrefix(raw, "round://"), "/proof")
			if roundID == "" {
				return nil, nil
			}
			proof, err := s.rounds.Proof(ctx, roundID)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(proof)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}
