package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"round-settlement/internal/game"
	"round-settlement/internal/store"
)

func (s *Server) registerRoundTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_round",
			mcp.WithDescription("Get a round; the server seed is present only once the round is finished"),
			mcp.WithString("round_id", mcp.Required(), mcp.Description("Round id")),
		),
		s.handleGetRound,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_round_proof",
			mcp.WithDescription("Get the selection proof of a completed round and whether it replays"),
			mcp.WithString("round_id", mcp.Required(), mcp.Description("Round id")),
		),
		s.handleGetRoundProof,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_open_rounds",
			mcp.WithDescription("List rounds still accepting players"),
			mcp.WithString("room", mcp.Description("Optional room id")),
			mcp.WithNumber("limit", mcp.Description("Page size, default 50, max 100")),
			mcp.WithNumber("offset", mcp.Description("Page offset, default 0")),
		),
		s.handleListOpenRounds,
	)
}

func (s *Server) handleGetRound(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roundID, err := request.RequireString("round_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	round, svcErr := s.rounds.Get(ctx, roundID)
	if svcErr != nil {
		return mapDomainError(svcErr), nil
	}
	return toolResult(round), nil
}

func (s *Server) handleGetRoundProof(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roundID, err := request.RequireString("round_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	proof, svcErr := s.rounds.Proof(ctx, roundID)
	if svcErr != nil {
		return mapDomainError(svcErr), nil
	}
	verr := game.VerifySelection(*proof)
	out := map[string]any{"proof": proof, "verified": verr == nil}
	if verr != nil {
		out["verify_error"] = verr.Error()
	}
	return toolResult(out), nil
}

func (s *Server) handleListOpenRounds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, offset := clampPagination(request.GetInt("limit", defaultPageLimit), request.GetInt("offset", 0), maxPageLimit)
	rounds, err := s.rounds.List(ctx, store.RoundFilter{
		Status: game.StatusOpen,
		RoomID: request.GetString("room", ""),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return mapDomainError(err), nil
	}
	return toolResult(map[string]any{"items": rounds, "limit": limit, "offset": offset}), nil
}
