package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"round-settlement/internal/game"
)

func (s *Server) registerVerifyTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"verify_commitment",
			mcp.WithDescription("Check that sha256(server_seed + round_id) equals the published commit hash"),
			mcp.WithString("server_seed", mcp.Required(), mcp.Description("Revealed server seed, hex")),
			mcp.WithString("round_id", mcp.Required(), mcp.Description("Round id")),
			mcp.WithString("commit_hash", mcp.Required(), mcp.Description("Commit hash published at round creation")),
		),
		s.handleVerifyCommitment,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"verify_selection",
			mcp.WithDescription("Replay a draw from a selection proof, or from the stored proof of round_id"),
			mcp.WithString("proof_json", mcp.Description("Selection proof as JSON")),
			mcp.WithString("round_id", mcp.Description("Round id whose stored proof is replayed when proof_json is empty")),
		),
		s.handleVerifySelection,
	)
}

func (s *Server) handleVerifyCommitment(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	seed, err := request.RequireString("server_seed")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	roundID, err := request.RequireString("round_id")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	commitHash, err := request.RequireString("commit_hash")
	if err != nil {
		return toolError("invalid_request", err.Error()), nil
	}
	return toolResult(map[string]any{
		"round_id": roundID,
		"valid":    game.VerifyCommitment(seed, roundID, commitHash),
		"expected": game.CommitHash(seed, roundID),
	}), nil
}

func (s *Server) handleVerifySelection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var proof game.SelectionProof
	if raw := request.GetString("proof_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &proof); err != nil {
			return toolError("invalid_request", "proof_json: "+err.Error()), nil
		}
	} else {
		roundID := request.GetString("round_id", "")
		if roundID == "" {
			return toolError("invalid_request", "proof_json or round_id is required"), nil
		}
		p, err := s.rounds.Proof(ctx, roundID)
		if err != nil {
			return mapDomainError(err), nil
		}
		proof = *p
	}
	out := map[string]any{
		"round_id":          proof.RoundID,
		"winner_account_id": proof.WinnerAccountID,
		"valid":             true,
	}
	if err := game.VerifySelection(proof); err != nil {
		out["valid"] = false
		out["error"] = err.Error()
	}
	return toolResult(out), nil
}
