package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"round-settlement/internal/game"
)

func CommitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Print the commit hash of a server seed for a round",
		RunE:  runCommit,
	}
	cmd.Flags().StringP("seed", "s", "", "server seed (hex)")
	cmd.Flags().StringP("round", "r", "", "round id")
	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("round")
	return cmd
}

func runCommit(cmd *cobra.Command, _ []string) error {
	seed, _ := cmd.Flags().GetString("seed")
	roundID, _ := cmd.Flags().GetString("round")
	fmt.Fprintln(cmd.OutOrStdout(), game.CommitHash(seed, roundID))
	return nil
}

func VerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a revealed seed against the published commit hash",
		RunE:  runVerify,
	}
	cmd.Flags().StringP("seed", "s", "", "revealed server seed (hex)")
	cmd.Flags().StringP("round", "r", "", "round id")
	cmd.Flags().StringP("commit", "c", "", "published commit hash")
	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("round")
	_ = cmd.MarkFlagRequired("commit")
	return cmd
}

func runVerify(cmd *cobra.Command, _ []string) error {
	seed, _ := cmd.Flags().GetString("seed")
	roundID, _ := cmd.Flags().GetString("round")
	commit, _ := cmd.Flags().GetString("commit")
	if !game.VerifyCommitment(seed, roundID, commit) {
		return fmt.Errorf("commitment mismatch: sha256(seed+round) = %s", game.CommitHash(seed, roundID))
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func DrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Replay a draw from a proof file or from the server's stored proof",
		RunE:  runDraw,
	}
	cmd.Flags().StringP("file", "f", "", "selection proof JSON file")
	cmd.Flags().StringP("round", "r", "", "round id to fetch from --server")
	return cmd
}

func runDraw(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")
	roundID, _ := cmd.Flags().GetString("round")

	var proof game.SelectionProof
	switch {
	case file != "":
		raw, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &proof); err != nil {
			return fmt.Errorf("decode proof: %w", err)
		}
	case roundID != "":
		server, _ := cmd.Flags().GetString("server")
		p, err := fetchProof(cmd.Context(), server, roundID)
		if err != nil {
			return err
		}
		proof = *p
	default:
		return fmt.Errorf("one of --file or --round is required")
	}

	sel, err := game.SelectWinner(proof.ServerSeed, proof.RoundID, proof.PlayerStakes)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "round:   %s\n", proof.RoundID)
	fmt.Fprintf(out, "hash:    %s\n", sel.Hash)
	fmt.Fprintf(out, "ticket:  %d of %d\n", sel.Ticket, sel.TotalPot)
	fmt.Fprintf(out, "winner:  %s (index %d, stake %d)\n", sel.AccountID, sel.Index, sel.Stake)
	if err := game.VerifySelection(proof); err != nil {
		return fmt.Errorf("proof does not replay: %w", err)
	}
	fmt.Fprintln(out, "proof:   ok")
	return nil
}

func fetchProof(ctx context.Context, server, roundID string) (*game.SelectionProof, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	endpoint := strings.TrimRight(server, "/") + "/api/rounds/" + url.PathEscape(roundID) + "/proof"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload struct {
		Proof game.SelectionProof `json:"proof"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode proof response: %w", err)
	}
	return &payload.Proof, nil
}

func WatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the live round feed",
		RunE:  runWatch,
	}
	cmd.Flags().StringP("round", "r", "", "only events for this round")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	wsURL, _ := cmd.Flags().GetString("ws")
	roundID, _ := cmd.Flags().GetString("round")
	if roundID != "" {
		u, err := url.Parse(wsURL)
		if err != nil {
			return err
		}
		q := u.Query()
		q.Set("round_id", roundID)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()
	return printFeed(conn, cmd.OutOrStdout())
}

// printFeed writes one line per round event until the connection ends.
func printFeed(conn *websocket.Conn, out io.Writer) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}
		var msg struct {
			Type  string `json:"type"`
			Event struct {
				EventID  string          `json:"event_id"`
				Event    string          `json:"event"`
				RoundID  string          `json:"round_id"`
				ServerTS int64           `json:"server_ts"`
				Data     json.RawMessage `json:"data"`
			} `json:"event"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "round_event" {
			continue
		}
		var round struct {
			Status   string `json:"status"`
			TotalPot int64  `json:"total_pot"`
			Players  []any  `json:"players"`
		}
		_ = json.Unmarshal(msg.Event.Data, &round)
		fmt.Fprintf(out, "%s %-16s %s status=%s players=%d pot=%d\n",
			time.UnixMilli(msg.Event.ServerTS).UTC().Format(time.RFC3339),
			msg.Event.Event, msg.Event.RoundID, round.Status, len(round.Players), round.TotalPot)
	}
}
