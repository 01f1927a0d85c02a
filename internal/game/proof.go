package game

import "fmt"

// SelectionProof carries everything a third party needs to replay a draw.
type SelectionProof struct {
	RoundID         string  `json:"round_id"`
	ServerSeed      string  `json:"server_seed"`
	CommitHash      string  `json:"commit_hash"`
	Hash            string  `json:"hash"`
	Ticket          uint64  `json:"ticket"`
	TotalPot        int64   `json:"total_pot"`
	PlayerStakes    []Stake `json:"player_stakes"`
	WinnerIndex     int     `json:"winner_index"`
	WinnerAccountID string  `json:"winner_account_id"`
}

func BuildSelectionProof(serverSeed, roundID, commitHash string, stakes []Stake) (SelectionProof, Selection, error) {
	sel, err := SelectWinner(serverSeed, roundID, stakes)
	if err != nil {
		return SelectionProof{}, Selection{}, err
	}
	return SelectionProof{
		RoundID:         roundID,
		ServerSeed:      serverSeed,
		CommitHash:      commitHash,
		Hash:            sel.Hash,
		Ticket:          sel.Ticket,
		TotalPot:        sel.TotalPot,
		PlayerStakes:    append([]Stake(nil), stakes...),
		WinnerIndex:     sel.Index,
		WinnerAccountID: sel.AccountID,
	}, sel, nil
}

// VerifySelection replays the draw described by p and checks every derived field.
// A proof without a commit hash cannot show the seed was fixed in advance and is rejected.
func VerifySelection(p SelectionProof) error {
	if p.CommitHash == "" {
		return fmt.Errorf("%w: missing commit hash", ErrProofMismatch)
	}
	if !VerifyCommitment(p.ServerSeed, p.RoundID, p.CommitHash) {
		return fmt.Errorf("%w: commit hash does not match server seed", ErrProofMismatch)
	}
	sel, err := SelectWinner(p.ServerSeed, p.RoundID, p.PlayerStakes)
	if err != nil {
		return err
	}
	switch {
	case sel.Hash != p.Hash:
		return fmt.Errorf("%w: hash", ErrProofMismatch)
	case sel.TotalPot != p.TotalPot:
		return fmt.Errorf("%w: total pot", ErrProofMismatch)
	case sel.Ticket != p.Ticket:
		return fmt.Errorf("%w: ticket", ErrProofMismatch)
	case sel.Index != p.WinnerIndex || sel.AccountID != p.WinnerAccountID:
		return fmt.Errorf("%w: winner", ErrProofMismatch)
	}
	return nil
}
