package transparency

import "round-settlement/internal/game"

func CommitMessage(r *game.Round) Message {
	return Message{
		Kind:       KindCommit,
		RoundID:    r.ID,
		RoomID:     r.RoomID,
		CommitHash: r.CommitHash,
	}
}

func RevealMessage(r *game.Round) Message {
	return Message{
		Kind:       KindReveal,
		RoundID:    r.ID,
		RoomID:     r.RoomID,
		CommitHash: r.CommitHash,
		ServerSeed: r.ServerSeed,
	}
}

func ResultMessage(r *game.Round) Message {
	msg := Message{
		Kind:       KindResult,
		RoundID:    r.ID,
		RoomID:     r.RoomID,
		CommitHash: r.CommitHash,
		ServerSeed: r.ServerSeed,
		TotalPot:   r.TotalPot,
	}
	if w := r.Winner; w != nil {
		msg.PlayerStakes = w.SelectionProof.PlayerStakes
		msg.Hash = w.SelectionProof.Hash
		msg.Ticket = w.SelectionProof.Ticket
		msg.WinnerAccountID = w.AccountID
		msg.Winnings = w.Winnings
	}
	return msg
}

func CancelMessage(r *game.Round) Message {
	return Message{
		Kind:         KindCancel,
		RoundID:      r.ID,
		RoomID:       r.RoomID,
		CommitHash:   r.CommitHash,
		ServerSeed:   r.ServerSeed,
		TotalPot:     r.TotalPot,
		PlayerStakes: r.Stakes(),
		Reason:       r.CancelReason,
	}
}
