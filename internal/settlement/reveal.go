package settlement

import (
	"context"

	"github.com/rs/zerolog/log"

	"round-settlement/internal/game"
	"round-settlement/internal/opsalert"
	"round-settlement/internal/payout"
	"round-settlement/internal/transparency"
)

// Reveal draws the winner of a locked round, publishes the seed and result,
// and makes the first payout attempt. A failed payout does not undo the draw:
// the round completes with the failure recorded and retries queued. Transfers
// are not cancelled with the caller's context once started.
func (s *Service) Reveal(ctx context.Context, id string) (*game.Round, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != game.StatusLocked {
		return nil, game.ErrRoundNotLocked
	}
	proof, sel, err := game.BuildSelectionProof(r.ServerSeed, r.ID, r.CommitHash, r.Stakes())
	if err != nil {
		return nil, err
	}
	winnings, cut := game.Winnings(r.TotalPot)
	now := s.now()
	if err := r.Complete(game.Winner{
		AccountID:      sel.AccountID,
		StakeAmount:    r.Players[sel.Index].StakeAmount,
		Winnings:       winnings,
		HouseCut:       cut,
		SelectionProof: proof,
		PayoutStatus:   game.PayoutPending,
	}, now); err != nil {
		return nil, err
	}
	// The result is durable before any money moves.
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	metricRevealsTotal.Add(1)
	log.Info().Str("round_id", r.ID).Str("winner", sel.AccountID).Uint64("ticket", sel.Ticket).
		Int64("total_pot", r.TotalPot).Int64("winnings", winnings).Msg("round revealed")

	s.publish(ctx, r, transparency.KindReveal, transparency.RevealMessage(r))
	s.publish(ctx, r, transparency.KindResult, transparency.ResultMessage(r))

	res := s.payer.Execute(context.WithoutCancel(ctx), payout.NewJob(r.ID, payout.KindPayout, sel.AccountID, winnings, 0))
	s.applyResult(r, res)
	if err := s.repo.Update(ctx, r); err != nil {
		log.Error().Err(err).Str("round_id", r.ID).Str("reference", res.Reference).Msg("store payout outcome failed")
	}
	s.retryLater(res)
	s.followUp(r, res)
	s.emit(EventRoundCompleted, r)
	return r.Public(), nil
}

// Cancel closes an open round without a draw and refunds every stake.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*game.Round, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.cancelLocked(ctx, r, reason)
}

func (s *Service) cancelLocked(ctx context.Context, r *game.Round, reason string) (*game.Round, error) {
	if reason == "" {
		reason = "cancelled"
	}
	if err := r.Cancel(reason, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	metricCancelsTotal.Add(1)
	log.Info().Str("round_id", r.ID).Str("reason", reason).Int("refunds", len(r.Refunds)).Msg("round cancelled")
	s.publish(ctx, r, transparency.KindCancel, transparency.CancelMessage(r))

	results := make([]payout.Result, 0, len(r.Refunds))
	for _, rf := range r.Refunds {
		res := s.payer.Execute(context.WithoutCancel(ctx), payout.NewJob(r.ID, payout.KindRefund, rf.AccountID, rf.Amount, 0))
		s.applyResult(r, res)
		results = append(results, res)
	}
	if err := s.repo.Update(ctx, r); err != nil {
		log.Error().Err(err).Str("round_id", r.ID).Msg("store refund outcomes failed")
	}
	for _, res := range results {
		s.retryLater(res)
		s.followUp(r, res)
	}
	s.alerts.Notify(opsalert.Alert{
		Event:   opsalert.EventRoundCancelled,
		RoundID: r.ID,
		RoomID:  r.RoomID,
		Amount:  r.TotalPot,
		Error:   reason,
		At:      s.now(),
	})
	s.emit(EventRoundCancelled, r)
	return r.Public(), nil
}
