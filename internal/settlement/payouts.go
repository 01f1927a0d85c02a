package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"round-settlement/internal/game"
	"round-settlement/internal/ledger"
	"round-settlement/internal/opsalert"
	"round-settlement/internal/payout"
	"round-settlement/internal/store"
)

const (
	resultUpdateAttempts = 3
	resultUpdateTimeout  = 10 * time.Second
)

// errInterrupted marks transfers that were pending when the process stopped.
var errInterrupted = errors.New("payout interrupted by restart; check the ledger before retrying")

// applyResult copies one transfer outcome onto the matching winner or refund.
// Outcomes for entries already paid are ignored.
func (s *Service) applyResult(r *game.Round, res payout.Result) bool {
	switch res.Job.Kind {
	case payout.KindPayout:
		w := r.Winner
		if w == nil || w.AccountID != res.Job.AccountID || w.PayoutStatus == game.PayoutPaid {
			return false
		}
		w.PayoutAttempts = res.Job.Attempt
		w.PayoutStatus, w.PayoutReference, w.PayoutError = outcome(res)
		return true
	case payout.KindRefund:
		for i := range r.Refunds {
			rf := &r.Refunds[i]
			if rf.AccountID != res.Job.AccountID || rf.Status == game.PayoutPaid {
				continue
			}
			rf.Attempts = res.Job.Attempt
			rf.Status, rf.Reference, rf.Error = outcome(res)
			return true
		}
	}
	return false
}

// retryLater hands a retryable failure from a synchronous attempt to the
// payout workers.
func (s *Service) retryLater(res payout.Result) {
	if res.Err != nil && !res.Final {
		s.payer.Schedule(res.Job)
	}
}

func outcome(res payout.Result) (game.PayoutStatus, string, string) {
	switch {
	case res.Err == nil:
		return game.PayoutPaid, res.Reference, ""
	case res.Final:
		return game.PayoutFailed, "", res.Err.Error()
	default:
		return game.PayoutPending, "", res.Err.Error()
	}
}

// followUp logs a transfer outcome and alerts the operator on failures.
// Rescheduling is left to whoever owns the attempt.
func (s *Service) followUp(r *game.Round, res payout.Result) {
	job := res.Job
	if res.Err == nil {
		log.Info().Str("round_id", r.ID).Str("account_id", job.AccountID).Str("kind", string(job.Kind)).
			Int64("amount", job.Amount).Str("reference", res.Reference).Msg("transfer settled")
		return
	}
	alert := opsalert.Alert{
		RoundID:   r.ID,
		RoomID:    r.RoomID,
		AccountID: job.AccountID,
		Amount:    job.Amount,
		Attempt:   job.Attempt,
		Error:     res.Err.Error(),
		At:        s.now(),
	}
	switch {
	case !res.Final:
		alert.Event = opsalert.EventPayoutFailed
		if job.Kind == payout.KindRefund {
			alert.Event = opsalert.EventRefundFailed
		}
	case errors.Is(res.Err, ledger.ErrOutcomeUnknown) || errors.Is(res.Err, errInterrupted):
		alert.Event = opsalert.EventPayoutUnknown
	case job.Kind == payout.KindRefund:
		alert.Event = opsalert.EventRefundFailed
	default:
		alert.Event = opsalert.EventPayoutExhausted
	}
	log.Warn().Err(res.Err).Str("round_id", r.ID).Str("account_id", job.AccountID).Str("kind", string(job.Kind)).
		Int("attempt", job.Attempt).Bool("final", res.Final).Msg("transfer failed")
	s.alerts.Notify(alert)
}

// HandlePayoutResult records the outcome of an asynchronous retry.
func (s *Service) HandlePayoutResult(res payout.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), resultUpdateTimeout)
	defer cancel()

	unlock := s.locks.lock(res.Job.RoundID)
	defer unlock()

	for attempt := 1; attempt <= resultUpdateAttempts; attempt++ {
		r, err := s.load(ctx, res.Job.RoundID)
		if err != nil {
			log.Error().Err(err).Str("round_id", res.Job.RoundID).Str("reference", res.Reference).Msg("load round for payout result failed")
			return
		}
		if !s.applyResult(r, res) {
			return
		}
		err = s.repo.Update(ctx, r)
		if errors.Is(err, game.ErrVersionConflict) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("round_id", r.ID).Str("reference", res.Reference).Msg("store payout result failed")
			return
		}
		s.followUp(r, res)
		s.emit(EventPayoutUpdated, r)
		return
	}
	log.Error().Str("round_id", res.Job.RoundID).Str("reference", res.Reference).Msg("payout result lost to concurrent updates")
}

// RetryPayout makes one more attempt at every failed transfer of a finished
// round. It is the operator's path after automatic retries gave up.
func (s *Service) RetryPayout(ctx context.Context, id string) (*game.Round, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs := retryJobs(r)
	if len(jobs) == 0 {
		return nil, game.ErrNothingToRetry
	}
	results := make([]payout.Result, 0, len(jobs))
	for _, job := range jobs {
		res := s.payer.Execute(context.WithoutCancel(ctx), job)
		// Manual retries are not rescheduled.
		res.Final = res.Err != nil
		s.applyResult(r, res)
		results = append(results, res)
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	for _, res := range results {
		s.followUp(r, res)
	}
	s.emit(EventPayoutUpdated, r)
	for _, res := range results {
		if res.Err != nil {
			return r.Public(), game.ErrPayoutFailed
		}
	}
	return r.Public(), nil
}

func retryJobs(r *game.Round) []payout.Job {
	var jobs []payout.Job
	if w := r.Winner; r.Status == game.StatusCompleted && w != nil && w.PayoutStatus == game.PayoutFailed {
		jobs = append(jobs, payout.NewJob(r.ID, payout.KindPayout, w.AccountID, w.Winnings, w.PayoutAttempts))
	}
	if r.Status == game.StatusCancelled {
		for _, rf := range r.Refunds {
			if rf.Status == game.PayoutFailed {
				jobs = append(jobs, payout.NewJob(r.ID, payout.KindRefund, rf.AccountID, rf.Amount, rf.Attempts))
			}
		}
	}
	return jobs
}

// ResumePayouts runs at startup. Transfers still pending belonged to the
// previous process and may have been in flight, so they are marked failed and
// handed to the operator instead of being sent again.
func (s *Service) ResumePayouts(ctx context.Context) (int, error) {
	flagged := 0
	for _, status := range []game.Status{game.StatusCompleted, game.StatusCancelled} {
		for offset := 0; ; {
			rounds, err := s.repo.List(ctx, store.RoundFilter{Status: status, Limit: 200, Offset: offset})
			if err != nil {
				return flagged, err
			}
			for _, r := range rounds {
				n, err := s.flagInterrupted(ctx, r.ID)
				if err != nil {
					return flagged, err
				}
				flagged += n
			}
			if len(rounds) < 200 {
				break
			}
			offset += len(rounds)
		}
	}
	return flagged, nil
}

func (s *Service) flagInterrupted(ctx context.Context, id string) (int, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	var results []payout.Result
	if w := r.Winner; w != nil && w.PayoutStatus == game.PayoutPending {
		results = append(results, payout.Result{
			Job: payout.Job{RoundID: r.ID, Kind: payout.KindPayout, AccountID: w.AccountID, Amount: w.Winnings, Attempt: w.PayoutAttempts},
			Err: errInterrupted, Final: true,
		})
	}
	for _, rf := range r.Refunds {
		if rf.Status == game.PayoutPending {
			results = append(results, payout.Result{
				Job: payout.Job{RoundID: r.ID, Kind: payout.KindRefund, AccountID: rf.AccountID, Amount: rf.Amount, Attempt: rf.Attempts},
				Err: errInterrupted, Final: true,
			})
		}
	}
	if len(results) == 0 {
		return 0, nil
	}
	for _, res := range results {
		s.applyResult(r, res)
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return 0, err
	}
	for _, res := range results {
		s.followUp(r, res)
	}
	return len(results), nil
}
