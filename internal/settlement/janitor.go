package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"round-settlement/internal/game"
	"round-settlement/internal/store"
)

const (
	sweepBatch          = 200
	reasonDeadlineEnded = "deadline_expired"
)

func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rep, err := s.Sweep(ctx)
				if err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("janitor sweep failed")
				}
				if rep != (SweepReport{}) {
					log.Debug().Int("locked", rep.Locked).Int("cancelled", rep.Cancelled).
						Int("revealed", rep.Revealed).Int("purged", rep.Purged).Msg("janitor sweep")
				}
			}
		}
	}()
}

// Sweep drives rounds that nobody is acting on: open rounds close to their
// deadline are locked when they have enough players, open rounds past it are
// cancelled and refunded, locked rounds are revealed after the reveal delay,
// and finished rounds past retention are purged.
func (s *Service) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	var errs []error
	now := s.now()

	horizon := now.Add(s.opts.AutoLockLead)
	due, err := s.repo.List(ctx, store.RoundFilter{Status: game.StatusOpen, DeadlineBefore: &horizon, Limit: sweepBatch})
	if err != nil {
		return rep, err
	}
	for _, r := range due {
		switch {
		case !now.Before(r.Deadline):
			cancelled, err := s.expire(ctx, r.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if cancelled {
				rep.Cancelled++
			}
		case len(r.Players) >= game.MinPlayersToLock:
			if _, err := s.Lock(ctx, r.ID); err != nil {
				if !isStale(err) {
					errs = append(errs, err)
				}
				continue
			}
			rep.Locked++
		}
	}

	if s.opts.AutoReveal {
		cutoff := now.Add(-s.opts.RevealDelay)
		locked, err := s.repo.List(ctx, store.RoundFilter{Status: game.StatusLocked, LockedBefore: &cutoff, Limit: sweepBatch})
		if err != nil {
			return rep, errors.Join(append(errs, err)...)
		}
		for _, r := range locked {
			if _, err := s.Reveal(ctx, r.ID); err != nil {
				if !isStale(err) {
					errs = append(errs, err)
				}
				continue
			}
			rep.Revealed++
		}
	}

	if s.opts.RoundRetention > 0 {
		n, err := s.repo.PurgeFinishedBefore(ctx, now.Add(-s.opts.RoundRetention))
		if err != nil {
			errs = append(errs, err)
		}
		rep.Purged = n
		metricPurgedTotal.Add(int64(n))
	}
	return rep, errors.Join(errs...)
}

func (s *Service) expire(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	if r.Status != game.StatusOpen || s.now().Before(r.Deadline) {
		return false, nil
	}
	if _, err := s.cancelLocked(ctx, r, reasonDeadlineEnded); err != nil {
		return false, err
	}
	return true, nil
}

// isStale reports errors caused by another actor moving the round first.
func isStale(err error) bool {
	return errors.Is(err, game.ErrRoundNotOpen) ||
		errors.Is(err, game.ErrRoundNotLocked) ||
		errors.Is(err, game.ErrVersionConflict) ||
		errors.Is(err, game.ErrDeadlinePassed)
}
