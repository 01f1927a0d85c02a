// Package settlement runs the round lifecycle: creation with a published
// commitment, verified joins, lock, reveal with a reproducible draw, payout and
// refunds, and the janitor that drives rounds forward on their own.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"round-settlement/internal/config"
	"round-settlement/internal/game"
	"round-settlement/internal/ledger"
	"round-settlement/internal/store"
	"round-settlement/internal/stream"
	"round-settlement/internal/transparency"
)

type Service struct {
	repo   Repository
	ledger ledger.Ledger
	tlog   Publisher
	payer  Payer
	alerts Alerter
	events *stream.EventBuffer

	locks  *roundLocks
	proofs *cache.Cache
	rooms  map[string]config.RoomPreset
	opts   Options

	now    func() time.Time
	commit game.Committer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCommitter(c game.Committer) Option {
	return func(s *Service) { s.commit = c }
}

func WithAlerter(a Alerter) Option {
	return func(s *Service) {
		if a != nil {
			s.alerts = a
		}
	}
}

func WithRooms(rooms []config.RoomPreset) Option {
	return func(s *Service) {
		for _, r := range rooms {
			s.rooms[r.ID] = r
		}
	}
}

func New(repo Repository, led ledger.Ledger, tlog Publisher, payer Payer, opts Options, options ...Option) *Service {
	if opts.ProofGuardTTL <= 0 {
		opts.ProofGuardTTL = time.Hour
	}
	s := &Service{
		repo:   repo,
		ledger: led,
		tlog:   tlog,
		payer:  payer,
		alerts: noopAlerter{},
		events: stream.NewEventBuffer(opts.EventBacklog),
		locks:  newRoundLocks(),
		proofs: cache.New(opts.ProofGuardTTL, 2*opts.ProofGuardTTL),
		rooms:  map[string]config.RoomPreset{},
		opts:   opts,
		now:    time.Now,
		commit: game.GenerateCommitment,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Events is the live feed of round lifecycle changes.
func (s *Service) Events() *stream.EventBuffer {
	return s.events
}

func (s *Service) Rooms() []config.RoomPreset {
	out := make([]config.RoomPreset, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*game.Round, error) {
	params, err := s.roundParams(req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	params.ID = store.NewID()
	params.Deadline = now.Add(req.Duration)
	if preset, ok := s.rooms[params.RoomID]; ok && req.Duration <= 0 {
		params.Deadline = now.Add(preset.Duration.Duration)
	}
	c, err := s.commit(params.ID)
	if err != nil {
		return nil, err
	}
	r, err := game.NewRound(params, c, now)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(r.ID)
	defer unlock()
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.publish(ctx, r, transparency.KindCommit, transparency.CommitMessage(r))
	if err := s.repo.Update(ctx, r); err != nil {
		log.Warn().Err(err).Str("round_id", r.ID).Msg("store commit receipt failed")
	}
	metricRoundsCreatedTotal.Add(1)
	log.Info().Str("round_id", r.ID).Str("room_id", r.RoomID).Str("commit_hash", r.CommitHash).Time("deadline", r.Deadline).Msg("round created")
	s.emit(EventRoundCreated, r)
	return r.Public(), nil
}

func (s *Service) roundParams(req CreateRequest) (game.RoundParams, error) {
	if req.RoomID == "" {
		req.RoomID = config.DefaultRoomID
	}
	p := game.RoundParams{
		RoomID:     req.RoomID,
		MinStake:   req.MinStake,
		MaxStake:   req.MaxStake,
		MaxPlayers: req.MaxPlayers,
	}
	preset, ok := s.rooms[req.RoomID]
	if !ok {
		if req.MinStake <= 0 || req.MaxStake <= 0 || req.Duration <= 0 {
			return game.RoundParams{}, fmt.Errorf("%w: unknown room %q", game.ErrInvalidRequest, req.RoomID)
		}
		return p, nil
	}
	if p.MinStake == 0 {
		p.MinStake = preset.MinStake
	}
	if p.MaxStake == 0 {
		p.MaxStake = preset.MaxStake
	}
	if p.MaxPlayers == 0 {
		p.MaxPlayers = preset.MaxPlayers
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*game.Round, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Public(), nil
}

func (s *Service) List(ctx context.Context, f store.RoundFilter) ([]*game.Round, error) {
	rounds, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]*game.Round, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, r.Public())
	}
	return out, nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*game.Round, error) {
	rounds, err := s.repo.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*game.Round, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, r.Public())
	}
	return out, nil
}

// Join admits a player after the stake transfer checks out on the ledger.
// Rejected joins leave the round untouched.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*game.Round, error) {
	if req.RoundID == "" || req.AccountID == "" || req.TransferProof == "" || req.StakeAmount <= 0 {
		return nil, game.ErrInvalidRequest
	}
	r, err := s.join(ctx, req)
	if err != nil {
		metricJoinsRejectedTotal.Add(1)
		log.Debug().Err(err).Str("round_id", req.RoundID).Str("account_id", req.AccountID).Msg("join rejected")
		return nil, err
	}
	metricJoinsTotal.Add(1)
	return r, nil
}

func (s *Service) join(ctx context.Context, req JoinRequest) (*game.Round, error) {
	if err := s.proofs.Add(req.TransferProof, req.RoundID, cache.DefaultExpiration); err != nil {
		return nil, game.ErrProofReused
	}
	admitted := false
	defer func() {
		if !admitted {
			s.proofs.Delete(req.TransferProof)
		}
	}()

	unlock := s.locks.lock(req.RoundID)
	defer unlock()

	r, err := s.load(ctx, req.RoundID)
	if err != nil {
		return nil, err
	}
	if err := r.CheckJoin(req.AccountID, req.StakeAmount, s.now()); err != nil {
		return nil, err
	}
	used, err := s.repo.ProofConsumed(ctx, req.TransferProof)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, game.ErrProofReused
	}
	if err := s.verifyTransfer(ctx, req); err != nil {
		return nil, err
	}

	now := s.now()
	if err := r.AddPlayer(game.Player{
		AccountID:     req.AccountID,
		StakeAmount:   req.StakeAmount,
		TransferProof: req.TransferProof,
		JoinedAt:      now,
	}, now); err != nil {
		return nil, err
	}
	locked := false
	if r.Full() {
		locked = r.Lock(now) == nil
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	admitted = true

	log.Info().Str("round_id", r.ID).Str("account_id", req.AccountID).Int64("stake", req.StakeAmount).Int64("total_pot", r.TotalPot).Msg("player joined")
	s.emit(EventPlayerJoined, r)
	if locked {
		metricLocksTotal.Add(1)
		log.Info().Str("round_id", r.ID).Int("players", len(r.Players)).Msg("round full, locked")
		s.emit(EventRoundLocked, r)
	}
	return r.Public(), nil
}

func (s *Service) verifyTransfer(ctx context.Context, req JoinRequest) error {
	err := s.ledger.VerifyTransfer(ctx, ledger.TransferCheck{
		Proof:  req.TransferProof,
		From:   req.AccountID,
		Amount: req.StakeAmount,
	})
	switch {
	case err == nil:
		return nil
	case ledger.IsVerificationFailure(err):
		return fmt.Errorf("%w: %v", game.ErrTransferVerificationFailed, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", game.ErrExternalService, err)
	}
}

func (s *Service) Lock(ctx context.Context, id string) (*game.Round, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.Lock(s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	metricLocksTotal.Add(1)
	log.Info().Str("round_id", r.ID).Int("players", len(r.Players)).Int64("total_pot", r.TotalPot).Msg("round locked")
	s.emit(EventRoundLocked, r)
	return r.Public(), nil
}

// Proof returns the selection proof of a completed round.
func (s *Service) Proof(ctx context.Context, id string) (*game.SelectionProof, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != game.StatusCompleted || r.Winner == nil {
		return nil, game.ErrRoundNotCompleted
	}
	p := r.Winner.SelectionProof
	p.PlayerStakes = append([]game.Stake(nil), p.PlayerStakes...)
	return &p, nil
}

func (s *Service) load(ctx context.Context, id string) (*game.Round, error) {
	if id == "" {
		return nil, game.ErrInvalidRequest
	}
	r, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, game.ErrRoundNotFound
	}
	return r, err
}

// publish appends msg and records the receipt on r. A failed publish is
// recorded too and never stops the round.
func (s *Service) publish(ctx context.Context, r *game.Round, kind transparency.Kind, msg transparency.Message) {
	rcpt, err := s.tlog.Publish(ctx, msg)
	if err != nil {
		metricPublishFailuresTotal.Add(1)
		log.Warn().Err(err).Str("round_id", r.ID).Str("kind", string(kind)).Msg("transparency publish failed")
	}
	r.Transparency = append(r.Transparency, transparency.Record(kind, rcpt, err, s.now()))
}

func (s *Service) emit(event string, r *game.Round) {
	s.events.Append(event, r.ID, r.Public())
}
