package settlement

import (
	"context"
	"time"

	"round-settlement/internal/game"
	"round-settlement/internal/opsalert"
	"round-settlement/internal/payout"
	"round-settlement/internal/store"
	"round-settlement/internal/transparency"
)

const (
	EventRoundCreated   = "round_created"
	EventPlayerJoined   = "player_joined"
	EventRoundLocked    = "round_locked"
	EventRoundCompleted = "round_completed"
	EventRoundCancelled = "round_cancelled"
	EventPayoutUpdated  = "payout_updated"
)

// Repository persists rounds. Update must fail with game.ErrVersionConflict
// when the stored version differs from r.Version.
type Repository interface {
	Create(ctx context.Context, r *game.Round) error
	Get(ctx context.Context, id string) (*game.Round, error)
	Update(ctx context.Context, r *game.Round) error
	ProofConsumed(ctx context.Context, proof string) (bool, error)
	List(ctx context.Context, f store.RoundFilter) ([]*game.Round, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*game.Round, error)
	PurgeFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Publisher interface {
	Publish(ctx context.Context, msg transparency.Message) (transparency.Receipt, error)
}

type Payer interface {
	Execute(ctx context.Context, job payout.Job) payout.Result
	Schedule(job payout.Job) bool
}

type Alerter interface {
	Notify(a opsalert.Alert)
}

// CreateRequest opens a round in RoomID. Zero fields are taken from the
// room preset; a room without a preset needs every field set.
type CreateRequest struct {
	RoomID     string
	MinStake   int64
	MaxStake   int64
	MaxPlayers int
	Duration   time.Duration
}

type JoinRequest struct {
	RoundID       string
	AccountID     string
	StakeAmount   int64
	TransferProof string
}

type SweepReport struct {
	Locked    int `json:"locked"`
	Cancelled int `json:"cancelled"`
	Revealed  int `json:"revealed"`
	Purged    int `json:"purged"`
}

type Options struct {
	AutoLockLead   time.Duration
	AutoReveal     bool
	RevealDelay    time.Duration
	RoundRetention time.Duration
	ProofGuardTTL  time.Duration
	EventBacklog   int
}

type noopAlerter struct{}

func (noopAlerter) Notify(opsalert.Alert) {}
