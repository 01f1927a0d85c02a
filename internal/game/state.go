package game

import "time"

type Status string

const (
	StatusOpen      Status = "open"
	StatusLocked    Status = "locked"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Finished reports whether no further transition is possible.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
	PayoutFailed  PayoutStatus = "failed"
)

const MinPlayersToLock = 2

type Player struct {
	AccountID     string    `json:"account_id"`
	StakeAmount   int64     `json:"stake_amount"`
	TransferProof string    `json:"transfer_proof"`
	JoinedAt      time.Time `json:"joined_at"`
}

type Winner struct {
	AccountID       string         `json:"account_id"`
	StakeAmount     int64          `json:"stake_amount"`
	Winnings        int64          `json:"winnings"`
	HouseCut        int64          `json:"house_cut"`
	SelectionProof  SelectionProof `json:"selection_proof"`
	PayoutReference string         `json:"payout_reference,omitempty"`
	PayoutStatus    PayoutStatus   `json:"payout_status"`
	PayoutError     string         `json:"payout_error,omitempty"`
	PayoutAttempts  int            `json:"payout_attempts"`
}

type Refund struct {
	AccountID string       `json:"account_id"`
	Amount    int64        `json:"amount"`
	Status    PayoutStatus `json:"status"`
	Reference string       `json:"reference,omitempty"`
	Error     string       `json:"error,omitempty"`
	Attempts  int          `json:"attempts"`
}

// TransparencyRecord is the receipt of one message appended to the public topic.
// Error is set when the message could not be published.
type TransparencyRecord struct {
	Kind           string    `json:"kind"`
	SequenceNumber uint64    `json:"sequence_number,omitempty"`
	ContentHash    string    `json:"content_hash,omitempty"`
	Error          string    `json:"error,omitempty"`
	PublishedAt    time.Time `json:"published_at"`
}

type Round struct {
	ID           string               `json:"id"`
	RoomID       string               `json:"room_id"`
	MinStake     int64                `json:"min_stake"`
	MaxStake     int64                `json:"max_stake"`
	MaxPlayers   int                  `json:"max_players"`
	Deadline     time.Time            `json:"deadline"`
	Status       Status               `json:"status"`
	Players      []Player             `json:"players"`
	TotalPot     int64                `json:"total_pot"`
	ServerSeed   string               `json:"server_seed"`
	CommitHash   string               `json:"commit_hash"`
	Winner       *Winner              `json:"winner,omitempty"`
	Refunds      []Refund             `json:"refunds,omitempty"`
	Transparency []TransparencyRecord `json:"transparency,omitempty"`
	CancelReason string               `json:"cancel_reason,omitempty"`
	Version      int64                `json:"version"`
	CreatedAt    time.Time            `json:"created_at"`
	LockedAt     *time.Time           `json:"locked_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	CancelledAt  *time.Time           `json:"cancelled_at,omitempty"`
}

type RoundParams struct {
	ID         string
	RoomID     string
	MinStake   int64
	MaxStake   int64
	MaxPlayers int
	Deadline   time.Time
}

func NewRound(p RoundParams, c Commitment, now time.Time) (*Round, error) {
	if p.ID == "" || p.RoomID == "" {
		return nil, ErrInvalidRound
	}
	if p.MinStake <= 0 || p.MaxStake < p.MinStake {
		return nil, ErrInvalidRound
	}
	if p.MaxPlayers != 0 && p.MaxPlayers < MinPlayersToLock {
		return nil, ErrInvalidRound
	}
	if !p.Deadline.After(now) {
		return nil, ErrInvalidRound
	}
	if c.ServerSeed == "" || c.CommitHash == "" {
		return nil, ErrInvalidRound
	}
	return &Round{
		ID:         p.ID,
		RoomID:     p.RoomID,
		MinStake:   p.MinStake,
		MaxStake:   p.MaxStake,
		MaxPlayers: p.MaxPlayers,
		Deadline:   p.Deadline,
		Status:     StatusOpen,
		Players:    []Player{},
		ServerSeed: c.ServerSeed,
		CommitHash: c.CommitHash,
		CreatedAt:  now,
	}, nil
}

// CheckJoin runs every admission rule that does not need the ledger.
func (r *Round) CheckJoin(accountID string, stake int64, now time.Time) error {
	if r.Status != StatusOpen {
		return ErrRoundNotOpen
	}
	if !now.Before(r.Deadline) {
		return ErrDeadlinePassed
	}
	if accountID == "" {
		return ErrInvalidRequest
	}
	if stake < r.MinStake || stake > r.MaxStake {
		return ErrStakeOutOfRange
	}
	if r.HasPlayer(accountID) {
		return ErrDuplicatePlayer
	}
	if r.MaxPlayers > 0 && len(r.Players) >= r.MaxPlayers {
		return ErrRoundFull
	}
	return nil
}

func (r *Round) AddPlayer(p Player, now time.Time) error {
	if err := r.CheckJoin(p.AccountID, p.StakeAmount, now); err != nil {
		return err
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = now
	}
	r.Players = append(r.Players, p)
	r.TotalPot += p.StakeAmount
	return nil
}

func (r *Round) HasPlayer(accountID string) bool {
	for _, p := range r.Players {
		if p.AccountID == accountID {
			return true
		}
	}
	return false
}

func (r *Round) Full() bool {
	return r.MaxPlayers > 0 && len(r.Players) >= r.MaxPlayers
}

func (r *Round) Lock(now time.Time) error {
	if r.Status != StatusOpen {
		return ErrRoundNotOpen
	}
	if len(r.Players) < MinPlayersToLock {
		return ErrNotEnoughPlayers
	}
	if !now.Before(r.Deadline) {
		return ErrDeadlinePassed
	}
	// The draw is taken over TotalPot; it must be exactly the stakes held.
	if r.TotalPot != r.SumStakes() {
		return ErrInvalidRound
	}
	r.Status = StatusLocked
	r.LockedAt = &now
	return nil
}

func (r *Round) Complete(w Winner, now time.Time) error {
	if r.Status != StatusLocked {
		return ErrRoundNotLocked
	}
	if !r.HasPlayer(w.AccountID) {
		return ErrInvalidRound
	}
	if w.PayoutStatus == "" {
		w.PayoutStatus = PayoutPending
	}
	r.Winner = &w
	r.Status = StatusCompleted
	r.CompletedAt = &now
	return nil
}

// Cancel closes an open round without a draw; every stake becomes a pending refund.
func (r *Round) Cancel(reason string, now time.Time) error {
	if r.Status != StatusOpen {
		return ErrRoundNotOpen
	}
	refunds := make([]Refund, 0, len(r.Players))
	for _, p := range r.Players {
		refunds = append(refunds, Refund{AccountID: p.AccountID, Amount: p.StakeAmount, Status: PayoutPending})
	}
	r.Refunds = refunds
	r.Status = StatusCancelled
	r.CancelReason = reason
	r.CancelledAt = &now
	return nil
}

func (r *Round) Stakes() []Stake {
	out := make([]Stake, 0, len(r.Players))
	for _, p := range r.Players {
		out = append(out, Stake{AccountID: p.AccountID, Amount: p.StakeAmount})
	}
	return out
}

func (r *Round) SumStakes() int64 {
	var total int64
	for _, p := range r.Players {
		total += p.StakeAmount
	}
	return total
}

func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	out := *r
	out.Players = make([]Player, len(r.Players))
	copy(out.Players, r.Players)
	out.Refunds = append([]Refund(nil), r.Refunds...)
	out.Transparency = append([]TransparencyRecord(nil), r.Transparency...)
	if r.Winner != nil {
		w := *r.Winner
		w.SelectionProof.PlayerStakes = append([]Stake(nil), r.Winner.SelectionProof.PlayerStakes...)
		out.Winner = &w
	}
	return &out
}

// SeedRevealed reports whether the server seed may leave the service.
func (r *Round) SeedRevealed() bool {
	return r.Status.Finished()
}

// Public strips the server seed while the round can still be drawn.
func (r *Round) Public() *Round {
	out := r.Clone()
	if !out.SeedRevealed() {
		out.ServerSeed = ""
	}
	return out
}
