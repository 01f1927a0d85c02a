package public

import "time"

type UserStatsResponse struct {
	AccountID      string `json:"account_id"`
	RoundsPlayed   int    `json:"rounds_played"`
	RoundsWon      int    `json:"rounds_won"`
	RoundsRefunded int    `json:"rounds_refunded"`
	TotalStaked    int64  `json:"total_staked"`
	TotalWon       int64  `json:"total_won"`
	Net            int64  `json:"net"`
}

type UserRoundsResponse struct {
	Items  []UserRoundItem `json:"items"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type UserRoundItem struct {
	RoundID     string     `json:"round_id"`
	RoomID      string     `json:"room_id"`
	Status      string     `json:"status"`
	StakeAmount int64      `json:"stake_amount"`
	TotalPot    int64      `json:"total_pot"`
	Won         bool       `json:"won"`
	Winnings    int64      `json:"winnings,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type HCSMessagesResponse struct {
	TopicID string       `json:"topic_id,omitempty"`
	Items   []HCSMessage `json:"items"`
}

type HCSMessage struct {
	SequenceNumber     uint64    `json:"sequence_number"`
	ConsensusTimestamp time.Time `json:"consensus_timestamp"`
	Message            any       `json:"message"`
	RunningHash        string    `json:"running_hash,omitempty"`
}
