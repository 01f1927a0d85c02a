// Package public builds the read-only views served to players and auditors.
package public

import (
	"context"
	"encoding/json"

	"round-settlement/internal/game"
	"round-settlement/internal/transparency"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	statsPageSize    = 200
)

type RoundsByAccount interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*game.Round, error)
}

type Service struct {
	rounds  RoundsByAccount
	topic   transparency.Reader
	topicID string
}

func NewService(rounds RoundsByAccount, topic transparency.Reader, topicID string) *Service {
	return &Service{rounds: rounds, topic: topic, topicID: topicID}
}

func (s *Service) UserStats(ctx context.Context, accountID string) (*UserStatsResponse, error) {
	if accountID == "" {
		return nil, ErrInvalidRequest
	}
	out := &UserStatsResponse{AccountID: accountID}
	for offset := 0; ; offset += statsPageSize {
		rounds, err := s.rounds.ListByAccount(ctx, accountID, statsPageSize, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range rounds {
			accumulate(out, r, accountID)
		}
		if len(rounds) < statsPageSize {
			break
		}
	}
	out.Net = out.TotalWon - out.TotalStaked
	return out, nil
}

func accumulate(out *UserStatsResponse, r *game.Round, accountID string) {
	stake := stakeOf(r, accountID)
	out.RoundsPlayed++
	switch r.Status {
	case game.StatusCancelled:
		out.RoundsRefunded++
		return
	case game.StatusCompleted:
		if r.Winner != nil && r.Winner.AccountID == accountID {
			out.RoundsWon++
			out.TotalWon += r.Winner.Winnings
		}
	}
	out.TotalStaked += stake
}

func (s *Service) UserRounds(ctx context.Context, accountID string, limit, offset int) (*UserRoundsResponse, error) {
	if accountID == "" || offset < 0 {
		return nil, ErrInvalidRequest
	}
	limit = clampPageLimit(limit)
	rounds, err := s.rounds.ListByAccount(ctx, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	items := make([]UserRoundItem, 0, len(rounds))
	for _, r := range rounds {
		it := UserRoundItem{
			RoundID:     r.ID,
			RoomID:      r.RoomID,
			Status:      string(r.Status),
			StakeAmount: stakeOf(r, accountID),
			TotalPot:    r.TotalPot,
			CreatedAt:   r.CreatedAt,
			FinishedAt:  r.CompletedAt,
		}
		if r.CancelledAt != nil {
			it.FinishedAt = r.CancelledAt
		}
		if r.Winner != nil && r.Winner.AccountID == accountID {
			it.Won = true
			it.Winnings = r.Winner.Winnings
		}
		items = append(items, it)
	}
	return &UserRoundsResponse{Items: items, Limit: limit, Offset: offset}, nil
}

// HCSMessages returns the newest transparency messages, decoded when they are JSON.
func (s *Service) HCSMessages(ctx context.Context, limit int) (*HCSMessagesResponse, error) {
	if s.topic == nil {
		return nil, ErrNotFound
	}
	entries, err := s.topic.Messages(ctx, clampPageLimit(limit))
	if err != nil {
		return nil, err
	}
	items := make([]HCSMessage, 0, len(entries))
	for _, e := range entries {
		var msg any = string(e.Message)
		var decoded map[string]any
		if err := json.Unmarshal(e.Message, &decoded); err == nil {
			msg = decoded
		}
		items = append(items, HCSMessage{
			SequenceNumber:     e.SequenceNumber,
			ConsensusTimestamp: e.ConsensusTimestamp,
			Message:            msg,
			RunningHash:        e.RunningHash,
		})
	}
	return &HCSMessagesResponse{TopicID: s.topicID, Items: items}, nil
}

func stakeOf(r *game.Round, accountID string) int64 {
	for _, p := range r.Players {
		if p.AccountID == accountID {
			return p.StakeAmount
		}
	}
	return 0
}

func clampPageLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}
