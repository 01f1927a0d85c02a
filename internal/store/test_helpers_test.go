package store_test

import (
	"testing"
	"time"

	"round-settlement/internal/game"
)

func mustRound(t *testing.T, id string, now time.Time) *game.Round {
	t.Helper()
	c, err := game.FixedCommitter("seed-" + id)(id)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	r, err := game.NewRound(game.RoundParams{
		ID:       id,
		RoomID:   "room-a",
		MinStake: 10,
		MaxStake: 100,
		Deadline: now.Add(time.Minute),
	}, c, now)
	if err != nil {
		t.Fatalf("new round: %v", err)
	}
	return r
}
