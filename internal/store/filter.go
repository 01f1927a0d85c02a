package store

import (
	"time"

	"round-settlement/internal/game"
)

// RoundFilter narrows List. Zero fields do not filter.
type RoundFilter struct {
	Status         game.Status
	RoomID         string
	DeadlineBefore *time.Time
	LockedBefore   *time.Time
	Limit          int
	Offset         int
}

func (f RoundFilter) match(r *game.Round) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.RoomID != "" && r.RoomID != f.RoomID {
		return false
	}
	if f.DeadlineBefore != nil && !r.Deadline.Before(*f.DeadlineBefore) {
		return false
	}
	if f.LockedBefore != nil && (r.LockedAt == nil || !r.LockedAt.Before(*f.LockedBefore)) {
		return false
	}
	return true
}

func (f RoundFilter) limit() int {
	if f.Limit <= 0 {
		return 50
	}
	return f.Limit
}

func finishedAt(r *game.Round) *time.Time {
	if r.CompletedAt != nil {
		return r.CompletedAt
	}
	return r.CancelledAt
}
