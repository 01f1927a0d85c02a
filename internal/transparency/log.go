// Package transparency appends round milestones to a public, sequenced topic so
// anyone can check a draw against the commitment published before it.
package transparency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"round-settlement/internal/game"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	KindCommit Kind = "commit"
	KindReveal Kind = "reveal"
	KindResult Kind = "result"
	KindCancel Kind = "cancel"
)

// ErrUnavailable marks topic failures worth retrying.
var ErrUnavailable = errors.New("topic_unavailable")

type Message struct {
	ID              string       `json:"id"`
	Kind            Kind         `json:"kind"`
	RoundID         string       `json:"round_id"`
	RoomID          string       `json:"room_id,omitempty"`
	CommitHash      string       `json:"commit_hash"`
	ServerSeed      string       `json:"server_seed,omitempty"`
	TotalPot        int64        `json:"total_pot,omitempty"`
	PlayerStakes    []game.Stake `json:"player_stakes,omitempty"`
	Hash            string       `json:"hash,omitempty"`
	Ticket          uint64       `json:"ticket,omitempty"`
	WinnerAccountID string       `json:"winner_account_id,omitempty"`
	Winnings        int64        `json:"winnings,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	Timestamp       time.Time    `json:"timestamp"`
}

type Receipt struct {
	SequenceNumber uint64 `json:"sequence_number"`
	ContentHash    string `json:"content_hash"`
}

// Topic is an append-only sequenced message sink.
type Topic interface {
	Append(ctx context.Context, payload []byte) (uint64, error)
}

type Log struct {
	topic    Topic
	attempts int
	base     time.Duration
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

func NewLog(topic Topic, attempts int, base time.Duration) *Log {
	if attempts < 1 {
		attempts = 3
	}
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	return &Log{topic: topic, attempts: attempts, base: base, now: time.Now, sleep: sleepCtx}
}

// Publish appends msg, retrying ErrUnavailable with exponential backoff.
// ID and Timestamp are filled in when empty.
func (l *Log) Publish(ctx context.Context, msg Message) (Receipt, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Receipt{}, err
	}
	sum := sha256.Sum256(payload)
	contentHash := hex.EncodeToString(sum[:])

	for attempt := 1; ; attempt++ {
		seq, err := l.topic.Append(ctx, payload)
		if err == nil {
			metricPublishTotal.Add(1)
			return Receipt{SequenceNumber: seq, ContentHash: contentHash}, nil
		}
		if !errors.Is(err, ErrUnavailable) || attempt >= l.attempts {
			metricPublishErrors.Add(1)
			return Receipt{ContentHash: contentHash}, fmt.Errorf("publish %s for %s: %w", msg.Kind, msg.RoundID, err)
		}
		delay := l.base * time.Duration(1<<(attempt-1))
		log.Debug().Err(err).Str("round_id", msg.RoundID).Str("kind", string(msg.Kind)).Int("attempt", attempt).Msg("transparency publish retry")
		if serr := l.sleep(ctx, delay); serr != nil {
			metricPublishErrors.Add(1)
			return Receipt{ContentHash: contentHash}, fmt.Errorf("publish %s for %s: %w", msg.Kind, msg.RoundID, err)
		}
	}
}

// Record turns a publish outcome into the entry stored on the round.
func Record(kind Kind, rcpt Receipt, err error, at time.Time) game.TransparencyRecord {
	rec := game.TransparencyRecord{
		Kind:           string(kind),
		SequenceNumber: rcpt.SequenceNumber,
		ContentHash:    rcpt.ContentHash,
		PublishedAt:    at,
	}
	if err != nil {
		rec.SequenceNumber = 0
		rec.Error = err.Error()
	}
	return rec
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
