package transparency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"round-settlement/internal/hedera"
	"round-settlement/internal/hedera/mirror"
)

// Entry is one message as read back from the topic.
type Entry struct {
	SequenceNumber     uint64          `json:"sequence_number"`
	ConsensusTimestamp time.Time       `json:"consensus_timestamp"`
	Message            json.RawMessage `json:"message"`
	RunningHash        string          `json:"running_hash,omitempty"`
}

type Reader interface {
	Messages(ctx context.Context, limit int) ([]Entry, error)
}

// MemoryTopic is an in-process topic; Messages returns newest first.
type MemoryTopic struct {
	mu       sync.Mutex
	entries  []Entry
	failures []error
	now      func() time.Time
}

func NewMemoryTopic() *MemoryTopic {
	return &MemoryTopic{now: time.Now}
}

func (m *MemoryTopic) FailNext(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.failures = append(m.failures, err)
	}
}

func (m *MemoryTopic) Append(_ context.Context, payload []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return 0, err
	}
	if !json.Valid(payload) {
		return 0, errors.New("payload is not json")
	}
	seq := uint64(len(m.entries) + 1)
	m.entries = append(m.entries, Entry{
		SequenceNumber:     seq,
		ConsensusTimestamp: m.now().UTC(),
		Message:            append(json.RawMessage(nil), payload...),
	})
	return seq, nil
}

func (m *MemoryTopic) Messages(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

type Submitter interface {
	SubmitMessage(ctx context.Context, message []byte) (hedera.TopicReceipt, error)
}

// HederaTopic appends to a Hedera Consensus Service topic.
type HederaTopic struct {
	client Submitter
}

func NewHederaTopic(client Submitter) *HederaTopic {
	return &HederaTopic{client: client}
}

func (h *HederaTopic) Append(ctx context.Context, payload []byte) (uint64, error) {
	rcpt, err := h.client.SubmitMessage(ctx, payload)
	if err != nil {
		// Outcome-unknown is not retryable: the message may already have
		// reached consensus and a resubmit would duplicate its id on the topic.
		if errors.Is(err, hedera.ErrUnavailable) {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return 0, err
	}
	return rcpt.SequenceNumber, nil
}

type TopicMessageSource interface {
	TopicMessages(ctx context.Context, topicID string, limit int, order string) ([]mirror.TopicMessage, error)
}

// MirrorReader reads a Hedera topic back through the mirror node.
type MirrorReader struct {
	source  TopicMessageSource
	topicID string
}

func NewMirrorReader(source TopicMessageSource, topicID string) *MirrorReader {
	return &MirrorReader{source: source, topicID: topicID}
}

func (r *MirrorReader) Messages(ctx context.Context, limit int) ([]Entry, error) {
	msgs, err := r.source.TopicMessages(ctx, r.topicID, limit, "desc")
	if err != nil {
		if errors.Is(err, mirror.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		payload, err := m.Payload()
		if err != nil {
			continue
		}
		e := Entry{SequenceNumber: m.SequenceNumber, RunningHash: m.RunningHash}
		if ts, err := mirror.ParseTimestamp(m.ConsensusTimestamp); err == nil {
			e.ConsensusTimestamp = ts
		}
		if json.Valid(payload) {
			e.Message = payload
		} else {
			quoted, _ := json.Marshal(string(payload))
			e.Message = quoted
		}
		out = append(out, e)
	}
	return out, nil
}
