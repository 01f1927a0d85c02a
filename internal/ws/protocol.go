package ws

import "round-settlement/internal/stream"

const ProtocolVersion = "1.0"

// SubscribeMessage narrows the feed to one round; an empty RoundID restores the
// full feed. LastEventID replays what was missed since a previous connection.
type SubscribeMessage struct {
	Type        string `json:"type"`
	RoundID     string `json:"round_id,omitempty"`
	LastEventID string `json:"last_event_id,omitempty"`
}

type SubscribeResult struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ok              bool   `json:"ok"`
	Error           string `json:"error,omitempty"`
	RoundID         string `json:"round_id,omitempty"`
}

type Hello struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RoundID         string `json:"round_id,omitempty"`
}

// RoundEvent wraps one lifecycle event from the settlement service.
type RoundEvent struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Event           stream.Event `json:"event"`
}
