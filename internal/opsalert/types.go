package opsalert

import (
	"context"
	"time"
)

type Event string

const (
	EventPayoutFailed    Event = "payout_failed"
	EventPayoutExhausted Event = "payout_exhausted"
	EventPayoutUnknown   Event = "payout_outcome_unknown"
	EventRefundFailed    Event = "refund_failed"
	EventRoundCancelled  Event = "round_cancelled"
)

// Alert is one operator-facing notice. Amount is in token minor units.
type Alert struct {
	Event     Event
	RoundID   string
	RoomID    string
	AccountID string
	Amount    int64
	Attempt   int
	Error     string
	At        time.Time
}

type Notifier interface {
	Start(ctx context.Context) error
	Notify(a Alert)
}

type Target struct {
	Platform       string   `json:"platform"`
	Endpoint       string   `json:"endpoint"`
	Secret         string   `json:"secret"`
	ScopeType      string   `json:"scope_type"`
	ScopeValue     string   `json:"scope_value"`
	EventAllowlist []string `json:"event_allowlist"`
	Enabled        bool     `json:"enabled"`
}

type Config struct {
	Enabled             bool
	ConfigPath          string
	ConfigReload        time.Duration
	Targets             []Target
	Workers             int
	RetryMax            int
	RetryBase           time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	RequestTimeout      time.Duration
	DispatchBuffer      int
}

type MessageField struct {
	Name   string
	Value  string
	Inline bool
}

type FormattedMessage struct {
	Title       string
	Content     string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []MessageField
}

type pushJob struct {
	Target    Target
	Alert     Alert
	Formatted FormattedMessage
	Attempt   int
}

func (j pushJob) key() string {
	return targetKey(j.Target)
}

func targetKey(t Target) string {
	return t.Platform + "|" + t.Endpoint + "|" + t.ScopeType + "|" + t.ScopeValue
}
