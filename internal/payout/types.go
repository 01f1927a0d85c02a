package payout

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindPayout Kind = "payout"
	KindRefund Kind = "refund"
)

// Job is one transfer out of the pool. Attempt counts executions so far.
type Job struct {
	ID        string `json:"id"`
	RoundID   string `json:"round_id"`
	Kind      Kind   `json:"kind"`
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Attempt   int    `json:"attempt"`
}

func NewJob(roundID string, kind Kind, accountID string, amount int64, attempts int) Job {
	return Job{
		ID:        uuid.NewString(),
		RoundID:   roundID,
		Kind:      kind,
		AccountID: accountID,
		Amount:    amount,
		Attempt:   attempts,
	}
}

func (j Job) memo() string {
	return "w2e " + string(j.Kind) + " " + j.RoundID
}

// Result reports one execution. Final is set when no further automatic
// attempt will be made for the job.
type Result struct {
	Job       Job
	Reference string
	Err       error
	Final     bool
}

type Config struct {
	Workers             int
	MaxAttempts         int
	RetryBase           time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	DispatchBuffer      int
}
