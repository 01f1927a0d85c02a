// Package ledger is the settlement service's view of the token ledger: it
// verifies stake transfers into the pool and pays out of it.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrTransient marks failures worth retrying: the ledger or its mirror was unreachable.
	ErrTransient         = errors.New("ledger_transient")
	ErrTransferNotFound  = errors.New("transfer_not_found")
	ErrTransferFailed    = errors.New("transfer_not_successful")
	ErrTransferMismatch  = errors.New("transfer_mismatch")
	ErrTransferExpired   = errors.New("transfer_expired")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrRejected          = errors.New("transfer_rejected")
	// ErrOutcomeUnknown means a payout was submitted without a receipt. It is never
	// retried automatically since the first attempt may have landed.
	ErrOutcomeUnknown = errors.New("transfer_outcome_unknown")
)

// TransferCheck describes the stake transfer a player claims to have made into the pool.
type TransferCheck struct {
	Proof  string
	From   string
	Amount int64
}

type Ledger interface {
	VerifyTransfer(ctx context.Context, chk TransferCheck) error
	Transfer(ctx context.Context, to string, amount int64, memo string) (string, error)
	Balance(ctx context.Context, account string) (int64, error)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsVerificationFailure reports whether err says the proof itself is bad, as
// opposed to the ledger being unreachable.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrTransferNotFound) ||
		errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrTransferMismatch) ||
		errors.Is(err, ErrTransferExpired)
}
