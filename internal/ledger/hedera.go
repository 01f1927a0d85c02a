package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"round-settlement/internal/hedera"
	"round-settlement/internal/hedera/mirror"
)

type PoolClient interface {
	Transfer(ctx context.Context, to string, amount int64, memo string) (string, error)
	HbarBalance(ctx context.Context, account string) (int64, error)
}

type MirrorReader interface {
	Transaction(ctx context.Context, transactionID string) ([]mirror.Transaction, error)
	TokenBalance(ctx context.Context, accountID, tokenID string) (int64, error)
}

// Hedera pays through the SDK and verifies stakes against mirror node records.
// With an empty token id every amount is in tinybar.
type Hedera struct {
	client  PoolClient
	mirror  MirrorReader
	pool    string
	tokenID string
	maxAge  time.Duration
	now     func() time.Time
}

func NewHedera(client PoolClient, mr MirrorReader, pool, tokenID string, maxAge time.Duration) *Hedera {
	return &Hedera{client: client, mirror: mr, pool: pool, tokenID: tokenID, maxAge: maxAge, now: time.Now}
}

func (h *Hedera) VerifyTransfer(ctx context.Context, chk TransferCheck) error {
	txs, err := h.mirror.Transaction(ctx, chk.Proof)
	switch {
	case errors.Is(err, mirror.ErrNotFound):
		return ErrTransferNotFound
	case errors.Is(err, mirror.ErrBadID):
		return fmt.Errorf("%w: %v", ErrTransferMismatch, err)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var last error = ErrTransferNotFound
	for _, tx := range txs {
		if last = matchTransfer(tx, chk, h.pool, h.tokenID, h.now(), h.maxAge); last == nil {
			return nil
		}
	}
	return last
}

// matchTransfer checks one mirror record against the claimed stake: it must have
// succeeded recently and moved exactly Amount from the player to the pool.
func matchTransfer(tx mirror.Transaction, chk TransferCheck, pool, tokenID string, now time.Time, maxAge time.Duration) error {
	if tx.Result != "SUCCESS" {
		return fmt.Errorf("%w: result %s", ErrTransferFailed, tx.Result)
	}
	at, err := tx.ConsensusTime()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransferMismatch, err)
	}
	if maxAge > 0 && now.Sub(at) > maxAge {
		return fmt.Errorf("%w: consensus at %s", ErrTransferExpired, at.Format(time.RFC3339))
	}

	net := map[string]int64{}
	if tokenID != "" {
		for _, t := range tx.TokenTransfers {
			if t.TokenID == tokenID {
				net[t.Account] += t.Amount
			}
		}
		if net[pool] != chk.Amount || net[chk.From] != -chk.Amount {
			return fmt.Errorf("%w: pool %+d, sender %+d, want %d", ErrTransferMismatch, net[pool], net[chk.From], chk.Amount)
		}
		return nil
	}
	for _, t := range tx.Transfers {
		net[t.Account] += t.Amount
	}
	// The sender also pays network fees in HBAR, so only the pool side is exact.
	if net[pool] != chk.Amount || net[chk.From] > -chk.Amount {
		return fmt.Errorf("%w: pool %+d, sender %+d, want %d", ErrTransferMismatch, net[pool], net[chk.From], chk.Amount)
	}
	return nil
}

func (h *Hedera) Transfer(ctx context.Context, to string, amount int64, memo string) (string, error) {
	ref, err := h.client.Transfer(ctx, to, amount, memo)
	if err != nil {
		return "", mapClientError(err)
	}
	return ref, nil
}

func (h *Hedera) Balance(ctx context.Context, account string) (int64, error) {
	if h.tokenID == "" {
		bal, err := h.client.HbarBalance(ctx, account)
		if err != nil {
			return 0, mapClientError(err)
		}
		return bal, nil
	}
	bal, err := h.mirror.TokenBalance(ctx, account, h.tokenID)
	switch {
	case errors.Is(err, mirror.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return bal, nil
}

func mapClientError(err error) error {
	switch {
	case errors.Is(err, hedera.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case errors.Is(err, hedera.ErrInsufficientBalance):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	case errors.Is(err, hedera.ErrOutcomeUnknown):
		return fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	default:
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
}
