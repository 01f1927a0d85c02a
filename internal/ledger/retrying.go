package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

type RetryOptions struct {
	Attempts int
	Base     time.Duration
	// Timeout bounds each individual call.
	Timeout time.Duration
}

// Retrying retries reads with exponential backoff. Transfer is passed through
// once: a payout is never blindly resubmitted here.
type Retrying struct {
	next  Ledger
	opts  RetryOptions
	sleep func(context.Context, time.Duration) error
}

func NewRetrying(next Ledger, opts RetryOptions) *Retrying {
	if opts.Attempts < 1 {
		opts.Attempts = 3
	}
	if opts.Base <= 0 {
		opts.Base = 200 * time.Millisecond
	}
	return &Retrying{next: next, opts: opts, sleep: sleepCtx}
}

// VerifyTransfer also retries ErrTransferNotFound: a fresh transfer can take a
// few seconds to show up on the mirror node.
func (r *Retrying) VerifyTransfer(ctx context.Context, chk TransferCheck) error {
	return r.retry(ctx, "verify_transfer", func(ctx context.Context) error {
		return r.next.VerifyTransfer(ctx, chk)
	}, func(err error) bool {
		return IsTransient(err) || errors.Is(err, ErrTransferNotFound)
	})
}

func (r *Retrying) Balance(ctx context.Context, account string) (int64, error) {
	var bal int64
	err := r.retry(ctx, "balance", func(ctx context.Context) error {
		var err error
		bal, err = r.next.Balance(ctx, account)
		return err
	}, IsTransient)
	return bal, err
}

func (r *Retrying) Transfer(ctx context.Context, to string, amount int64, memo string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.next.Transfer(ctx, to, amount, memo)
}

func (r *Retrying) retry(ctx context.Context, op string, fn func(context.Context) error, retryable func(error) bool) error {
	var err error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		callCtx, cancel := r.withTimeout(ctx)
		err = fn(callCtx)
		cancel()
		if err == nil || !retryable(err) || attempt == r.opts.Attempts {
			return err
		}
		delay := r.opts.Base * time.Duration(1<<(attempt-1))
		log.Debug().Err(err).Str("op", op).Int("attempt", attempt).Dur("delay", delay).Msg("ledger call retry")
		if serr := r.sleep(ctx, delay); serr != nil {
			return err
		}
	}
	return err
}

func (r *Retrying) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.Timeout)
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
