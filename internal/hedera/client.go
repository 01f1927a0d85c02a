// Package hedera adapts the Hedera SDK to the pool operations settlement needs:
// paying out of the pool account, reading balances, and submitting topic messages.
package hedera

import (
	"context"
	"time"

	"round-settlement/internal/config"

	sdk "github.com/hashgraph/hedera-sdk-go/v2"
	"github.com/pkg/errors"
)

var (
	ErrConfig              = errors.New("hedera_config")
	ErrUnavailable         = errors.New("hedera_unavailable")
	ErrRejected            = errors.New("hedera_rejected")
	ErrInsufficientBalance = errors.New("hedera_insufficient_balance")
	// ErrOutcomeUnknown means a transaction was submitted but its receipt never
	// arrived; it may or may not have reached consensus.
	ErrOutcomeUnknown = errors.New("hedera_outcome_unknown")
)

type TopicReceipt struct {
	SequenceNumber uint64
	RunningHash    []byte
	TransactionID  string
}

type Client struct {
	sdk      *sdk.Client
	operator sdk.AccountID
	token    *sdk.TokenID
	topic    *sdk.TopicID
	timeout  time.Duration
}

// NewClient builds an operator-signed client. The operator account is the pool.
func NewClient(cfg config.HederaConfig, timeout time.Duration) (*Client, error) {
	operator, err := sdk.AccountIDFromString(cfg.OperatorID)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "operator id %q: %v", cfg.OperatorID, err)
	}
	key, err := sdk.PrivateKeyFromString(cfg.OperatorKey)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "operator key: %v", err)
	}
	client, err := sdk.ClientForName(cfg.Network)
	if err != nil {
		return nil, errors.Wrapf(ErrConfig, "network %q: %v", cfg.Network, err)
	}
	client.SetOperator(operator, key)

	c := &Client{sdk: client, operator: operator, timeout: timeout}
	if cfg.TokenID != "" {
		tokenID, err := sdk.TokenIDFromString(cfg.TokenID)
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(ErrConfig, "token id %q: %v", cfg.TokenID, err)
		}
		c.token = &tokenID
	}
	if cfg.TopicID != "" {
		topicID, err := sdk.TopicIDFromString(cfg.TopicID)
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrapf(ErrConfig, "topic id %q: %v", cfg.TopicID, err)
		}
		c.topic = &topicID
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.sdk.Close()
}

func (c *Client) Operator() string {
	return c.operator.String()
}

// Transfer moves amount (token minor units, or tinybar without a token) from
// the operator to the destination account and waits for the receipt.
func (c *Client) Transfer(ctx context.Context, to string, amount int64, memo string) (string, error) {
	dest, err := sdk.AccountIDFromString(to)
	if err != nil {
		return "", errors.Wrapf(ErrRejected, "destination %q: %v", to, err)
	}
	if amount <= 0 {
		return "", errors.Wrapf(ErrRejected, "amount %d", amount)
	}
	tx := sdk.NewTransferTransaction().SetTransactionMemo(memo)
	if c.token != nil {
		tx = tx.AddTokenTransfer(*c.token, c.operator, -amount).
			AddTokenTransfer(*c.token, dest, amount)
	} else {
		tx = tx.AddHbarTransfer(c.operator, sdk.HbarFromTinybar(-amount)).
			AddHbarTransfer(dest, sdk.HbarFromTinybar(amount))
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := runWithContext(ctx, func() (sdk.TransactionResponse, error) {
		return tx.Execute(c.sdk)
	})
	if err != nil {
		return "", classify(err, false)
	}
	receipt, err := runWithContext(ctx, func() (sdk.TransactionReceipt, error) {
		return resp.GetReceipt(c.sdk)
	})
	if err != nil {
		return "", classify(err, true)
	}
	if receipt.Status != sdk.StatusSuccess {
		return "", classify(sdk.ErrHederaReceiptStatus{Status: receipt.Status, TxID: resp.TransactionID}, true)
	}
	return resp.TransactionID.String(), nil
}

// HbarBalance returns the account's balance in tinybar.
func (c *Client) HbarBalance(ctx context.Context, account string) (int64, error) {
	id, err := sdk.AccountIDFromString(account)
	if err != nil {
		return 0, errors.Wrapf(ErrRejected, "account %q: %v", account, err)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	bal, err := runWithContext(ctx, func() (sdk.AccountBalance, error) {
		return sdk.NewAccountBalanceQuery().SetAccountID(id).Execute(c.sdk)
	})
	if err != nil {
		return 0, classify(err, false)
	}
	return bal.Hbars.AsTinybar(), nil
}

func (c *Client) SubmitMessage(ctx context.Context, message []byte) (TopicReceipt, error) {
	if c.topic == nil {
		return TopicReceipt{}, errors.Wrap(ErrConfig, "topic id not configured")
	}
	tx := sdk.NewTopicMessageSubmitTransaction().SetTopicID(*c.topic).SetMessage(message)

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	resp, err := runWithContext(ctx, func() (sdk.TransactionResponse, error) {
		return tx.Execute(c.sdk)
	})
	if err != nil {
		return TopicReceipt{}, classify(err, false)
	}
	receipt, err := runWithContext(ctx, func() (sdk.TransactionReceipt, error) {
		return resp.GetReceipt(c.sdk)
	})
	if err != nil {
		return TopicReceipt{}, classify(err, true)
	}
	return TopicReceipt{
		SequenceNumber: receipt.TopicSequenceNumber,
		RunningHash:    receipt.TopicRunningHash,
		TransactionID:  resp.TransactionID.String(),
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// runWithContext bounds an SDK call that does not take a context. The call
// keeps running in the background after ctx ends; only its result is dropped.
func runWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
