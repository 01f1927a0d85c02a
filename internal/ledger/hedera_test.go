package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"round-settlement/internal/hedera"
	"round-settlement/internal/hedera/mirror"
)

const (
	testPool  = "0.0.9"
	testToken = "0.0.77"
)

var verifyNow = time.Unix(1700000100, 0).UTC()

func tokenTx(result string, from string, fromAmt, poolAmt int64) mirror.Transaction {
	return mirror.Transaction{
		Result:             result,
		ConsensusTimestamp: "1700000000.000000001",
		TokenTransfers: []mirror.TokenTransfer{
			{TokenID: testToken, Account: from, Amount: fromAmt},
			{TokenID: testToken, Account: testPool, Amount: poolAmt},
		},
	}
}

func TestMatchTransferToken(t *testing.T) {
	chk := TransferCheck{Proof: "p", From: "0.0.1001", Amount: 20}
	cases := []struct {
		name string
		tx   mirror.Transaction
		want error
	}{
		{"exact", tokenTx("SUCCESS", "0.0.1001", -20, 20), nil},
		{"failed", tokenTx("INSUFFICIENT_TOKEN_BALANCE", "0.0.1001", -20, 20), ErrTransferFailed},
		{"short amount", tokenTx("SUCCESS", "0.0.1001", -19, 19), ErrTransferMismatch},
		{"other sender", tokenTx("SUCCESS", "0.0.2002", -20, 20), ErrTransferMismatch},
		{"wrong token", mirror.Transaction{Result: "SUCCESS", ConsensusTimestamp: "1700000000.0", TokenTransfers: []mirror.TokenTransfer{
			{TokenID: "0.0.1", Account: "0.0.1001", Amount: -20},
			{TokenID: "0.0.1", Account: testPool, Amount: 20},
		}}, ErrTransferMismatch},
	}
	for _, tc := range cases {
		err := matchTransfer(tc.tx, chk, testPool, testToken, verifyNow, time.Hour)
		if tc.want == nil && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestMatchTransferExpired(t *testing.T) {
	chk := TransferCheck{Proof: "p", From: "0.0.1001", Amount: 20}
	err := matchTransfer(tokenTx("SUCCESS", "0.0.1001", -20, 20), chk, testPool, testToken, verifyNow.Add(time.Hour), 15*time.Minute)
	if !errors.Is(err, ErrTransferExpired) {
		t.Fatalf("expected ErrTransferExpired, got %v", err)
	}
}

func TestMatchTransferHbarAllowsFees(t *testing.T) {
	chk := TransferCheck{Proof: "p", From: "0.0.1001", Amount: 500}
	tx := mirror.Transaction{
		Result:             "SUCCESS",
		ConsensusTimestamp: "1700000000.0",
		Transfers: []mirror.Transfer{
			{Account: "0.0.1001", Amount: -512},
			{Account: testPool, Amount: 500},
			{Account: "0.0.98", Amount: 12},
		},
	}
	if err := matchTransfer(tx, chk, testPool, "", verifyNow, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx.Transfers[1].Amount = 499
	if err := matchTransfer(tx, chk, testPool, "", verifyNow, 0); !errors.Is(err, ErrTransferMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

type fakeMirror struct {
	txs []mirror.Transaction
	err error
}

func (f *fakeMirror) Transaction(context.Context, string) ([]mirror.Transaction, error) {
	return f.txs, f.err
}

func (f *fakeMirror) TokenBalance(context.Context, string, string) (int64, error) {
	return 1234, f.err
}

type fakePoolClient struct {
	err   error
	calls int
}

func (f *fakePoolClient) Transfer(context.Context, string, int64, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "0.0.9@1700000000.000000009", nil
}

func (f *fakePoolClient) HbarBalance(context.Context, string) (int64, error) {
	return 42, f.err
}

func TestHederaVerifyTransferErrorMapping(t *testing.T) {
	chk := TransferCheck{Proof: "0.0.1001@1700000000.000000001", From: "0.0.1001", Amount: 20}
	cases := []struct {
		err  error
		want error
	}{
		{mirror.ErrNotFound, ErrTransferNotFound},
		{fmt.Errorf("%w: status 503", mirror.ErrUnavailable), ErrTransient},
		{mirror.ErrBadID, ErrTransferMismatch},
	}
	for _, tc := range cases {
		h := NewHedera(&fakePoolClient{}, &fakeMirror{err: tc.err}, testPool, testToken, time.Hour)
		if err := h.VerifyTransfer(context.Background(), chk); !errors.Is(err, tc.want) {
			t.Fatalf("mirror error %v: got %v, want %v", tc.err, err, tc.want)
		}
	}

	h := NewHedera(&fakePoolClient{}, &fakeMirror{txs: []mirror.Transaction{
		tokenTx("DUPLICATE_TRANSACTION", "0.0.1001", 0, 0),
		tokenTx("SUCCESS", "0.0.1001", -20, 20),
	}}, testPool, testToken, time.Hour)
	h.now = func() time.Time { return verifyNow }
	if err := h.VerifyTransfer(context.Background(), chk); err != nil {
		t.Fatalf("expected second record to match, got %v", err)
	}
}

func TestHederaTransferErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{hedera.ErrUnavailable, ErrTransient},
		{hedera.ErrInsufficientBalance, ErrInsufficientFunds},
		{hedera.ErrOutcomeUnknown, ErrOutcomeUnknown},
		{hedera.ErrRejected, ErrRejected},
	}
	for _, tc := range cases {
		h := NewHedera(&fakePoolClient{err: tc.err}, &fakeMirror{}, testPool, testToken, 0)
		if _, err := h.Transfer(context.Background(), "0.0.1001", 95, "payout"); !errors.Is(err, tc.want) {
			t.Fatalf("client error %v: got %v, want %v", tc.err, err, tc.want)
		}
	}
}

func TestHederaBalanceUsesMirrorForTokens(t *testing.T) {
	h := NewHedera(&fakePoolClient{}, &fakeMirror{}, testPool, testToken, 0)
	if bal, err := h.Balance(context.Background(), testPool); err != nil || bal != 1234 {
		t.Fatalf("token balance = %d, %v", bal, err)
	}
	h = NewHedera(&fakePoolClient{}, &fakeMirror{}, testPool, "", 0)
	if bal, err := h.Balance(context.Background(), testPool); err != nil || bal != 42 {
		t.Fatalf("hbar balance = %d, %v", bal, err)
	}
}
