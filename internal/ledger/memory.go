package ledger

import (
	"context"
	"fmt"
	"sync"
)

type deposit struct {
	from   string
	amount int64
}

type TransferRecord struct {
	Reference string
	To        string
	Amount    int64
	Memo      string
}

// Memory is an in-process ledger with a single pool account. It backs tests and
// the memory dev mode, where Deposit stands in for a wallet transfer.
type Memory struct {
	mu       sync.Mutex
	pool     string
	balances map[string]int64
	deposits map[string]deposit
	seq      int

	transferFailures []error
	verifyFailures   []error
	transfers        []TransferRecord
	verifyCalls      int
}

func NewMemory(pool string) *Memory {
	return &Memory{
		pool:     pool,
		balances: map[string]int64{},
		deposits: map[string]deposit{},
	}
}

func (m *Memory) Pool() string {
	return m.pool
}

// Fund credits an account out of thin air.
func (m *Memory) Fund(account string, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amount
}

// Deposit moves amount from an account into the pool and returns the proof to join with.
func (m *Memory) Deposit(from string, amount int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount <= 0 {
		return "", ErrRejected
	}
	m.seq++
	proof := fmt.Sprintf("mem-%s-%d", from, m.seq)
	m.balances[from] -= amount
	m.balances[m.pool] += amount
	m.deposits[proof] = deposit{from: from, amount: amount}
	return proof, nil
}

// FailNextTransfers makes the next n Transfer calls return err without moving funds.
func (m *Memory) FailNextTransfers(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.transferFailures = append(m.transferFailures, err)
	}
}

func (m *Memory) FailNextVerifications(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.verifyFailures = append(m.verifyFailures, err)
	}
}

func (m *Memory) VerifyTransfer(_ context.Context, chk TransferCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyCalls++
	if len(m.verifyFailures) > 0 {
		err := m.verifyFailures[0]
		m.verifyFailures = m.verifyFailures[1:]
		return err
	}
	d, ok := m.deposits[chk.Proof]
	if !ok {
		return ErrTransferNotFound
	}
	if d.from != chk.From {
		return fmt.Errorf("%w: sender %s, claimed %s", ErrTransferMismatch, d.from, chk.From)
	}
	if d.amount != chk.Amount {
		return fmt.Errorf("%w: amount %d, claimed %d", ErrTransferMismatch, d.amount, chk.Amount)
	}
	return nil
}

func (m *Memory) Transfer(_ context.Context, to string, amount int64, memo string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.transferFailures) > 0 {
		err := m.transferFailures[0]
		m.transferFailures = m.transferFailures[1:]
		return "", err
	}
	if amount <= 0 || to == "" {
		return "", ErrRejected
	}
	if m.balances[m.pool] < amount {
		return "", ErrInsufficientFunds
	}
	m.seq++
	ref := fmt.Sprintf("mem-tx-%d", m.seq)
	m.balances[m.pool] -= amount
	m.balances[to] += amount
	m.transfers = append(m.transfers, TransferRecord{Reference: ref, To: to, Amount: amount, Memo: memo})
	return ref, nil
}

func (m *Memory) Balance(_ context.Context, account string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account], nil
}

func (m *Memory) Transfers() []TransferRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TransferRecord(nil), m.transfers...)
}

func (m *Memory) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyCalls
}
