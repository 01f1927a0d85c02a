package settlement

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"round-settlement/internal/config"
	"round-settlement/internal/game"
	"round-settlement/internal/ledger"
	"round-settlement/internal/opsalert"
	"round-settlement/internal/payout"
	"round-settlement/internal/store"
	"round-settlement/internal/testutil"
	"round-settlement/internal/transparency"
)

const poolAccount = "0.0.5000"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []opsalert.Alert
}

func (a *recordingAlerter) Notify(al opsalert.Alert) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, al)
}

func (a *recordingAlerter) Events() []opsalert.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]opsalert.Event, 0, len(a.alerts))
	for _, al := range a.alerts {
		out = append(out, al.Event)
	}
	return out
}

type harness struct {
	svc    *Service
	repo   Repository
	ledger *ledger.Memory
	topic  *transparency.MemoryTopic
	payer  *payout.Manager
	clock  *fakeClock
	alerts *recordingAlerter
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newHarnessOn(t, store.NewMemory(), opts)
}

func newHarnessOn(t *testing.T, repo Repository, opts Options) *harness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	led := ledger.NewMemory(poolAccount)
	topic := transparency.NewMemoryTopic()
	tlog := transparency.NewLog(topic, 2, time.Millisecond)
	payer := payout.NewManager(payout.Config{Workers: 1, MaxAttempts: 3, RetryBase: 5 * time.Millisecond}, led)
	alerts := &recordingAlerter{}
	svc := New(repo, led, tlog, payer, opts,
		WithClock(clock.Now),
		WithCommitter(game.FixedCommitter("abc123")),
		WithAlerter(alerts),
		WithRooms([]config.RoomPreset{{ID: "default", MinStake: 10, MaxStake: 100, MaxPlayers: 10, Duration: config.Duration{Duration: 2 * time.Minute}}}),
	)
	payer.OnResult(svc.HandlePayoutResult)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := payer.Start(ctx); err != nil {
		t.Fatalf("start payer: %v", err)
	}
	return &harness{svc: svc, repo: repo, ledger: led, topic: topic, payer: payer, clock: clock, alerts: alerts}
}

func (h *harness) create(t *testing.T) *game.Round {
	t.Helper()
	r, err := h.svc.Create(context.Background(), CreateRequest{RoomID: "default"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func (h *harness) join(t *testing.T, roundID, account string, stake int64) *game.Round {
	t.Helper()
	proof, err := h.ledger.Deposit(account, stake)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	r, err := h.svc.Join(context.Background(), JoinRequest{RoundID: roundID, AccountID: account, StakeAmount: stake, TransferProof: proof})
	if err != nil {
		t.Fatalf("join %s: %v", account, err)
	}
	return r
}

// referenceWinner recomputes the draw with math/big: the ticket is
// SHA256(seed || roundID) mod pot, walked over stakes in join order.
func referenceWinner(seed, roundID string, stakes []game.Stake) string {
	sum := sha256.Sum256([]byte(seed + roundID))
	var pot int64
	for _, s := range stakes {
		pot += s.Amount
	}
	ticket := new(big.Int).Mod(new(big.Int).SetBytes(sum[:]), big.NewInt(pot)).Int64()
	for _, s := range stakes {
		if ticket < s.Amount {
			return s.AccountID
		}
		ticket -= s.Amount
	}
	return ""
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEndRound(t *testing.T) {
	runEndToEndRound(t, newHarness(t, Options{}))
}

func TestEndToEndRoundOnPostgres(t *testing.T) {
	runEndToEndRound(t, newHarnessOn(t, testutil.OpenRoundStore(t), Options{}))
}

func runEndToEndRound(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()

	r := h.create(t)
	if r.ServerSeed != "" {
		t.Fatal("open round must not expose the seed")
	}
	if r.CommitHash != game.CommitHash("abc123", r.ID) {
		t.Fatalf("unexpected commit hash %s", r.CommitHash)
	}
	h.join(t, r.ID, "0.0.1001", 20)
	h.join(t, r.ID, "0.0.1002", 80)

	if _, err := h.svc.Lock(ctx, r.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	done, err := h.svc.Reveal(ctx, r.ID)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if done.Status != game.StatusCompleted || done.ServerSeed != "abc123" {
		t.Fatalf("unexpected round after reveal: status=%s seed=%q", done.Status, done.ServerSeed)
	}
	w := done.Winner
	if w == nil || w.Winnings != 95 || w.HouseCut != 5 {
		t.Fatalf("unexpected winner: %+v", w)
	}
	if want := referenceWinner("abc123", r.ID, []game.Stake{{AccountID: "0.0.1001", Amount: 20}, {AccountID: "0.0.1002", Amount: 80}}); w.AccountID != want {
		t.Fatalf("winner = %s, want %s", w.AccountID, want)
	}
	if w.PayoutStatus != game.PayoutPaid || w.PayoutReference == "" {
		t.Fatalf("expected paid winner, got %+v", w)
	}
	if err := game.VerifySelection(w.SelectionProof); err != nil {
		t.Fatalf("proof does not verify: %v", err)
	}

	transfers := h.ledger.Transfers()
	if len(transfers) != 1 || transfers[0].To != w.AccountID || transfers[0].Amount != 95 {
		t.Fatalf("unexpected transfers: %+v", transfers)
	}
	entries, _ := h.topic.Messages(ctx, 10)
	if len(entries) != 3 {
		t.Fatalf("expected commit, reveal and result messages, got %d", len(entries))
	}
	kinds := map[string]bool{}
	for _, rec := range done.Transparency {
		if rec.Error != "" || rec.SequenceNumber == 0 {
			t.Fatalf("unexpected transparency record: %+v", rec)
		}
		kinds[rec.Kind] = true
	}
	if !kinds["commit"] || !kinds["reveal"] || !kinds["result"] {
		t.Fatalf("missing transparency kinds: %v", kinds)
	}

	proof, err := h.svc.Proof(ctx, r.ID)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if proof.WinnerAccountID != w.AccountID || proof.TotalPot != 100 {
		t.Fatalf("unexpected proof: %+v", proof)
	}
}

func TestConcurrentJoinsSameAccountAdmitOnce(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.create(t)

	const n = 16
	proofs := make([]string, n)
	for i := range proofs {
		p, err := h.ledger.Deposit("0.0.2001", 10)
		if err != nil {
			t.Fatalf("deposit: %v", err)
		}
		proofs[i] = p
	}

	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(proof string) {
			defer wg.Done()
			_, err := h.svc.Join(context.Background(), JoinRequest{RoundID: r.ID, AccountID: "0.0.2001", StakeAmount: 10, TransferProof: proof})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, game.ErrDuplicatePlayer):
				dup.Add(1)
			default:
				t.Errorf("unexpected join error: %v", err)
			}
		}(proofs[i])
	}
	wg.Wait()

	if ok.Load() != 1 || dup.Load() != n-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", n-1, ok.Load(), dup.Load())
	}
	got, _ := h.svc.Get(context.Background(), r.ID)
	if len(got.Players) != 1 || got.TotalPot != 10 {
		t.Fatalf("unexpected round state: players=%d pot=%d", len(got.Players), got.TotalPot)
	}
	if h.svc.locks.size() != 0 {
		t.Fatalf("round locks leaked: %d", h.svc.locks.size())
	}
}

func TestJoinRejections(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)

	proof, _ := h.ledger.Deposit("0.0.3001", 20)
	cases := []struct {
		name string
		req  JoinRequest
		want error
	}{
		{"missing proof", JoinRequest{RoundID: r.ID, AccountID: "0.0.3001", StakeAmount: 20}, game.ErrInvalidRequest},
		{"unknown round", JoinRequest{RoundID: "nope", AccountID: "0.0.3001", StakeAmount: 20, TransferProof: proof}, game.ErrRoundNotFound},
		{"stake too low", JoinRequest{RoundID: r.ID, AccountID: "0.0.3001", StakeAmount: 5, TransferProof: proof}, game.ErrStakeOutOfRange},
		{"wrong amount", JoinRequest{RoundID: r.ID, AccountID: "0.0.3001", StakeAmount: 30, TransferProof: proof}, game.ErrTransferVerificationFailed},
		{"wrong sender", JoinRequest{RoundID: r.ID, AccountID: "0.0.3002", StakeAmount: 20, TransferProof: proof}, game.ErrTransferVerificationFailed},
		{"unknown proof", JoinRequest{RoundID: r.ID, AccountID: "0.0.3001", StakeAmount: 20, TransferProof: "mem-x-99"}, game.ErrTransferVerificationFailed},
	}
	for _, tc := range cases {
		if _, err := h.svc.Join(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	got, _ := h.svc.Get(ctx, r.ID)
	if len(got.Players) != 0 || got.TotalPot != 0 {
		t.Fatalf("rejected joins mutated the round: %+v", got)
	}

	// The proof is still usable after the rejections above.
	if _, err := h.svc.Join(ctx, JoinRequest{RoundID: r.ID, AccountID: "0.0.3001", StakeAmount: 20, TransferProof: proof}); err != nil {
		t.Fatalf("valid join after rejections: %v", err)
	}
}

func TestJoinLedgerUnavailable(t *testing.T) {
	h := newHarness(t, Options{})
	r := h.create(t)
	proof, _ := h.ledger.Deposit("0.0.3101", 20)
	h.ledger.FailNextVerifications(ledger.ErrTransient, 1)

	_, err := h.svc.Join(context.Background(), JoinRequest{RoundID: r.ID, AccountID: "0.0.3101", StakeAmount: 20, TransferProof: proof})
	if !errors.Is(err, game.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	if game.KindOf(err) != game.KindExternal {
		t.Fatalf("unexpected kind %s", game.KindOf(err))
	}
}

func TestProofReuseAcrossRounds(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r1 := h.create(t)
	r2 := h.create(t)

	proof, _ := h.ledger.Deposit("0.0.4001", 20)
	if _, err := h.svc.Join(ctx, JoinRequest{RoundID: r1.ID, AccountID: "0.0.4001", StakeAmount: 20, TransferProof: proof}); err != nil {
		t.Fatalf("first join: %v", err)
	}
	_, err := h.svc.Join(ctx, JoinRequest{RoundID: r2.ID, AccountID: "0.0.4001", StakeAmount: 20, TransferProof: proof})
	if !errors.Is(err, game.ErrProofReused) {
		t.Fatalf("expected proof reuse error, got %v", err)
	}

	// A fresh service over the same store still refuses it.
	again := New(h.repo, h.ledger, transparency.NewLog(h.topic, 1, time.Millisecond), h.payer, Options{}, WithClock(h.clock.Now))
	_, err = again.Join(ctx, JoinRequest{RoundID: r2.ID, AccountID: "0.0.4001", StakeAmount: 20, TransferProof: proof})
	if !errors.Is(err, game.ErrProofReused) {
		t.Fatalf("expected stored proof reuse error, got %v", err)
	}
}

func TestDeadlineEnforced(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)
	h.join(t, r.ID, "0.0.5001", 10)
	h.join(t, r.ID, "0.0.5002", 10)

	h.clock.Advance(2 * time.Minute)
	proof, _ := h.ledger.Deposit("0.0.5003", 10)
	if _, err := h.svc.Join(ctx, JoinRequest{RoundID: r.ID, AccountID: "0.0.5003", StakeAmount: 10, TransferProof: proof}); !errors.Is(err, game.ErrDeadlinePassed) {
		t.Fatalf("expected deadline error on join, got %v", err)
	}
	if _, err := h.svc.Lock(ctx, r.ID); !errors.Is(err, game.ErrDeadlinePassed) {
		t.Fatalf("expected deadline error on lock, got %v", err)
	}
}

func TestLockAndRevealPreconditions(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)

	if _, err := h.svc.Reveal(ctx, r.ID); !errors.Is(err, game.ErrRoundNotLocked) {
		t.Fatalf("expected not locked, got %v", err)
	}
	h.join(t, r.ID, "0.0.6001", 10)
	if _, err := h.svc.Lock(ctx, r.ID); !errors.Is(err, game.ErrNotEnoughPlayers) {
		t.Fatalf("expected not enough players, got %v", err)
	}
	if _, err := h.svc.Proof(ctx, r.ID); !errors.Is(err, game.ErrRoundNotCompleted) {
		t.Fatalf("expected not completed, got %v", err)
	}
	if _, err := h.svc.Lock(ctx, "missing"); !errors.Is(err, game.ErrRoundNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFullRoundLocksItself(t *testing.T) {
	h := newHarness(t, Options{})
	r, err := h.svc.Create(context.Background(), CreateRequest{RoomID: "default", MaxPlayers: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ch, _ := h.svc.Events().SubscribeAfter("")
	defer h.svc.Events().Unsubscribe(ch)

	h.join(t, r.ID, "0.0.6101", 10)
	got := h.join(t, r.ID, "0.0.6102", 10)
	if got.Status != game.StatusLocked {
		t.Fatalf("expected locked round, got %s", got.Status)
	}
	var events []string
	for len(events) < 3 {
		select {
		case ev := <-ch:
			events = append(events, ev.Event)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", events)
		}
	}
	if events[0] != EventPlayerJoined || events[1] != EventPlayerJoined || events[2] != EventRoundLocked {
		t.Fatalf("unexpected events: %v", events)
	}
}

func TestRevealCompletesWhenPayoutFails(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)
	h.join(t, r.ID, "0.0.7001", 20)
	h.join(t, r.ID, "0.0.7002", 80)
	if _, err := h.svc.Lock(ctx, r.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}

	h.ledger.FailNextTransfers(ledger.ErrRejected, 1)
	done, err := h.svc.Reveal(ctx, r.ID)
	if err != nil {
		t.Fatalf("reveal should not fail on payout errors: %v", err)
	}
	if done.Status != game.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if done.Winner.PayoutStatus != game.PayoutFailed || done.Winner.PayoutError == "" {
		t.Fatalf("expected recorded payout failure, got %+v", done.Winner)
	}
	if ev := h.alerts.Events(); len(ev) != 1 || ev[0] != opsalert.EventPayoutExhausted {
		t.Fatalf("unexpected alerts: %v", ev)
	}

	retried, err := h.svc.RetryPayout(ctx, r.ID)
	if err != nil {
		t.Fatalf("retry payout: %v", err)
	}
	if retried.Winner.PayoutStatus != game.PayoutPaid || retried.Winner.PayoutAttempts != 2 {
		t.Fatalf("expected paid after retry, got %+v", retried.Winner)
	}
	if _, err := h.svc.RetryPayout(ctx, r.ID); !errors.Is(err, game.ErrNothingToRetry) {
		t.Fatalf("expected nothing to retry, got %v", err)
	}
}

func TestTransientPayoutFailureRetriesInBackground(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)
	h.join(t, r.ID, "0.0.7101", 50)
	h.join(t, r.ID, "0.0.7102", 50)
	if _, err := h.svc.Lock(ctx, r.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}

	h.ledger.FailNextTransfers(ledger.ErrTransient, 1)
	done, err := h.svc.Reveal(ctx, r.ID)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if done.Winner.PayoutStatus != game.PayoutPending {
		t.Fatalf("expected pending payout after transient failure, got %+v", done.Winner)
	}

	waitFor(t, "payout retry", func() bool {
		got, err := h.svc.Get(ctx, r.ID)
		return err == nil && got.Winner.PayoutStatus == game.PayoutPaid
	})
	got, _ := h.svc.Get(ctx, r.ID)
	if got.Winner.PayoutAttempts != 2 || got.Winner.PayoutError != "" {
		t.Fatalf("unexpected winner after retry: %+v", got.Winner)
	}
	if n := len(h.ledger.Transfers()); n != 1 {
		t.Fatalf("expected exactly one transfer, got %d", n)
	}
}

func TestOutcomeUnknownIsNotRetried(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)
	h.join(t, r.ID, "0.0.7201", 50)
	h.join(t, r.ID, "0.0.7202", 50)
	if _, err := h.svc.Lock(ctx, r.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	h.ledger.FailNextTransfers(ledger.ErrOutcomeUnknown, 1)
	done, err := h.svc.Reveal(ctx, r.ID)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if done.Winner.PayoutStatus != game.PayoutFailed {
		t.Fatalf("expected failed payout, got %+v", done.Winner)
	}
	time.Sleep(30 * time.Millisecond)
	if n := len(h.ledger.Transfers()); n != 0 {
		t.Fatalf("outcome-unknown payout was retried: %d transfers", n)
	}
	if ev := h.alerts.Events(); len(ev) != 1 || ev[0] != opsalert.EventPayoutUnknown {
		t.Fatalf("unexpected alerts: %v", ev)
	}
}

func TestTransparencyFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	h.topic.FailNext(transparency.ErrUnavailable, 2)

	r := h.create(t)
	stored, err := h.repo.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Transparency) != 1 || stored.Transparency[0].Error == "" {
		t.Fatalf("expected recorded publish failure, got %+v", stored.Transparency)
	}
	h.join(t, r.ID, "0.0.8001", 10)
	h.join(t, r.ID, "0.0.8002", 10)
	if _, err := h.svc.Lock(ctx, r.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := h.svc.Reveal(ctx, r.ID); err != nil {
		t.Fatalf("reveal: %v", err)
	}
}

func TestCancelRefundsStakes(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)
	h.join(t, r.ID, "0.0.9001", 15)
	h.join(t, r.ID, "0.0.9002", 25)

	got, err := h.svc.Cancel(ctx, r.ID, "operator")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != game.StatusCancelled || got.ServerSeed != "abc123" {
		t.Fatalf("unexpected cancelled round: status=%s seed=%q", got.Status, got.ServerSeed)
	}
	for _, rf := range got.Refunds {
		if rf.Status != game.PayoutPaid {
			t.Fatalf("refund not paid: %+v", rf)
		}
	}
	for _, acct := range []string{"0.0.9001", "0.0.9002"} {
		if bal, _ := h.ledger.Balance(ctx, acct); bal != 0 {
			t.Fatalf("%s not made whole: %d", acct, bal)
		}
	}
	if _, err := h.svc.Cancel(ctx, r.ID, "again"); !errors.Is(err, game.ErrRoundNotOpen) {
		t.Fatalf("expected not open, got %v", err)
	}
}

func TestSweep(t *testing.T) {
	h := newHarness(t, Options{AutoLockLead: 10 * time.Second, AutoReveal: true, RevealDelay: time.Second, RoundRetention: time.Hour})
	ctx := context.Background()

	populated := h.create(t)
	h.join(t, populated.ID, "0.0.9101", 10)
	h.join(t, populated.ID, "0.0.9102", 10)
	lonely := h.create(t)
	h.join(t, lonely.ID, "0.0.9103", 10)

	rep, err := h.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep != (SweepReport{}) {
		t.Fatalf("nothing should happen before the lead window: %+v", rep)
	}

	h.clock.Advance(2*time.Minute - 5*time.Second)
	rep, err = h.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.Locked != 1 || rep.Cancelled != 0 {
		t.Fatalf("expected populated round locked: %+v", rep)
	}

	h.clock.Advance(10 * time.Second)
	rep, err = h.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.Cancelled != 1 || rep.Revealed != 1 {
		t.Fatalf("expected lonely round cancelled and populated revealed: %+v", rep)
	}
	got, _ := h.svc.Get(ctx, lonely.ID)
	if got.Status != game.StatusCancelled || got.CancelReason != reasonDeadlineEnded || got.Refunds[0].Status != game.PayoutPaid {
		t.Fatalf("unexpected lonely round: %+v", got)
	}
	got, _ = h.svc.Get(ctx, populated.ID)
	if got.Status != game.StatusCompleted {
		t.Fatalf("expected populated round completed, got %s", got.Status)
	}

	h.clock.Advance(2 * time.Hour)
	rep, err = h.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if rep.Purged != 2 {
		t.Fatalf("expected both finished rounds purged: %+v", rep)
	}
}

func TestResumePayoutsFlagsPending(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	r := h.create(t)
	h.join(t, r.ID, "0.0.9201", 10)
	h.join(t, r.ID, "0.0.9202", 10)
	if _, err := h.svc.Lock(ctx, r.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Simulate a crash between persisting the draw and paying.
	stored, _ := h.repo.Get(ctx, r.ID)
	winnings, cut := game.Winnings(stored.TotalPot)
	if err := stored.Complete(game.Winner{AccountID: "0.0.9201", Winnings: winnings, HouseCut: cut}, h.clock.Now()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := h.repo.Update(ctx, stored); err != nil {
		t.Fatalf("update: %v", err)
	}

	n, err := h.svc.ResumePayouts(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one flagged transfer, got %d, %v", n, err)
	}
	got, _ := h.svc.Get(ctx, r.ID)
	if got.Winner.PayoutStatus != game.PayoutFailed {
		t.Fatalf("expected failed payout, got %+v", got.Winner)
	}
	if len(h.ledger.Transfers()) != 0 {
		t.Fatal("resume must not send transfers")
	}
	if ev := h.alerts.Events(); len(ev) != 1 || ev[0] != opsalert.EventPayoutUnknown {
		t.Fatalf("unexpected alerts: %v", ev)
	}
}

func TestCreateRequiresKnownRoomOrFullParams(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if _, err := h.svc.Create(ctx, CreateRequest{RoomID: "vip"}); !errors.Is(err, game.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	r, err := h.svc.Create(ctx, CreateRequest{RoomID: "vip", MinStake: 100, MaxStake: 1000, Duration: time.Minute})
	if err != nil {
		t.Fatalf("create custom: %v", err)
	}
	if r.MinStake != 100 || !r.Deadline.Equal(h.clock.Now().Add(time.Minute)) {
		t.Fatalf("unexpected custom round: %+v", r)
	}
	def, err := h.svc.Create(ctx, CreateRequest{})
	if err != nil {
		t.Fatalf("create default: %v", err)
	}
	if def.RoomID != "default" || def.MaxPlayers != 10 {
		t.Fatalf("unexpected default round: %+v", def)
	}
}
