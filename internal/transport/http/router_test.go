package httptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apppublic "round-settlement/internal/app/public"
	"round-settlement/internal/config"
	"round-settlement/internal/game"
	"round-settlement/internal/ledger"
	"round-settlement/internal/payout"
	"round-settlement/internal/settlement"
	"round-settlement/internal/store"
	"round-settlement/internal/transparency"
)

const (
	testPool     = "0.0.5000"
	testAdminKey = "admin-secret"
)

type testServer struct {
	handler http.Handler
	ledger  *ledger.Memory
	rounds  *settlement.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	led := ledger.NewMemory(testPool)
	topic := transparency.NewMemoryTopic()
	payer := payout.NewManager(payout.Config{Workers: 1, MaxAttempts: 2, RetryBase: 5 * time.Millisecond}, led)
	repo := store.NewMemory()
	rounds := settlement.New(repo, led, transparency.NewLog(topic, 1, time.Millisecond), payer, settlement.Options{},
		settlement.WithRooms([]config.RoomPreset{{ID: config.DefaultRoomID, MinStake: 10, MaxStake: 100, MaxPlayers: 5, Duration: config.Duration{Duration: time.Minute}}}),
	)
	payer.OnResult(rounds.HandlePayoutResult)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := payer.Start(ctx); err != nil {
		t.Fatalf("start payer: %v", err)
	}
	h := NewRouter(Deps{
		Rounds:        rounds,
		Public:        apppublic.NewService(repo, topic, "0.0.7777"),
		Ledger:        led,
		PoolAccount:   testPool,
		TokenDecimals: 2,
		DevLedger:     led,
		AdminAPIKey:   testAdminKey,
	})
	return &testServer{handler: h, ledger: led, rounds: rounds}
}

func (s *testServer) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Admin-Key", testAdminKey)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["error"].(string)
}

func (s *testServer) deposit(t *testing.T, account string, amount int64) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/dev/deposits", map[string]any{"account_id": account, "amount": amount}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decode[map[string]any](t, rec)["transfer_proof"].(string)
}

func TestRoundLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/battle/start", map[string]any{}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	created := decode[game.Round](t, rec)
	if created.ServerSeed != "" {
		t.Fatalf("server seed leaked on open round")
	}
	if created.CommitHash == "" || created.Status != game.StatusOpen {
		t.Fatalf("unexpected round: %+v", created)
	}

	proofA := s.deposit(t, "0.0.1001", 20)
	rec = s.do(t, http.MethodPost, "/api/rounds/"+created.ID+"/join", map[string]any{"account_id": "0.0.1001", "stake_amount": 20, "transfer_proof": proofA}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("join A status=%d body=%s", rec.Code, rec.Body.String())
	}
	proofB := s.deposit(t, "0.0.1002", 80)
	// 0.80 tokens at two decimals is 80 minor units.
	rec = s.do(t, http.MethodPost, "/api/rounds/"+created.ID+"/join", map[string]any{"account_id": "0.0.1002", "stake": "0.80", "transfer_proof": proofB}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("join B status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/rounds/"+created.ID+"/proof", nil, false)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "round_not_completed" {
		t.Fatalf("proof before reveal status=%d body=%s", rec.Code, rec.Body.String())
	}

	if rec = s.do(t, http.MethodPost, "/api/rounds/"+created.ID+"/lock", nil, true); rec.Code != http.StatusOK {
		t.Fatalf("lock status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/rounds/"+created.ID+"/reveal", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("reveal status=%d body=%s", rec.Code, rec.Body.String())
	}
	done := decode[game.Round](t, rec)
	if done.Status != game.StatusCompleted || done.Winner == nil {
		t.Fatalf("round not completed: %+v", done)
	}
	if done.Winner.Winnings != 95 || done.Winner.PayoutStatus != game.PayoutPaid {
		t.Fatalf("winner = %+v", done.Winner)
	}
	if !game.VerifyCommitment(done.ServerSeed, done.ID, done.CommitHash) {
		t.Fatalf("revealed seed does not match commitment")
	}

	rec = s.do(t, http.MethodGet, "/api/rounds/"+created.ID+"/proof", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("proof status=%d body=%s", rec.Code, rec.Body.String())
	}
	if verified, _ := decode[map[string]any](t, rec)["verified"].(bool); !verified {
		t.Fatalf("proof did not verify: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/users/"+done.Winner.AccountID+"/stats", nil, false)
	stats := decode[apppublic.UserStatsResponse](t, rec)
	if stats.RoundsWon != 1 || stats.TotalWon != 95 {
		t.Fatalf("stats = %+v", stats)
	}

	rec = s.do(t, http.MethodGet, "/api/hcs/messages?limit=10", nil, false)
	msgs := decode[apppublic.HCSMessagesResponse](t, rec)
	if len(msgs.Items) != 3 {
		t.Fatalf("hcs messages = %d, want 3", len(msgs.Items))
	}

	rec = s.do(t, http.MethodGet, "/api/pool/balance", nil, true)
	bal := decode[map[string]any](t, rec)
	if got := bal["balance"].(float64); got != 5 {
		t.Fatalf("pool balance = %v, want 5", got)
	}
	if got := bal["balance_tokens"]; got != "0.05" {
		t.Fatalf("pool balance in tokens = %v, want 0.05", got)
	}
}

func TestJoinErrorMapping(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/rounds", map[string]any{}, false)
	round := decode[game.Round](t, rec)
	joinPath := "/api/rounds/" + round.ID + "/join"

	proof := s.deposit(t, "0.0.1001", 20)
	cases := []struct {
		name   string
		path   string
		body   map[string]any
		status int
		code   string
	}{
		{"missing account", joinPath, map[string]any{"stake_amount": 20, "transfer_proof": proof}, http.StatusBadRequest, "invalid_request"},
		{"no stake", joinPath, map[string]any{"account_id": "0.0.1001", "transfer_proof": proof}, http.StatusBadRequest, "invalid_request"},
		{"both stake forms", joinPath, map[string]any{"account_id": "0.0.1001", "stake_amount": 20, "stake": "0.2", "transfer_proof": proof}, http.StatusBadRequest, "invalid_request"},
		{"stake too small", joinPath, map[string]any{"account_id": "0.0.1001", "stake_amount": 5, "transfer_proof": proof}, http.StatusBadRequest, "stake_out_of_range"},
		{"amount mismatch", joinPath, map[string]any{"account_id": "0.0.1001", "stake_amount": 30, "transfer_proof": proof}, http.StatusPaymentRequired, "transfer_verification_failed"},
		{"unknown proof", joinPath, map[string]any{"account_id": "0.0.1001", "stake_amount": 20, "transfer_proof": "nope"}, http.StatusPaymentRequired, "transfer_verification_failed"},
		{"unknown round", "/api/rounds/missing/join", map[string]any{"account_id": "0.0.1001", "stake_amount": 20, "transfer_proof": proof}, http.StatusNotFound, "round_not_found"},
	}
	for _, tc := range cases {
		rec := s.do(t, http.MethodPost, tc.path, tc.body, false)
		if rec.Code != tc.status {
			t.Fatalf("%s: status=%d want %d body=%s", tc.name, rec.Code, tc.status, rec.Body.String())
		}
		if got := errorCode(t, rec); got != tc.code {
			t.Fatalf("%s: code=%q want %q", tc.name, got, tc.code)
		}
	}

	rec = s.do(t, http.MethodPost, joinPath, map[string]any{"account_id": "0.0.1001", "stake_amount": 20, "transfer_proof": proof}, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid join status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, joinPath, map[string]any{"account_id": "0.0.1001", "stake_amount": 20, "transfer_proof": proof}, false)
	if rec.Code != http.StatusConflict {
		t.Fatalf("rejoin status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/rounds/"+round.ID+"/lock", nil, true)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "not_enough_players" {
		t.Fatalf("lock with one player status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/rounds/"+round.ID+"/reveal", nil, true)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "round_not_locked" {
		t.Fatalf("reveal open round status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func domainErrorCount(kind game.Kind) int64 {
	if v, ok := metricDomainErrors.Get(string(kind)).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

func TestDomainErrorsCountedByKind(t *testing.T) {
	s := newTestServer(t)
	before := domainErrorCount(game.KindValidation)
	rec := s.do(t, http.MethodGet, "/api/rounds/missing-round", nil, false)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "round_not_found" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := domainErrorCount(game.KindValidation); got != before+1 {
		t.Fatalf("validation errors = %d, want %d", got, before+1)
	}
}

func TestAdminRoutesRequireKey(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/rounds/x/lock", "/api/rounds/x/reveal", "/api/rounds/x/cancel", "/api/rounds/x/payout/retry", "/api/dev/deposits"} {
		rec := s.do(t, http.MethodPost, path, nil, false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s without key status=%d", path, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/api/pool/balance", nil)
	req.Header.Set("Authorization", "Bearer "+testAdminKey)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer auth status=%d", rec.Code)
	}
}

func TestCancelRefundsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	round := decode[game.Round](t, s.do(t, http.MethodPost, "/api/rounds", map[string]any{}, false))
	proof := s.deposit(t, "0.0.1001", 40)
	s.do(t, http.MethodPost, "/api/rounds/"+round.ID+"/join", map[string]any{"account_id": "0.0.1001", "stake_amount": 40, "transfer_proof": proof}, false)

	rec := s.do(t, http.MethodPost, "/api/rounds/"+round.ID+"/cancel", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[game.Round](t, rec)
	if got.Status != game.StatusCancelled || got.CancelReason != reasonOperatorCancel {
		t.Fatalf("cancelled round = %+v", got)
	}
	if len(got.Refunds) != 1 || got.Refunds[0].Status != game.PayoutPaid || got.Refunds[0].Amount != 40 {
		t.Fatalf("refunds = %+v", got.Refunds)
	}

	rec = s.do(t, http.MethodPost, "/api/rounds/"+round.ID+"/payout/retry", nil, true)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "nothing_to_retry" {
		t.Fatalf("retry status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCreateAndListFilters(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/rounds", map[string]any{"room_id": "vip"}, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown room status=%d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/api/rounds", map[string]any{"room_id": "vip", "min_stake": 100, "max_stake": 1000, "duration_seconds": 60}, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("explicit room status=%d body=%s", rec.Code, rec.Body.String())
	}
	s.do(t, http.MethodPost, "/api/rounds", map[string]any{}, false)

	rec = s.do(t, http.MethodGet, "/api/rounds?room_id=vip&status=open", nil, false)
	list := decode[struct {
		Items []game.Round `json:"items"`
	}](t, rec)
	if len(list.Items) != 1 || list.Items[0].RoomID != "vip" {
		t.Fatalf("filtered list = %+v", list.Items)
	}
	rec = s.do(t, http.MethodGet, "/api/rounds?status=bogus", nil, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter code=%d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/rooms", nil, false)
	rooms := decode[struct {
		Items []map[string]any `json:"items"`
	}](t, rec)
	if len(rooms.Items) != 1 || rooms.Items[0]["id"] != config.DefaultRoomID {
		t.Fatalf("rooms = %+v", rooms.Items)
	}
}

func TestRoundEventsSSE(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	round, err := s.rounds.Create(context.Background(), settlement.CreateRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/rounds/events?round_id=%s", srv.URL, round.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			if got := strings.TrimPrefix(line, "event: "); got != settlement.EventRoundCreated {
				t.Fatalf("first event = %q", got)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", sc.Err())
}
