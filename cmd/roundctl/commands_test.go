package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"round-settlement/internal/config"
	"round-settlement/internal/game"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := RootCmd(config.CLIConfig{ServerURL: "http://127.0.0.1:0", WSURL: "ws://127.0.0.1:0/ws/rounds"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func sampleProof(t *testing.T) game.SelectionProof {
	t.Helper()
	stakes := []game.Stake{{AccountID: "0.0.1001", Amount: 20}, {AccountID: "0.0.1002", Amount: 80}}
	p, _, err := game.BuildSelectionProof("abc123", "round-1", game.CommitHash("abc123", "round-1"), stakes)
	if err != nil {
		t.Fatalf("build proof: %v", err)
	}
	return p
}

func TestCommitAndVerify(t *testing.T) {
	out, err := run(t, "commit", "--seed", "abc123", "--round", "round-1")
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	hash := strings.TrimSpace(out)
	if hash != game.CommitHash("abc123", "round-1") {
		t.Fatalf("commit printed %q", hash)
	}
	if out, err := run(t, "verify", "-s", "abc123", "-r", "round-1", "-c", hash); err != nil || !strings.Contains(out, "ok") {
		t.Fatalf("verify: out=%q err=%v", out, err)
	}
	if _, err := run(t, "verify", "-s", "abc124", "-r", "round-1", "-c", hash); err == nil {
		t.Fatal("verify accepted the wrong seed")
	}
}

func TestDrawFromFile(t *testing.T) {
	p := sampleProof(t)
	path := filepath.Join(t.TempDir(), "proof.json")
	raw, _ := json.Marshal(p)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write proof: %v", err)
	}
	out, err := run(t, "draw", "--file", path)
	if err != nil {
		t.Fatalf("draw: %v\n%s", err, out)
	}
	if !strings.Contains(out, "winner:  "+p.WinnerAccountID) || !strings.Contains(out, "proof:   ok") {
		t.Fatalf("draw output:\n%s", out)
	}

	p.TotalPot++
	raw, _ = json.Marshal(p)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write proof: %v", err)
	}
	if _, err := run(t, "draw", "--file", path); err == nil {
		t.Fatal("tampered proof replayed cleanly")
	}
}

func TestDrawFromServer(t *testing.T) {
	p := sampleProof(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rounds/round-1/proof" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"round_not_found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"proof": p, "verified": true})
	}))
	defer srv.Close()

	out, err := run(t, "draw", "--server", srv.URL, "--round", "round-1")
	if err != nil {
		t.Fatalf("draw: %v\n%s", err, out)
	}
	if !strings.Contains(out, "proof:   ok") {
		t.Fatalf("draw output:\n%s", out)
	}
	if _, err := run(t, "draw", "--server", srv.URL, "--round", "missing"); err == nil {
		t.Fatal("expected error for unknown round")
	}
	if _, err := run(t, "draw"); err == nil {
		t.Fatal("expected error without --file or --round")
	}
}

func TestPrintFeed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello","protocol_version":"1.0"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"round_event","event":{"event_id":"1","event":"round_locked","round_id":"r1","server_ts":0,"data":{"status":"locked","total_pot":100,"players":[{},{}]}}}`))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	var out bytes.Buffer
	if err := printFeed(conn, &out); err != nil {
		t.Fatalf("printFeed: %v", err)
	}
	line := out.String()
	if !strings.Contains(line, "round_locked") || !strings.Contains(line, "players=2 pot=100") {
		t.Fatalf("feed output %q", line)
	}
}
