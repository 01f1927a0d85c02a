package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apppublic "round-settlement/internal/app/public"
	"round-settlement/internal/config"
	"round-settlement/internal/hedera"
	"round-settlement/internal/hedera/mirror"
	"round-settlement/internal/ledger"
	"round-settlement/internal/logging"
	"round-settlement/internal/mcpserver"
	"round-settlement/internal/opsalert"
	"round-settlement/internal/payout"
	"round-settlement/internal/settlement"
	"round-settlement/internal/store"
	"round-settlement/internal/transparency"
	httptransport "round-settlement/internal/transport/http"
	"round-settlement/internal/ws"
)

const version = "0.1.0"

const devPoolAccount = "0.0.5000"

type backends struct {
	repo      settlement.Repository
	rounds    apppublic.RoundsByAccount
	ledger    ledger.Ledger
	dev       *ledger.Memory
	pool      string
	topic     transparency.Topic
	reader    transparency.Reader
	health    func() error
	closeFunc []func()
}

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}
	logging.Init(cfg.Log)
	defer func() { _ = logging.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("backend init failed")
	}
	defer func() {
		for _, fn := range b.closeFunc {
			fn()
		}
	}()

	srv := cfg.Server
	payer := payout.NewManager(payout.Config{
		Workers:             srv.PayoutWorkers,
		MaxAttempts:         srv.PayoutMaxAttempts,
		RetryBase:           srv.PayoutRetryBase,
		FailureThreshold:    srv.PayoutBreakerFails,
		CircuitOpenDuration: srv.PayoutBreakerOpen,
	}, b.ledger)

	alertCfg, err := opsalert.ConfigFromServer(srv)
	if err != nil {
		log.Fatal().Err(err).Msg("ops alert config failed")
	}
	alerts := opsalert.NewManager(alertCfg)

	rounds := settlement.New(b.repo, b.ledger, transparency.NewLog(b.topic, 3, 500*time.Millisecond), payer,
		settlement.Options{
			AutoLockLead:   srv.AutoLockLead,
			AutoReveal:     srv.AutoReveal,
			RevealDelay:    srv.RevealDelay,
			RoundRetention: srv.RoundRetention,
			ProofGuardTTL:  srv.TransferMaxAge * 2,
		},
		settlement.WithAlerter(alerts),
		settlement.WithRooms(cfg.Rooms),
	)
	payer.OnResult(rounds.HandlePayoutResult)

	if err := alerts.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("ops alert start failed")
	}
	if err := payer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("payout manager start failed")
	}
	flagged, err := rounds.ResumePayouts(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("resume payouts failed")
	}
	if flagged > 0 {
		log.Warn().Int("count", flagged).Msg("transfers left pending by previous run flagged for operator review")
	}
	rounds.StartJanitor(ctx, srv.JanitorInterval)

	deps := httptransport.Deps{
		Rounds:        rounds,
		Public:        apppublic.NewService(b.rounds, b.reader, cfg.Hedera.TopicID),
		Ledger:        b.ledger,
		PoolAccount:   b.pool,
		TokenDecimals: cfg.Hedera.TokenDecimals,
		DevLedger:     b.dev,
		AdminAPIKey:   srv.AdminAPIKey,
		Health:        b.health,
		RoundFeed:     http.HandlerFunc(ws.NewServer(rounds.Events()).HandleWS),
	}
	if srv.MCPEnabled {
		deps.MCP = mcpserver.New(rounds, version).Handler()
	}
	r := httptransport.NewRouter(deps)
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              srv.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.HTTPAddr).Str("store", srv.StoreBackend).Str("ledger", cfg.Hedera.LedgerBackend).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rounds.Events().Close()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped")
		return
	}
	log.Info().Msg("server stopped")
}

func openBackends(ctx context.Context, cfg config.AppConfig) (*backends, error) {
	b := &backends{health: func() error { return nil }}

	switch cfg.Server.StoreBackend {
	case config.StoreBackendPostgres:
		st, err := store.New(cfg.Server.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			st.Close()
			return nil, err
		}
		b.repo, b.rounds = st, st
		b.health = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return st.Ping(pingCtx)
		}
		b.closeFunc = append(b.closeFunc, st.Close)
	default:
		mem := store.NewMemory()
		b.repo, b.rounds = mem, mem
	}

	h := cfg.Hedera
	switch h.LedgerBackend {
	case config.LedgerBackendHedera:
		client, err := hedera.NewClient(h, cfg.Server.ExternalCallTimeout)
		if err != nil {
			return nil, err
		}
		b.closeFunc = append(b.closeFunc, func() { _ = client.Close() })
		mc := mirror.New(h.MirrorNodeURL, cfg.Server.ExternalCallTimeout)
		b.pool = h.Pool()
		b.ledger = ledger.NewRetrying(
			ledger.NewHedera(client, mc, b.pool, h.TokenID, cfg.Server.TransferMaxAge),
			ledger.RetryOptions{Attempts: 3, Base: 250 * time.Millisecond, Timeout: cfg.Server.ExternalCallTimeout},
		)
		b.topic = transparency.NewHederaTopic(client)
		b.reader = transparency.NewMirrorReader(mc, h.TopicID)
	default:
		dev := ledger.NewMemory(devPoolAccount)
		topic := transparency.NewMemoryTopic()
		b.dev, b.ledger, b.pool = dev, dev, devPoolAccount
		b.topic, b.reader = topic, topic
		log.Warn().Str("pool", devPoolAccount).Msg("memory ledger active; stakes are simulated through /api/dev/deposits")
	}
	return b, nil
}
