package opsalert

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"round-settlement/internal/opsalert/platforms"
)

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

type Manager struct {
	cfg      Config
	router   Router
	adapters map[string]platforms.Adapter

	dispatchCh chan pushJob
	retryQ     *retryQueue
	done       chan struct{}

	mu           sync.Mutex
	started      bool
	breakerByKey map[string]breakerState
}

func NewManager(cfg Config) *Manager {
	client := platforms.NewHTTPClient(cfg.RequestTimeout)
	adapters := map[string]platforms.Adapter{
		"discord": platforms.NewDiscordAdapter(client),
		"feishu":  platforms.NewFeishuAdapter(client),
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}

	m := &Manager{
		cfg:          cfg,
		adapters:     adapters,
		dispatchCh:   make(chan pushJob, cfg.DispatchBuffer),
		done:         make(chan struct{}),
		breakerByKey: map[string]breakerState{},
	}
	m.retryQ = newRetryQueue(m.dispatchCh, m.done)
	return m
}

func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.Workers; i++ {
		go m.worker(ctx)
	}
	if m.cfg.ConfigPath != "" {
		go m.watchConfigLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		close(m.done)
	}()
	return nil
}

// Notify fans the alert out to every matching target. It never blocks the caller.
func (m *Manager) Notify(a Alert) {
	if !m.cfg.Enabled || a.Event == "" {
		return
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	formatted, ok := FormatMessage(a)
	if !ok {
		return
	}
	for _, target := range m.router.MatchTargets(m.currentTargets(), a) {
		if !m.enqueue(pushJob{Target: target, Alert: a, Formatted: formatted}) {
			metricAlertDroppedTotal.Add(1)
			log.Warn().Str("event", string(a.Event)).Str("round_id", a.RoundID).Str("platform", target.Platform).Msg("ops alert dropped")
		}
	}
}

func (m *Manager) enqueue(job pushJob) bool {
	select {
	case <-m.done:
		return false
	case m.dispatchCh <- job:
		metricAlertQueuedTotal.Add(1)
		metricAlertQueueLen.Set(int64(len(m.dispatchCh)))
		return true
	default:
		return false
	}
}

func (m *Manager) currentTargets() []Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Target, len(m.cfg.Targets))
	copy(out, m.cfg.Targets)
	return out
}

func (m *Manager) watchConfigLoop(ctx context.Context) {
	interval := m.cfg.ConfigReload
	if interval <= 0 {
		interval = time.Second
	}
	lastRaw := ""
	if raw, err := os.ReadFile(m.cfg.ConfigPath); err == nil {
		lastRaw = strings.TrimSpace(string(raw))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			raw, err := os.ReadFile(m.cfg.ConfigPath)
			if err != nil {
				metricAlertConfigReloadError.Add(1)
				continue
			}
			nextRaw := strings.TrimSpace(string(raw))
			if nextRaw == lastRaw {
				continue
			}
			targets, err := parseTargetsJSON(nextRaw)
			if err != nil {
				metricAlertConfigReloadError.Add(1)
				log.Warn().Err(err).Str("path", m.cfg.ConfigPath).Msg("ops alert config reload failed")
				continue
			}
			m.mu.Lock()
			m.cfg.Targets = targets
			m.mu.Unlock()
			lastRaw = nextRaw
			metricAlertConfigReloadTotal.Add(1)
		}
	}
}
