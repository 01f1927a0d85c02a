// Package payout executes pool transfers (winner payouts and stake refunds)
// and retries the ones that failed for transient reasons.
package payout

import (
	"context"
	"errors"
	"sync"
	"time"

	"round-settlement/internal/ledger"

	"github.com/rs/zerolog/log"
)

var errCircuitOpen = errors.New("circuit_open")

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

type Manager struct {
	cfg    Config
	ledger ledger.Ledger

	dispatchCh chan Job
	retryQ     *retryQueue
	done       chan struct{}

	mu           sync.Mutex
	started      bool
	stopped      bool
	onResult     func(Result)
	breakerByKey map[string]breakerState
	now          func() time.Time
}

func NewManager(cfg Config, l ledger.Ledger) *Manager {
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = time.Minute
	}
	m := &Manager{
		cfg:          cfg,
		ledger:       l,
		dispatchCh:   make(chan Job, cfg.DispatchBuffer),
		done:         make(chan struct{}),
		breakerByKey: map[string]breakerState{},
		now:          time.Now,
	}
	m.retryQ = newRetryQueue(m.dispatchCh, m.done)
	return m
}

// OnResult registers the callback for asynchronous retry outcomes.
func (m *Manager) OnResult(fn func(Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResult = fn
}

func (m *Manager) Start(ctx context.Context) error {
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
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		close(m.done)
	}()
	return nil
}

// Execute makes one attempt at job on the caller's goroutine.
func (m *Manager) Execute(ctx context.Context, job Job) Result {
	job.Attempt++
	metricPayoutAttemptTotal.Add(1)
	key := job.AccountID

	if err := m.beforeSend(key, m.now()); err != nil {
		metricPayoutCircuitOpenTotal.Add(1)
		return m.result(job, "", err)
	}
	ref, err := m.ledger.Transfer(ctx, job.AccountID, job.Amount, job.memo())
	if err != nil {
		metricPayoutFailedTotal.Add(1)
		if ledger.IsTransient(err) {
			m.afterFailure(key, m.now())
		}
		return m.result(job, "", err)
	}
	metricPayoutSuccessTotal.Add(1)
	m.afterSuccess(key)
	return m.result(job, ref, nil)
}

func (m *Manager) result(job Job, ref string, err error) Result {
	res := Result{Job: job, Reference: ref, Err: err}
	res.Final = err == nil || !Retryable(err) || job.Attempt >= m.cfg.MaxAttempts
	if err != nil && res.Final {
		metricPayoutExhaustedTotal.Add(1)
	}
	return res
}

// Retryable reports whether a failed transfer may be attempted again without
// risking a double payment.
func Retryable(err error) bool {
	return ledger.IsTransient(err) || errors.Is(err, errCircuitOpen)
}

// Schedule queues the next attempt of job after its backoff delay.
func (m *Manager) Schedule(job Job) bool {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return false
	}
	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}
	delay := m.cfg.RetryBase * time.Duration(1<<(attempt-1))
	metricPayoutRetryTotal.Add(1)
	m.retryQ.Enqueue(job, delay)
	return true
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case job := <-m.dispatchCh:
			metricPayoutQueueLen.Set(int64(len(m.dispatchCh)))
			m.processJob(ctx, job)
		}
	}
}

func (m *Manager) processJob(ctx context.Context, job Job) {
	res := m.Execute(ctx, job)
	if res.Err != nil {
		log.Warn().Err(res.Err).
			Str("round_id", job.RoundID).
			Str("account_id", job.AccountID).
			Str("kind", string(job.Kind)).
			Int("attempt", res.Job.Attempt).
			Bool("final", res.Final).
			Msg("payout attempt failed")
	}
	if !res.Final {
		m.Schedule(res.Job)
	}
	m.mu.Lock()
	fn := m.onResult
	m.mu.Unlock()
	if fn != nil {
		fn(res)
	}
}

func (m *Manager) beforeSend(key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	if !state.openUntil.IsZero() && now.Before(state.openUntil) {
		return errCircuitOpen
	}
	return nil
}

func (m *Manager) afterFailure(key string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	state.consecutiveFailures++
	if state.consecutiveFailures >= m.cfg.FailureThreshold {
		state.openUntil = now.Add(m.cfg.CircuitOpenDuration)
		state.consecutiveFailures = 0
	}
	m.breakerByKey[key] = state
}

func (m *Manager) afterSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakerByKey, key)
}
