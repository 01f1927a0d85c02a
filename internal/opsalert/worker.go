package opsalert

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"round-settlement/internal/opsalert/platforms"
)

var errCircuitOpen = errors.New("circuit_open")

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case job := <-m.dispatchCh:
			metricAlertQueueLen.Set(int64(len(m.dispatchCh)))
			m.processJob(ctx, job)
		}
	}
}

func (m *Manager) processJob(ctx context.Context, job pushJob) {
	adapter := m.adapters[job.Target.Platform]
	if adapter == nil {
		metricAlertDroppedTotal.Add(1)
		return
	}

	if err := m.beforeSend(job.key(), time.Now()); err != nil {
		metricAlertCircuitOpenTotal.Add(1)
		m.retryOrDrop(job, err)
		return
	}

	if err := adapter.Send(ctx, job.Target.Endpoint, job.Target.Secret, toPlatformMessage(job.Formatted)); err != nil {
		metricAlertFailedTotal.Add(1)
		m.afterFailure(job.key(), time.Now())
		m.retryOrDrop(job, err)
		return
	}

	metricAlertSentTotal.Add(1)
	m.afterSuccess(job.key())
}

func (m *Manager) retryOrDrop(job pushJob, err error) bool {
	if job.Attempt >= m.cfg.RetryMax {
		metricAlertRetryDroppedTotal.Add(1)
		log.Error().Err(err).
			Str("event", string(job.Alert.Event)).
			Str("round_id", job.Alert.RoundID).
			Str("platform", job.Target.Platform).
			Msg("ops alert undeliverable")
		return false
	}
	job.Attempt++
	metricAlertRetryTotal.Add(1)
	delay := m.cfg.RetryBase * time.Duration(1<<(job.Attempt-1))
	m.retryQ.Enqueue(job, delay)
	return true
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
	m.breakerByKey[key] = breakerState{}
}

func toPlatformMessage(msg FormattedMessage) platforms.Message {
	fields := make([]platforms.Field, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, platforms.Field{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return platforms.Message{
		Title:       msg.Title,
		Content:     msg.Content,
		Description: msg.Description,
		Color:       msg.Color,
		Timestamp:   msg.Timestamp,
		Footer:      msg.Footer,
		Fields:      fields,
	}
}
