package payout

import "expvar"

var (
	metricPayoutAttemptTotal     = expvar.NewInt("payout_attempt_total")
	metricPayoutSuccessTotal     = expvar.NewInt("payout_success_total")
	metricPayoutFailedTotal      = expvar.NewInt("payout_failed_total")
	metricPayoutRetryTotal       = expvar.NewInt("payout_retry_total")
	metricPayoutExhaustedTotal   = expvar.NewInt("payout_exhausted_total")
	metricPayoutCircuitOpenTotal = expvar.NewInt("payout_circuit_open_total")
	metricPayoutQueueLen         = expvar.NewInt("payout_queue_len")
)
