package settlement

import "expvar"

var (
	metricRoundsCreatedTotal   = expvar.NewInt("settlement_rounds_created_total")
	metricJoinsTotal           = expvar.NewInt("settlement_joins_total")
	metricJoinsRejectedTotal   = expvar.NewInt("settlement_joins_rejected_total")
	metricLocksTotal           = expvar.NewInt("settlement_locks_total")
	metricRevealsTotal         = expvar.NewInt("settlement_reveals_total")
	metricCancelsTotal         = expvar.NewInt("settlement_cancels_total")
	metricPublishFailuresTotal = expvar.NewInt("settlement_publish_failures_total")
	metricPurgedTotal          = expvar.NewInt("settlement_purged_total")
)
