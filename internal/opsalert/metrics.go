package opsalert

import "expvar"

var (
	metricAlertQueuedTotal       = expvar.NewInt("ops_alert_queued_total")
	metricAlertDroppedTotal      = expvar.NewInt("ops_alert_dropped_total")
	metricAlertRetryTotal        = expvar.NewInt("ops_alert_retry_total")
	metricAlertRetryDroppedTotal = expvar.NewInt("ops_alert_retry_dropped_total")
	metricAlertSentTotal         = expvar.NewInt("ops_alert_sent_total")
	metricAlertFailedTotal       = expvar.NewInt("ops_alert_failed_total")
	metricAlertCircuitOpenTotal  = expvar.NewInt("ops_alert_circuit_open_total")
	metricAlertQueueLen          = expvar.NewInt("ops_alert_queue_len")
	metricAlertConfigReloadTotal = expvar.NewInt("ops_alert_config_reload_total")
	metricAlertConfigReloadError = expvar.NewInt("ops_alert_config_reload_error_total")
)
