package httptransport

import "expvar"

var (
	metricRoundCreateTotal  = expvar.NewInt("http_round_create_total")
	metricRoundCreateErrors = expvar.NewInt("http_round_create_errors_total")

	metricJoinSubmitTotal  = expvar.NewInt("http_join_submit_total")
	metricJoinSubmitErrors = expvar.NewInt("http_join_submit_errors_total")

	metricRoundSSEConnectionsTotal  = expvar.NewInt("round_sse_connections_total")
	metricRoundSSEConnectionsActive = expvar.NewInt("round_sse_connections_active")

	// keyed by error kind
	metricDomainErrors = expvar.NewMap("http_domain_errors_total")
)
