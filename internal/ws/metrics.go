package ws

import "expvar"

var (
	metricConnectionsTotal  = expvar.NewInt("ws_round_connections_total")
	metricConnectionsActive = expvar.NewInt("ws_round_connections_active")
)
