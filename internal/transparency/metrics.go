package transparency

import "expvar"

var (
	metricPublishTotal  = expvar.NewInt("transparency_publish_total")
	metricPublishErrors = expvar.NewInt("transparency_publish_errors_total")
)
