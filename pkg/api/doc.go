/*
Package api serves the daemon's HTTP API.

	GET  /health    component health (503 when any component is unhealthy)
	GET  /ready     readiness of the critical components
	GET  /live      liveness
	GET  /metrics   Prometheus exposition
	GET  /status    dispatcher, publisher and listener state
	GET  /stats     latest samples, ?kind=sa|sp|ike
	GET  /errors    error history, newest first, ?limit=N
	POST /apply     YAML manifest body

POST /apply answers 202 with the number of queued tasks. A manifest that
fails validation is rejected with 400 and nothing is queued. When some tasks
were queued but a credential failed to load, the answer is still 202 with
both the count and the error.

Set Config.ReadOnly to serve monitoring endpoints on an address where
configuration changes must not be accepted.

Every request is counted in ipsecd_api_requests_total by route template and
status code.
*/
package api
