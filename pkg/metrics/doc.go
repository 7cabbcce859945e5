/*
Package metrics provides Prometheus metrics and component health for ipsecd.

All collectors are package-level variables registered with the default
registry in init, so any package can update them without wiring. Handler
exposes them for scraping.

# Architecture

	┌────────────── dispatcher ──────────────┐
	│ ConfigTasksTotal, ConfigQueueDepth      │
	└────────────────────┬────────────────────┘
	┌────────────── publisher ───────────────┐
	│ StatQueriesTotal, PublishDuration       │──► Sink ──► SA/SP/IKE gauges
	└────────────────────┬────────────────────┘
	┌────────────── orchestrator ────────────┐
	│ IKEErrorsTotal (via Sink.RecordError)   │
	└────────────────────┬────────────────────┘
	                     ▼
	           prometheus.DefaultRegisterer ──► GET /metrics

# Metrics

Configuration:

	ipsecd_config_tasks_total{kind, action, result}
	  Tasks run by the dispatcher. result is "ok", "failed" or "dropped".
	ipsecd_config_queue_depth
	  Tasks waiting in the dispatcher queue.

Statistics:

	ipsecd_stat_queries_total{kind, result}
	  Queries made by the publisher against the IKE daemon and the kernel.
	ipsecd_publish_duration_seconds
	  Duration of one publish pass over every subscription.
	ipsecd_sa_bytes{spi}, ipsecd_sa_packets{spi}
	  Kernel SA counters from the latest sample.
	ipsecd_sp_templates{policy}
	  Templates on a subscribed kernel policy.
	ipsecd_ike_connection_state{name}
	  1 while the IKE SA is established, 0 otherwise.
	ipsecd_ike_child_bytes{name, direction}
	  Child SA traffic, direction "in" or "out".

Errors and API:

	ipsecd_ike_errors_total{event}
	  Errors received on the error-notify socket, by event name.
	ipsecd_api_requests_total{path, status}
	  HTTP API requests by route template and status code.

# Sink

Sink implements the publisher sink and turns each StatSnapshot into gauge
updates:

	sink := metrics.NewSink()
	pub := publisher.NewPublisher(&publisher.Config{Sink: sink, ...})

# Health

Components register their state and the API serves it:

	metrics.RegisterComponent(metrics.ComponentIKE, true, "connected")
	metrics.UpdateComponent(metrics.ComponentErrNotify, false, err.Error())

GetHealth reports "unhealthy" when any registered component is unhealthy.
GetReadiness only looks at the critical components (IKE, dispatcher and
publisher by default): the error listener reconnects in the background and
does not block readiness.

# Queries

	rate(ipsecd_config_tasks_total{result="failed"}[5m])
	ipsecd_ike_connection_state == 0
	increase(ipsecd_ike_errors_total{event="peer_auth_failed"}[1h])
	histogram_quantile(0.95, rate(ipsecd_publish_duration_seconds_bucket[5m]))

# Testing

Reset clears the health registry between tests. Collector values are read
with Write into a client_model dto.Metric.
*/
package metrics
