package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatcher metrics
	ConfigTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsecd_config_tasks_total",
			Help: "Total number of configuration tasks by kind, action and result",
		},
		[]string{"kind", "action", "result"},
	)

	ConfigQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ipsecd_config_queue_depth",
			Help: "Number of configuration tasks waiting to be applied",
		},
	)

	// Publisher metrics
	StatQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsecd_stat_queries_total",
			Help: "Total number of statistics queries by kind and result",
		},
		[]string{"kind", "result"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ipsecd_publish_duration_seconds",
			Help:    "Time taken by one statistics publish pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SABytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipsecd_sa_bytes",
			Help: "Bytes processed by a kernel SA",
		},
		[]string{"spi"},
	)

	SAPackets = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipsecd_sa_packets",
			Help: "Packets processed by a kernel SA",
		},
		[]string{"spi"},
	)

	SPTemplates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipsecd_sp_templates",
			Help: "Number of templates on a kernel policy",
		},
		[]string{"policy"},
	)

	IKEConnectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipsecd_ike_connection_state",
			Help: "Whether an IKE connection is established (1) or not (0)",
		},
		[]string{"name"},
	)

	IKEChildBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ipsecd_ike_child_bytes",
			Help: "Bytes carried by the child SAs of an IKE connection",
		},
		[]string{"name", "direction"},
	)

	// Error listener metrics
	IKEErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsecd_ike_errors_total",
			Help: "Total number of errors reported by the IKE daemon by event",
		},
		[]string{"event"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ipsecd_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(ConfigTasksTotal)
	prometheus.MustRegister(ConfigQueueDepth)
	prometheus.MustRegister(StatQueriesTotal)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(SABytes)
	prometheus.MustRegister(SAPackets)
	prometheus.MustRegister(SPTemplates)
	prometheus.MustRegister(IKEConnectionState)
	prometheus.MustRegister(IKEChildBytes)
	prometheus.MustRegister(IKEErrorsTotal)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
