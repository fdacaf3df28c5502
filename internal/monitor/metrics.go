package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "puller_active_sessions",
		Help: "Devices currently registered and polled",
	})

	TotalConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "puller_connections_total",
		Help: "Accepted TCP connections",
	})

	RegistrationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "puller_registration_failures_total",
		Help: "Connections dropped before a valid registration",
	})

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puller_sessions_closed_total",
			Help: "Closed sessions by reason",
		},
		[]string{"reason"},
	)

	// Polling metrics
	Polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puller_polls_total",
			Help: "Request/response exchanges by mode",
		},
		[]string{"mode"},
	)

	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "puller_bytes_sent_total",
		Help: "Bytes written to devices",
	})

	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "puller_bytes_received_total",
		Help: "Bytes read from devices",
	})

	RecordsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puller_records_stored_total",
			Help: "Telemetry records persisted by mode",
		},
		[]string{"mode"},
	)

	StoreErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "puller_store_errors_total",
		Help: "Device store calls that failed",
	})

	PublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "puller_publish_errors_total",
			Help: "Failed integration publishes by sink",
		},
		[]string{"sink"},
	)

	// Latency
	ExchangeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "puller_exchange_duration_seconds",
		Help:    "Time from request write to decoded response",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})
)

func init() {
	prometheus.MustRegister(
		ActiveSessions,
		TotalConnections,
		RegistrationFailures,
		SessionsClosed,
		Polls,
		BytesSent,
		BytesReceived,
		RecordsStored,
		StoreErrors,
		PublishErrors,
		ExchangeDuration,
	)
}

// Handler serves the default registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.Handler()
}
