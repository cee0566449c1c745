package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crew_monitor_http_requests_total",
		Help: "HTTP requests handled, by method and status class.",
	}, []string{"method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crew_monitor_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// SliceFetches counts monitor slice fetches by outcome: ok, error or stale.
	SliceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crew_monitor_slice_fetches_total",
		Help: "Monitor slice fetches by slice and result.",
	}, []string{"slice", "result"})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crew_monitor_realtime_events_total",
		Help: "Change events broadcast from the outbox, by table.",
	}, []string{"table"})

	RealtimeDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crew_monitor_realtime_dropped_total",
		Help: "Messages dropped because a client send buffer was full.",
	})

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crew_monitor_realtime_clients",
		Help: "Connected realtime clients.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
