package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vps_screener"

// Metrics groups the collectors of one service instance. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	IngestTotal     *prometheus.CounterVec
	NodesKnown      prometheus.Gauge
	NodesStale      prometheus.Gauge
	StatusQueries   prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer, subsystem string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ingest_total",
				Help:      fmt.Sprintf("Metric payloads handled by %s", subsystem),
			},
			[]string{"result", "reason"},
		),
		NodesKnown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "nodes_known",
			Help:      "Distinct nodes that have reported at least once",
		}),
		NodesStale: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "nodes_stale",
			Help:      "Known nodes whose last report is older than the staleness threshold",
		}),
		StatusQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "status_queries_total",
			Help:      "Fleet status queries served",
		}),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "request_duration_seconds",
				Help:      fmt.Sprintf("Request duration in %s", subsystem),
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "code"},
		),
	}
}

func (m *Metrics) IngestAccepted() {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues("accepted", "").Inc()
}

func (m *Metrics) IngestRejected(reason string) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues("rejected", reason).Inc()
}

func (m *Metrics) StatusQueried() {
	if m == nil {
		return
	}
	m.StatusQueries.Inc()
}

func (m *Metrics) SetNodes(known, stale int) {
	if m == nil {
		return
	}
	m.NodesKnown.Set(float64(known))
	m.NodesStale.Set(float64(stale))
}

func (m *Metrics) SetNodesKnown(known int) {
	if m == nil {
		return
	}
	m.NodesKnown.Set(float64(known))
}

func (m *Metrics) ObserveRequest(method, endpoint, code string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, endpoint, code).Observe(seconds)
}

// Handler exposes the collectors registered in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
