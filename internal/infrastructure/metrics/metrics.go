package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/crypto_market_table/internal/domain"
)

const namespace = "market_table"

// Metrics records refresh outcomes. It satisfies usecase.RefreshObserver.
type Metrics struct {
	Refreshes     *prometheus.CounterVec
	FetchLatency  prometheus.Histogram
	Rows          prometheus.Gauge
	Skipped       prometheus.Counter
	LastSuccess   prometheus.Gauge
	SortRequests  *prometheus.CounterVec
	WSConnections prometheus.Gauge
}

// New registers the collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) (*Metrics, *prometheus.Registry) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Completed refresh cycles by result",
		}, []string{"result"}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_latency_seconds",
			Help:      "Time to obtain a market snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		Rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows",
			Help:      "Rows in the last published dataset",
		}),
		Skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_records_total",
			Help:      "Malformed records dropped during transformation",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh",
		}),
		SortRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sort_requests_total",
			Help:      "Sort requests by column",
		}, []string{"column"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket subscribers",
		}),
	}

	reg.MustRegister(
		m.Refreshes,
		m.FetchLatency,
		m.Rows,
		m.Skipped,
		m.LastSuccess,
		m.SortRequests,
		m.WSConnections,
	)
	return m, reg
}

func (m *Metrics) ObserveRefresh(rec domain.RefreshRecord, fetchLatency time.Duration) {
	m.FetchLatency.Observe(fetchLatency.Seconds())
	if !rec.OK {
		m.Refreshes.WithLabelValues("error").Inc()
		return
	}
	m.Refreshes.WithLabelValues("ok").Inc()
	m.Rows.Set(float64(rec.Rows))
	m.Skipped.Add(float64(rec.Skipped))
	m.LastSuccess.Set(float64(rec.FinishedAt.Unix()))
}

func (m *Metrics) ObserveSort(col domain.Column) {
	m.SortRequests.WithLabelValues(string(col)).Inc()
}

func (m *Metrics) ObserveConnections(n int) {
	m.WSConnections.Set(float64(n))
}

// Handler exposes reg in the Prometheus text and OpenMetrics formats.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
