package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claudeayi/kalyptia-ledger/internal/events"
)

// Metrics owns the process's Prometheus registry and every instrument the
// ledger exports. It satisfies the storage MetricsHook and the broadcast
// Metrics interfaces so both layers feed the same registry.
type Metrics struct {
	registry *prometheus.Registry

	appendTotal    *prometheus.CounterVec
	appendFailures *prometheus.CounterVec
	appendSeconds  prometheus.Histogram
	verifyTotal    *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	backfillTotal  prometheus.Counter

	dispatchTotal *prometheus.CounterVec
	fanoutSize    prometheus.Histogram
	overflowTotal prometheus.Counter
	routingErrors *prometheus.CounterVec

	storageSeconds *prometheus.HistogramVec
	storageBytes   *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		appendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_appends_total",
			Help: "Entries committed to the ledger, by event type.",
		}, []string{"type"}),
		appendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_append_failures_total",
			Help: "Appends rejected or failed, by event type.",
		}, []string{"type"}),
		appendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_append_duration_seconds",
			Help:    "Wall time of one append, lock wait through fsync.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_verifications_total",
			Help: "Chain verification runs, by outcome.",
		}, []string{"outcome"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_sessions_active",
			Help: "Live subscription sessions.",
		}),
		backfillTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_backfill_entries_total",
			Help: "Entries replayed to reconnecting sessions during backfill.",
		}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_dispatches_total",
			Help: "Entries dispatched to live fan-out, by event type.",
		}, []string{"type"}),
		fanoutSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_dispatch_fanout",
			Help:    "Sessions addressed per dispatched entry.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		overflowTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_subscriber_overflows_total",
			Help: "Sessions disconnected because their delivery queue filled.",
		}),
		routingErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_routing_errors_total",
			Help: "Route computations that failed, by event type.",
		}, []string{"type"}),
		storageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_storage_op_duration_seconds",
			Help:    "Storage operation latency, by op.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"op"}),
		storageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_storage_op_bytes_total",
			Help: "Bytes moved by storage operations, by op.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.appendTotal, m.appendFailures, m.appendSeconds, m.verifyTotal,
		m.sessionsActive, m.backfillTotal,
		m.dispatchTotal, m.fanoutSize, m.overflowTotal, m.routingErrors,
		m.storageSeconds, m.storageBytes,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAppend(t events.Type, elapsed time.Duration) {
	m.appendTotal.WithLabelValues(string(t)).Inc()
	m.appendSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAppendFailure(t events.Type) {
	m.appendFailures.WithLabelValues(string(t)).Inc()
}

// gateway.Metrics

func (m *Metrics) ObserveBackfill(entries int) {
	m.backfillTotal.Add(float64(entries))
}

func (m *Metrics) ObserveVerify(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "corrupt"
	}
	m.verifyTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionStarted() { m.sessionsActive.Inc() }
func (m *Metrics) SessionEnded()   { m.sessionsActive.Dec() }

// broadcast.Metrics

func (m *Metrics) ObserveDispatch(t events.Type, fanout int) {
	m.dispatchTotal.WithLabelValues(string(t)).Inc()
	m.fanoutSize.Observe(float64(fanout))
}

func (m *Metrics) ObserveOverflow() { m.overflowTotal.Inc() }

func (m *Metrics) ObserveRoutingError(t events.Type) {
	m.routingErrors.WithLabelValues(string(t)).Inc()
}

// pebblestore.MetricsHook

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storageSeconds.WithLabelValues("write").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("write").Add(float64(bytes))
}

func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storageSeconds.WithLabelValues("read").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.storageSeconds.WithLabelValues("commit").Observe(elapsed.Seconds())
	m.storageBytes.WithLabelValues("commit").Add(float64(bytes))
}
