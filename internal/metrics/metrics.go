package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the run loop.
type Metrics struct {
	blocksConfirmed prometheus.Counter
	swapsConfirmed  prometheus.Counter
	reorgs          prometheus.Counter
	blocksReplaced  prometheus.Counter
	alertsSent      prometheus.Counter
	alertsDropped   prometheus.Counter
	errors          prometheus.Counter
	headHeight      prometheus.Gauge
	reorgDepth      prometheus.Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics on the default registry (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// New builds a Metrics set and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		blocksConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swap_watch_blocks_confirmed_total",
			Help: "Total number of blocks released from the window",
		}),
		swapsConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swap_watch_swaps_confirmed_total",
			Help: "Total number of swaps in released blocks",
		}),
		reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swap_watch_reorgs_total",
			Help: "Roll-forwards that replaced at least one held block",
		}),
		blocksReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swap_watch_blocks_replaced_total",
			Help: "Total number of held blocks replaced by reconciliation",
		}),
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swap_watch_alerts_sent_total",
			Help: "Total number of alerts sent to sinks",
		}),
		alertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swap_watch_alerts_dropped_total",
			Help: "Total number of alerts dropped by rate limits",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swap_watch_errors_total",
			Help: "Total number of errors encountered",
		}),
		headHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swap_watch_head_height",
			Help: "Height of the latest observed chain head",
		}),
		reorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swap_watch_reorg_depth",
			Help:    "Blocks replaced per roll-forward that saw a reorg",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 12, 16},
		}),
	}
	reg.MustRegister(
		m.blocksConfirmed,
		m.swapsConfirmed,
		m.reorgs,
		m.blocksReplaced,
		m.alertsSent,
		m.alertsDropped,
		m.errors,
		m.headHeight,
		m.reorgDepth,
	)
	return m
}

// Confirmed records one released block and its swap count.
func (m *Metrics) Confirmed(swaps int) {
	if m != nil {
		m.blocksConfirmed.Inc()
		m.swapsConfirmed.Add(float64(swaps))
	}
}

// Reorg records a roll-forward that replaced depth held blocks.
func (m *Metrics) Reorg(depth uint) {
	if m != nil && depth > 0 {
		m.reorgs.Inc()
		m.blocksReplaced.Add(float64(depth))
		m.reorgDepth.Observe(float64(depth))
	}
}

// Head sets the latest observed head height.
func (m *Metrics) Head(height uint64) {
	if m != nil {
		m.headHeight.Set(float64(height))
	}
}

// AlertsSent increments the alerts sent counter.
func (m *Metrics) AlertsSent() {
	if m != nil {
		m.alertsSent.Inc()
	}
}

// AlertsDropped increments the alerts dropped counter.
func (m *Metrics) AlertsDropped() {
	if m != nil {
		m.alertsDropped.Inc()
	}
}

// Errors increments the errors counter.
func (m *Metrics) Errors() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
