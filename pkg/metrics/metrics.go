package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the engine's operational counters. A nil *Metrics is
// valid and records nothing, so components can be wired without one.
type Metrics struct {
	FeedEvents    *prometheus.CounterVec
	FeedErrors    *prometheus.CounterVec
	WriteFailures *prometheus.CounterVec
	ReadReceipts  prometheus.Counter
}

// New registers the engine counters on reg (the default registerer when
// nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		FeedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_feed_events_total",
			Help: "Change feed events applied, by feed and kind.",
		}, []string{"feed", "kind"}),
		FeedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_feed_errors_total",
			Help: "Terminal change feed failures, by feed.",
		}, []string{"feed"}),
		WriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_store_write_failures_total",
			Help: "Store mutations that did not commit, by operation.",
		}, []string{"op"}),
		ReadReceipts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_read_receipts_total",
			Help: "Messages transitioned to read by the receipt machine.",
		}),
	}
}

func (m *Metrics) FeedEvent(feed, kind string) {
	if m == nil {
		return
	}
	m.FeedEvents.WithLabelValues(feed, kind).Inc()
}

func (m *Metrics) FeedError(feed string) {
	if m == nil {
		return
	}
	m.FeedErrors.WithLabelValues(feed).Inc()
}

func (m *Metrics) WriteFailure(op string) {
	if m == nil {
		return
	}
	m.WriteFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) ReadReceipt() {
	if m == nil {
		return
	}
	m.ReadReceipts.Inc()
}
