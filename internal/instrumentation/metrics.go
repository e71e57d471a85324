package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the engine and price feeds.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RoundsOpened      *prometheus.CounterVec
	OpenPriceCaptured *prometheus.CounterVec
	PositionsPlaced   *prometheus.CounterVec
	PositionsRejected *prometheus.CounterVec
	PositionsSettled  *prometheus.CounterVec
	PendingDepth      prometheus.Gauge
	OpenPositions     prometheus.Gauge
	MarketFaults      *prometheus.CounterVec
	TickLatencyMs     prometheus.Histogram
	Balance           prometheus.Gauge

	FeedMessages *prometheus.CounterVec
	FeedDropped  *prometheus.CounterVec
	FeedStatus   *prometheus.GaugeVec
}

// NewMetrics creates all metrics on a fresh registry, so several engines (or
// tests) never collide on the global default registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		RoundsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_rounds_opened_total",
			Help: "Rounds created by rollover, per market",
		}, []string{"market"}),
		OpenPriceCaptured: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_open_price_captured_total",
			Help: "Rounds whose open price was captured, per market",
		}, []string{"market"}),
		PositionsPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_positions_placed_total",
			Help: "Positions accepted, per market and direction",
		}, []string{"market", "direction"}),
		PositionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_positions_rejected_total",
			Help: "Place requests rejected, per reason",
		}, []string{"reason"}),
		PositionsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_positions_settled_total",
			Help: "Positions settled, per market and outcome",
		}, []string{"market", "outcome"}),
		PendingDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "shorts_pending_settlements",
			Help: "Rounds closed and waiting for a close price",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Name: "shorts_open_positions",
			Help: "Positions not yet settled",
		}),
		MarketFaults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_market_faults_total",
			Help: "Recovered faults while processing a market in a tick",
		}, []string{"market"}),
		TickLatencyMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "shorts_tick_latency_ms",
			Help:    "Time spent in one engine tick in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50},
		}),
		Balance: f.NewGauge(prometheus.GaugeOpts{
			Name: "shorts_balance_tokens",
			Help: "Current ledger balance",
		}),

		FeedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_feed_messages_total",
			Help: "Upstream price messages accepted, per source",
		}, []string{"source"}),
		FeedDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shorts_feed_dropped_total",
			Help: "Upstream price messages dropped as malformed or unknown, per source",
		}, []string{"source"}),
		FeedStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shorts_feed_live",
			Help: "1 if the asset feed is live, 0 otherwise",
		}, []string{"asset"}),
	}
}

// RecordRoundOpened increments the rollover counter.
func (m *Metrics) RecordRoundOpened(market string) {
	if m == nil {
		return
	}
	m.RoundsOpened.WithLabelValues(market).Inc()
}

// RecordOpenPrice increments the open price capture counter.
func (m *Metrics) RecordOpenPrice(market string) {
	if m == nil {
		return
	}
	m.OpenPriceCaptured.WithLabelValues(market).Inc()
}

// RecordPlaced increments the accepted positions counter.
func (m *Metrics) RecordPlaced(market, direction string) {
	if m == nil {
		return
	}
	m.PositionsPlaced.WithLabelValues(market, direction).Inc()
}

// RecordRejected increments the rejection counter.
func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.PositionsRejected.WithLabelValues(reason).Inc()
}

// RecordSettled increments the settled counter.
func (m *Metrics) RecordSettled(market, outcome string) {
	if m == nil {
		return
	}
	m.PositionsSettled.WithLabelValues(market, outcome).Inc()
}

// RecordFault increments the per-market fault counter.
func (m *Metrics) RecordFault(market string) {
	if m == nil {
		return
	}
	m.MarketFaults.WithLabelValues(market).Inc()
}

// RecordTick observes tick latency and the state gauges.
func (m *Metrics) RecordTick(latencyMs float64, pending, open int, balance float64) {
	if m == nil {
		return
	}
	m.TickLatencyMs.Observe(latencyMs)
	m.PendingDepth.Set(float64(pending))
	m.OpenPositions.Set(float64(open))
	m.Balance.Set(balance)
}

// RecordFeedMessage increments the accepted message counter.
func (m *Metrics) RecordFeedMessage(source string) {
	if m == nil {
		return
	}
	m.FeedMessages.WithLabelValues(source).Inc()
}

// RecordFeedDropped increments the dropped message counter.
func (m *Metrics) RecordFeedDropped(source string) {
	if m == nil {
		return
	}
	m.FeedDropped.WithLabelValues(source).Inc()
}

// RecordFeedStatus sets the liveness gauge for an asset.
func (m *Metrics) RecordFeedStatus(asset string, live bool) {
	if m == nil {
		return
	}
	v := 0.0
	if live {
		v = 1
	}
	m.FeedStatus.WithLabelValues(asset).Set(v)
}
