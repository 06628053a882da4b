// Package metrics defines the MetricSink external collaborator
// (spec.md §1: "The metrics/telemetry pipeline" is deliberately out of
// scope) plus a concrete Prometheus-backed implementation, grounded in
// cirla-prebid-server/pbsmetrics/prometheus's Metrics type.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the narrow surface the reactor pipeline needs from the telemetry
// system: counters for outcomes and timers for latency. Anything richer
// belongs to the external pipeline, not this core.
type Sink interface {
	RecordBuyerBidRequest(buyer string, gotBids bool, err error)
	RecordBuyerBidTime(buyer string, d time.Duration)
	RecordScoringSignalsFetch(err error)
	RecordScoreAds(err error)
	RecordAuctionOutcome(isChaff bool)
}

// PrometheusSink implements Sink, registering its metrics on the given
// registry. Constructed once per process, shared across reactors.
type PrometheusSink struct {
	Registry *prometheus.Registry

	buyerRequests  *prometheus.CounterVec
	buyerTimer     *prometheus.HistogramVec
	signalsFetches *prometheus.CounterVec
	scoreAds       *prometheus.CounterVec
	auctions       *prometheus.CounterVec
}

// NewPrometheusSink builds and registers the SFE's Prometheus metrics.
func NewPrometheusSink() *PrometheusSink {
	reg := prometheus.NewRegistry()
	timerBuckets := prometheus.ExponentialBuckets(0.005, 2, 12)

	m := &PrometheusSink{
		Registry: reg,
		buyerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfe_buyer_bid_requests_total",
			Help: "Total GetBids calls issued per buyer, by outcome.",
		}, []string{"buyer", "outcome"}),
		buyerTimer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sfe_buyer_bid_duration_seconds",
			Help:    "GetBids round-trip latency per buyer.",
			Buckets: timerBuckets,
		}, []string{"buyer"}),
		signalsFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfe_scoring_signals_fetch_total",
			Help: "Scoring-signals fetches, by outcome.",
		}, []string{"outcome"}),
		scoreAds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfe_score_ads_total",
			Help: "ScoreAds calls, by outcome.",
		}, []string{"outcome"}),
		auctions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sfe_auctions_total",
			Help: "Completed auctions, by chaff/non-chaff outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.buyerRequests, m.buyerTimer, m.signalsFetches, m.scoreAds, m.auctions)
	return m
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *PrometheusSink) RecordBuyerBidRequest(buyer string, gotBids bool, err error) {
	label := outcomeLabel(err)
	if err == nil && !gotBids {
		label = "no_bids"
	}
	m.buyerRequests.WithLabelValues(buyer, label).Inc()
}

func (m *PrometheusSink) RecordBuyerBidTime(buyer string, d time.Duration) {
	m.buyerTimer.WithLabelValues(buyer).Observe(d.Seconds())
}

func (m *PrometheusSink) RecordScoringSignalsFetch(err error) {
	m.signalsFetches.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *PrometheusSink) RecordScoreAds(err error) {
	m.scoreAds.WithLabelValues(outcomeLabel(err)).Inc()
}

func (m *PrometheusSink) RecordAuctionOutcome(isChaff bool) {
	label := "winner"
	if isChaff {
		label = "chaff"
	}
	m.auctions.WithLabelValues(label).Inc()
}

// NoOp is a Sink that discards everything, used where no MetricSink is
// configured (e.g. unit tests).
type NoOp struct{}

func (NoOp) RecordBuyerBidRequest(string, bool, error)  {}
func (NoOp) RecordBuyerBidTime(string, time.Duration)   {}
func (NoOp) RecordScoringSignalsFetch(error)            {}
func (NoOp) RecordScoreAds(error)                       {}
func (NoOp) RecordAuctionOutcome(bool)                  {}
