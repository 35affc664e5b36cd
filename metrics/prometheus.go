package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sharepool"

var (
	// Singleton collector
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds all sharepool metrics
type Collector struct {
	// Ledger metrics
	OperationsTotal  *prometheus.CounterVec
	RejectionsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	DonationVolume   prometheus.Counter
	WithdrawalVolume prometheus.Counter
	PoolsActive      prometheus.Gauge
	CustodyBalance   prometheus.Gauge
	EventSequence    prometheus.Gauge

	// Event sink metrics
	SinkErrorsTotal *prometheus.CounterVec

	// Indexer metrics
	IndexerEventsApplied   *prometheus.CounterVec
	IndexerEventsDuplicate prometheus.Counter
	IndexerLastSequence    prometheus.Gauge

	// WebSocket metrics
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// API metrics
	APIRequestsTotal  *prometheus.CounterVec
	APIRequestLatency *prometheus.HistogramVec
	RateLimitHits     *prometheus.CounterVec
}

// GetCollector returns the singleton collector registered on the default registry
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = NewCollector(prometheus.DefaultRegisterer)
	})
	return collector
}

// NewCollector creates a collector and registers it on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{}

	c.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by type and result",
		},
		[]string{"operation", "result"},
	)

	c.RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Rejected ledger operations by reason code",
		},
		[]string{"operation", "reason"},
	)

	c.OperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_latency_ms",
			Help:      "Ledger operation latency in milliseconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"operation"},
	)

	c.DonationVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "donation_volume",
			Help:      "Settlement units donated",
		},
	)

	c.WithdrawalVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "withdrawal_volume",
			Help:      "Settlement units withdrawn",
		},
	)

	c.PoolsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "pools_active",
			Help:      "Number of active pools",
		},
	)

	c.CustodyBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "custody_balance",
			Help:      "Settlement units held for all pools",
		},
	)

	c.EventSequence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "event_sequence",
			Help:      "Last assigned event sequence number",
		},
	)

	c.SinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "sink_errors_total",
			Help:      "Event delivery failures by sink",
		},
		[]string{"sink"},
	)

	c.IndexerEventsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_applied_total",
			Help:      "Events applied by the indexer by type",
		},
		[]string{"type"},
	)

	c.IndexerEventsDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_duplicate_total",
			Help:      "Re-delivered events skipped by the indexer",
		},
	)

	c.IndexerLastSequence = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_sequence",
			Help:      "Highest event sequence applied by the indexer",
		},
	)

	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of active WebSocket connections",
		},
	)

	c.WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "WebSocket messages pushed by channel",
		},
		[]string{"channel"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	c.APIRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_latency_ms",
			Help:      "HTTP request latency in milliseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"method", "route"},
	)

	c.RateLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"limit_type"},
	)

	reg.MustRegister(
		c.OperationsTotal,
		c.RejectionsTotal,
		c.OperationLatency,
		c.DonationVolume,
		c.WithdrawalVolume,
		c.PoolsActive,
		c.CustodyBalance,
		c.EventSequence,
		c.SinkErrorsTotal,
		c.IndexerEventsApplied,
		c.IndexerEventsDuplicate,
		c.IndexerLastSequence,
		c.WSConnectionsActive,
		c.WSMessagesTotal,
		c.APIRequestsTotal,
		c.APIRequestLatency,
		c.RateLimitHits,
	)

	return c
}

// ============ Recording Helpers ============

// RecordOperation records a ledger operation outcome. reason is empty on success.
func (c *Collector) RecordOperation(operation, reason string, latencyMs float64) {
	result := "ok"
	if reason != "" {
		result = "rejected"
		c.RejectionsTotal.WithLabelValues(operation, reason).Inc()
	}
	c.OperationsTotal.WithLabelValues(operation, result).Inc()
	c.OperationLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordDonation adds donated units
func (c *Collector) RecordDonation(amount float64) {
	c.DonationVolume.Add(amount)
}

// RecordWithdrawal adds withdrawn units
func (c *Collector) RecordWithdrawal(amount float64) {
	c.WithdrawalVolume.Add(amount)
}

// UpdateLedger sets the ledger gauges
func (c *Collector) UpdateLedger(activePools int, custody float64, sequence uint64) {
	c.PoolsActive.Set(float64(activePools))
	c.CustodyBalance.Set(custody)
	c.EventSequence.Set(float64(sequence))
}

// RecordSinkError records a failed event delivery
func (c *Collector) RecordSinkError(sink string) {
	c.SinkErrorsTotal.WithLabelValues(sink).Inc()
}

// RecordIndexed records an indexer apply; duplicate events are counted separately
func (c *Collector) RecordIndexed(eventType string, seq uint64, duplicate bool) {
	if duplicate {
		c.IndexerEventsDuplicate.Inc()
		return
	}
	c.IndexerEventsApplied.WithLabelValues(eventType).Inc()
	c.IndexerLastSequence.Set(float64(seq))
}

// RecordAPIRequest records an API request
func (c *Collector) RecordAPIRequest(method, route, status string, latencyMs float64) {
	c.APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	c.APIRequestLatency.WithLabelValues(method, route).Observe(latencyMs)
}

// RecordRateLimitHit records a rate-limited request
func (c *Collector) RecordRateLimitHit(limitType string) {
	c.RateLimitHits.WithLabelValues(limitType).Inc()
}

// RecordWSConnection records WebSocket connection changes
func (c *Collector) RecordWSConnection(delta int) {
	c.WSConnectionsActive.Add(float64(delta))
}

// RecordWSMessage records a pushed WebSocket message
func (c *Collector) RecordWSMessage(channel string) {
	c.WSMessagesTotal.WithLabelValues(channel).Inc()
}

// ============ HTTP Handler ============

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for measuring latency
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ElapsedMs returns the elapsed time in milliseconds
func (t *Timer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
