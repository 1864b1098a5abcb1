package infra

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics provides lightweight observability.
// Uses atomic operations for thread-safety and doubles as a
// prometheus.Collector so the same counters back /metrics.
type Metrics struct {
	// Counters
	liveFetches      atomic.Uint64
	syntheticFetches atomic.Uint64
	providerFailures atomic.Uint64
	cacheHits        atomic.Uint64
	cacheMisses      atomic.Uint64
	broadcasts       atomic.Uint64
	broadcastFaults  atomic.Uint64
	messagesDropped  atomic.Uint64
	errorsTotal      atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64

	// Gauges
	activeConnections atomic.Int32
	subscriptions     atomic.Int32
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordFetch records a series acquisition and its provider latency.
func (m *Metrics) RecordFetch(live bool, latency time.Duration) {
	if live {
		m.liveFetches.Add(1)
	} else {
		m.syntheticFetches.Add(1)
	}
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordProviderFailure records a gateway call that fell back to synthetic data.
func (m *Metrics) RecordProviderFailure() {
	m.providerFailures.Add(1)
}

// RecordCache records a cache lookup.
func (m *Metrics) RecordCache(hit bool) {
	if hit {
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
}

// RecordBroadcast records a completed broadcast cycle.
func (m *Metrics) RecordBroadcast() {
	m.broadcasts.Add(1)
}

// RecordBroadcastFault records a failed broadcast cycle.
func (m *Metrics) RecordBroadcastFault() {
	m.broadcastFaults.Add(1)
	m.errorsTotal.Add(1)
}

// RecordDropped records an outbound message discarded by a full queue.
func (m *Metrics) RecordDropped() {
	m.messagesDropped.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// IncrementConnections increments active connections by 1.
func (m *Metrics) IncrementConnections() {
	m.activeConnections.Add(1)
}

// DecrementConnections decrements active connections by 1.
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Add(-1)
}

// AddSubscriptions adjusts the number of active topic subscriptions.
func (m *Metrics) AddSubscriptions(delta int32) {
	m.subscriptions.Add(delta)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	LiveFetches       uint64
	SyntheticFetches  uint64
	ProviderFailures  uint64
	CacheHits         uint64
	CacheMisses       uint64
	Broadcasts        uint64
	BroadcastFaults   uint64
	MessagesDropped   uint64
	ErrorsTotal       uint64
	AvgLatencyNs      int64
	ActiveConnections int32
	Subscriptions     int32
	Timestamp         time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		LiveFetches:       m.liveFetches.Load(),
		SyntheticFetches:  m.syntheticFetches.Load(),
		ProviderFailures:  m.providerFailures.Load(),
		CacheHits:         m.cacheHits.Load(),
		CacheMisses:       m.cacheMisses.Load(),
		Broadcasts:        m.broadcasts.Load(),
		BroadcastFaults:   m.broadcastFaults.Load(),
		MessagesDropped:   m.messagesDropped.Load(),
		ErrorsTotal:       m.errorsTotal.Load(),
		AvgLatencyNs:      avgLatency,
		ActiveConnections: m.activeConnections.Load(),
		Subscriptions:     m.subscriptions.Load(),
		Timestamp:         time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.liveFetches.Store(0)
	m.syntheticFetches.Store(0)
	m.providerFailures.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.broadcasts.Store(0)
	m.broadcastFaults.Store(0)
	m.messagesDropped.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
	m.activeConnections.Store(0)
	m.subscriptions.Store(0)
}

const metricsNamespace = "market_pulse"

var (
	descFetches = prometheus.NewDesc(metricsNamespace+"_series_fetches_total",
		"Series acquisitions by source.", []string{"source"}, nil)
	descProviderFailures = prometheus.NewDesc(metricsNamespace+"_provider_failures_total",
		"Gateway calls that fell back to synthetic data.", nil, nil)
	descCache = prometheus.NewDesc(metricsNamespace+"_cache_lookups_total",
		"Series cache lookups by result.", []string{"result"}, nil)
	descBroadcasts = prometheus.NewDesc(metricsNamespace+"_broadcasts_total",
		"Completed broadcast cycles.", nil, nil)
	descBroadcastFaults = prometheus.NewDesc(metricsNamespace+"_broadcast_faults_total",
		"Broadcast cycles that failed and entered backoff.", nil, nil)
	descDropped = prometheus.NewDesc(metricsNamespace+"_messages_dropped_total",
		"Outbound stream messages dropped by full queues.", nil, nil)
	descErrors = prometheus.NewDesc(metricsNamespace+"_errors_total",
		"Errors observed.", nil, nil)
	descLatency = prometheus.NewDesc(metricsNamespace+"_fetch_latency_avg_seconds",
		"Average series acquisition latency.", nil, nil)
	descConnections = prometheus.NewDesc(metricsNamespace+"_stream_connections",
		"Connected stream consumers.", nil, nil)
	descSubscriptions = prometheus.NewDesc(metricsNamespace+"_stream_subscriptions",
		"Active topic subscriptions.", nil, nil)
)

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descFetches, descProviderFailures, descCache, descBroadcasts, descBroadcastFaults,
		descDropped, descErrors, descLatency, descConnections, descSubscriptions,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(descFetches, s.LiveFetches, "live")
	counter(descFetches, s.SyntheticFetches, "synthetic")
	counter(descProviderFailures, s.ProviderFailures)
	counter(descCache, s.CacheHits, "hit")
	counter(descCache, s.CacheMisses, "miss")
	counter(descBroadcasts, s.Broadcasts)
	counter(descBroadcastFaults, s.BroadcastFaults)
	counter(descDropped, s.MessagesDropped)
	counter(descErrors, s.ErrorsTotal)
	gauge(descLatency, time.Duration(s.AvgLatencyNs).Seconds())
	gauge(descConnections, float64(s.ActiveConnections))
	gauge(descSubscriptions, float64(s.Subscriptions))
}

// NewRegistry returns a Prometheus registry exposing m plus the Go runtime
// and process collectors.
func NewRegistry(m *Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(m)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}
