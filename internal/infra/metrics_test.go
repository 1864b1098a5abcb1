package infra

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordFetch(t *testing.T) {
	m := &Metrics{}

	m.RecordFetch(true, 1000)
	m.RecordFetch(false, 2000)
	m.RecordFetch(true, 3000)

	snap := m.Snapshot()

	if snap.LiveFetches != 2 || snap.SyntheticFetches != 1 {
		t.Errorf("Expected 2 live / 1 synthetic, got %d / %d", snap.LiveFetches, snap.SyntheticFetches)
	}

	// Average latency: (1000 + 2000 + 3000) / 3 = 2000
	if snap.AvgLatencyNs != 2000 {
		t.Errorf("Expected avg latency 2000, got %d", snap.AvgLatencyNs)
	}
}

func TestMetrics_Connections(t *testing.T) {
	m := &Metrics{}

	m.IncrementConnections()
	m.IncrementConnections()
	m.IncrementConnections()
	m.AddSubscriptions(4)

	snap := m.Snapshot()
	if snap.ActiveConnections != 3 {
		t.Errorf("Expected 3 connections, got %d", snap.ActiveConnections)
	}

	m.DecrementConnections()
	m.AddSubscriptions(-4)
	snap = m.Snapshot()
	if snap.ActiveConnections != 2 {
		t.Errorf("Expected 2 connections, got %d", snap.ActiveConnections)
	}
	if snap.Subscriptions != 0 {
		t.Errorf("Expected 0 subscriptions, got %d", snap.Subscriptions)
	}
}

func TestMetrics_BroadcastFault(t *testing.T) {
	m := &Metrics{}

	m.RecordBroadcast()
	m.RecordBroadcastFault()

	snap := m.Snapshot()
	if snap.Broadcasts != 1 || snap.BroadcastFaults != 1 {
		t.Errorf("unexpected broadcast counters %+v", snap)
	}
	if snap.ErrorsTotal != 1 {
		t.Error("a broadcast fault should also count as an error")
	}
}

func TestMetrics_Reset(t *testing.T) {
	m := &Metrics{}

	m.RecordFetch(true, time.Millisecond)
	m.RecordError()
	m.RecordDropped()
	m.IncrementConnections()

	m.Reset()
	snap := m.Snapshot()

	if snap.LiveFetches != 0 {
		t.Error("Expected 0 fetches after reset")
	}
	if snap.ErrorsTotal != 0 || snap.MessagesDropped != 0 {
		t.Error("Expected 0 errors after reset")
	}
	if snap.ActiveConnections != 0 {
		t.Error("Expected 0 connections after reset")
	}
}

func TestMetrics_Collector(t *testing.T) {
	m := &Metrics{}
	m.RecordCache(true)
	m.RecordCache(false)
	m.RecordCache(false)
	m.RecordProviderFailure()

	expected := `
# HELP market_pulse_cache_lookups_total Series cache lookups by result.
# TYPE market_pulse_cache_lookups_total counter
market_pulse_cache_lookups_total{result="hit"} 1
market_pulse_cache_lookups_total{result="miss"} 2
# HELP market_pulse_provider_failures_total Gateway calls that fell back to synthetic data.
# TYPE market_pulse_provider_failures_total counter
market_pulse_provider_failures_total 1
`
	if err := testutil.CollectAndCompare(m, strings.NewReader(expected),
		"market_pulse_cache_lookups_total", "market_pulse_provider_failures_total"); err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(m); n != 12 {
		t.Errorf("expected 12 series, got %d", n)
	}
}
