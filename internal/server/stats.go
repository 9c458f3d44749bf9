package server

import (
	"sync/atomic"
)

// DNSStats collects DNS query statistics.
// All methods are safe for concurrent use.
type DNSStats struct {
	queriesTotal   atomic.Uint64
	answered       atomic.Uint64
	responsesErr   atomic.Uint64
	latencyTotalNs atomic.Uint64
}

// NewDNSStats creates a new DNS statistics collector.
func NewDNSStats() *DNSStats {
	return &DNSStats{}
}

// RecordQuery records an incoming DNS query.
func (s *DNSStats) RecordQuery() {
	s.queriesTotal.Add(1)
}

// RecordAnswered records a successfully resolved query.
func (s *DNSStats) RecordAnswered() {
	s.answered.Add(1)
}

// RecordError records an error response (SERVFAIL, FORMERR, etc.).
func (s *DNSStats) RecordError() {
	s.responsesErr.Add(1)
}

// RecordLatency records query latency in nanoseconds.
func (s *DNSStats) RecordLatency(ns int64) {
	if ns > 0 {
		s.latencyTotalNs.Add(uint64(ns))
	}
}

// DNSStatsSnapshot is a point-in-time snapshot of DNS server statistics.
type DNSStatsSnapshot struct {
	QueriesTotal uint64
	Answered     uint64
	ResponsesErr uint64
	AvgLatencyMs float64
}

// Snapshot returns the current statistics.
func (s *DNSStats) Snapshot() DNSStatsSnapshot {
	total := s.queriesTotal.Load()
	latencyNs := s.latencyTotalNs.Load()

	avgLatencyMs := 0.0
	if total > 0 {
		avgLatencyMs = float64(latencyNs) / float64(total) / 1e6
	}

	return DNSStatsSnapshot{
		QueriesTotal: total,
		Answered:     s.answered.Load(),
		ResponsesErr: s.responsesErr.Load(),
		AvgLatencyMs: avgLatencyMs,
	}
}
