// Package metrics provides collection and reporting of endpoint, registry,
// heartbeat and silo metrics.
package metrics

import (
	"sync/atomic"
	"time"
)

// Collector holds the atomic counters for a single endpoint's lifetime.
type Collector struct {
	// Connection metrics
	Connected    atomic.Bool
	PendingCalls atomic.Int64

	// Call metrics
	CallsOK  atomic.Uint64
	CallsBad atomic.Uint64

	// Registry metrics
	ServantsActive atomic.Int64
	ProxiesActive  atomic.Int64

	// Heartbeat metrics
	HeartbeatSkips    atomic.Int64
	LastHeartbeatUnix atomic.Int64

	// Silo metrics
	SiloFaults atomic.Uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (m *Collector) SetConnected(connected bool) {
	m.Connected.Store(connected)
}

func (m *Collector) IsConnected() bool {
	return m.Connected.Load()
}

func (m *Collector) IncrementPending() {
	m.PendingCalls.Add(1)
}

func (m *Collector) DecrementPending() {
	m.PendingCalls.Add(-1)
}

func (m *Collector) GetPending() int64 {
	return m.PendingCalls.Load()
}

func (m *Collector) IncrementCallsOK() {
	m.CallsOK.Add(1)
}

func (m *Collector) IncrementCallsBad() {
	m.CallsBad.Add(1)
}

func (m *Collector) GetTotalCalls() uint64 {
	return m.CallsOK.Load() + m.CallsBad.Load()
}

func (m *Collector) SetRegistrySize(servants, proxies int64) {
	m.ServantsActive.Store(servants)
	m.ProxiesActive.Store(proxies)
}

func (m *Collector) IncrementHeartbeatSkip() {
	m.HeartbeatSkips.Add(1)
}

func (m *Collector) ResetHeartbeatSkip() {
	m.HeartbeatSkips.Store(0)
}

func (m *Collector) RecordHeartbeat(t time.Time) {
	m.LastHeartbeatUnix.Store(t.Unix())
	m.ResetHeartbeatSkip()
}

func (m *Collector) IncrementSiloFaults() {
	m.SiloFaults.Add(1)
}

// Snapshot returns a point-in-time view of the metrics.
func (m *Collector) Snapshot() Snapshot {
	return Snapshot{
		Connected:      m.IsConnected(),
		PendingCalls:   m.GetPending(),
		CallsOK:        m.CallsOK.Load(),
		CallsBad:       m.CallsBad.Load(),
		ServantsActive: m.ServantsActive.Load(),
		ProxiesActive:  m.ProxiesActive.Load(),
		HeartbeatSkips: m.HeartbeatSkips.Load(),
		SiloFaults:     m.SiloFaults.Load(),
	}
}

// Snapshot is a copyable view of the collector's state.
type Snapshot struct {
	Connected      bool   `json:"connected"`
	PendingCalls   int64  `json:"pending_calls"`
	CallsOK        uint64 `json:"calls_ok"`
	CallsBad       uint64 `json:"calls_bad"`
	ServantsActive int64  `json:"servants_active"`
	ProxiesActive  int64  `json:"proxies_active"`
	HeartbeatSkips int64  `json:"heartbeat_skips"`
	SiloFaults     uint64 `json:"silo_faults"`
}
