package entities

import (
	"sync/atomic"

	"github.com/amirrezam75/cncrelay/schemas"
)

// RoomMetrics counts what a room did. Written by the run goroutine, read by
// HTTP handlers.
type RoomMetrics struct {
	tickCount          atomic.Int64
	totalTickNs        atomic.Int64
	tickOverruns       atomic.Int64
	messagesRouted     atomic.Int64
	unknownMessages    atomic.Int64
	commandsApplied    atomic.Int64
	admissions         atomic.Int64
	admissionsRejected atomic.Int64
	evictions          atomic.Int64
	transportFailures  atomic.Int64
	probesAbandoned    atomic.Int64
	highLatencyProbes  atomic.Int64
	lifecycleDropped   atomic.Int64
}

func (m *RoomMetrics) AddTick(ns int64, overrun bool) {
	m.tickCount.Add(1)
	m.totalTickNs.Add(ns)
	if overrun {
		m.tickOverruns.Add(1)
	}
}

func (m *RoomMetrics) IncRouted() { m.messagesRouted.Add(1) }
func (m *RoomMetrics) IncUnknown() { m.unknownMessages.Add(1) }
func (m *RoomMetrics) IncCommandApplied() { m.commandsApplied.Add(1) }
func (m *RoomMetrics) IncAdmission() { m.admissions.Add(1) }
func (m *RoomMetrics) IncAdmissionRejected() { m.admissionsRejected.Add(1) }
func (m *RoomMetrics) IncEviction() { m.evictions.Add(1) }
func (m *RoomMetrics) IncTransportFailure() { m.transportFailures.Add(1) }
func (m *RoomMetrics) IncProbeAbandoned() { m.probesAbandoned.Add(1) }
func (m *RoomMetrics) IncHighLatency() { m.highLatencyProbes.Add(1) }
func (m *RoomMetrics) IncLifecycleDropped() { m.lifecycleDropped.Add(1) }

func (m *RoomMetrics) Snapshot() schemas.RoomMetrics {
	ticks := m.tickCount.Load()
	var average float64
	if ticks > 0 {
		average = float64(m.totalTickNs.Load()) / float64(ticks) / 1e6
	}
	return schemas.RoomMetrics{
		TickCount:          ticks,
		TickOverruns:       m.tickOverruns.Load(),
		AverageTickMs:      average,
		MessagesRouted:     m.messagesRouted.Load(),
		UnknownMessages:    m.unknownMessages.Load(),
		CommandsApplied:    m.commandsApplied.Load(),
		Admissions:         m.admissions.Load(),
		AdmissionsRejected: m.admissionsRejected.Load(),
		Evictions:          m.evictions.Load(),
		TransportFailures:  m.transportFailures.Load(),
		ProbesAbandoned:    m.probesAbandoned.Load(),
		HighLatencyProbes:  m.highLatencyProbes.Load(),
		LifecycleDropped:   m.lifecycleDropped.Load(),
	}
}
