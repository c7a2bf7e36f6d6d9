package entities

import "time"

const (
	ProbeInterval        = time.Second
	HighLatencyThreshold = 150 * time.Millisecond
)

type ProbeState int

const (
	ProbeIdle ProbeState = iota
	ProbeAwaitingPong
)

// Probe measures round-trip time for one session: IDLE -> AWAITING_PONG -> IDLE.
// An outstanding probe is abandoned when the next one is sent; that is only
// counted, never treated as a missed heartbeat.
type Probe struct {
	state     ProbeState
	seq       uint64
	sentAt    time.Time
	LastRTT   time.Duration
	Abandoned uint64
}

func (probe *Probe) State() ProbeState {
	return probe.state
}

// Next starts a new probe and returns its sequence number. The second result
// reports whether a previous probe was abandoned.
func (probe *Probe) Next(now time.Time) (uint64, bool) {
	abandoned := probe.state == ProbeAwaitingPong
	if abandoned {
		probe.Abandoned++
	}
	probe.seq++
	probe.sentAt = now
	probe.state = ProbeAwaitingPong
	return probe.seq, abandoned
}

// Complete matches a pong against the outstanding probe. Stale or unexpected
// pongs are ignored.
func (probe *Probe) Complete(seq uint64, now time.Time) (time.Duration, bool) {
	if probe.state != ProbeAwaitingPong || seq != probe.seq {
		return 0, false
	}
	rtt := now.Sub(probe.sentAt)
	if rtt < 0 {
		rtt = 0
	}
	probe.LastRTT = rtt
	probe.state = ProbeIdle
	return rtt, true
}
