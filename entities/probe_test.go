package entities

import (
	"testing"
	"time"
)

func TestProbeStateMachine(t *testing.T) {
	var probe Probe
	start := time.Now()

	if probe.State() != ProbeIdle {
		t.Fatalf("expected a new probe to be idle")
	}

	seq, abandoned := probe.Next(start)
	if seq != 1 || abandoned {
		t.Fatalf("expected seq 1 without abandonment, got %d (abandoned=%v)", seq, abandoned)
	}

	if _, ok := probe.Complete(seq+1, start); ok {
		t.Fatalf("expected a stale pong to be ignored")
	}

	rtt, ok := probe.Complete(seq, start.Add(40*time.Millisecond))
	if !ok || rtt != 40*time.Millisecond {
		t.Fatalf("expected 40ms rtt, got %s (ok=%v)", rtt, ok)
	}

	if _, ok := probe.Complete(seq, start.Add(time.Second)); ok {
		t.Fatalf("expected a duplicate pong to be ignored")
	}
}

func TestProbeAbandonsOutstandingPing(t *testing.T) {
	var probe Probe
	now := time.Now()

	probe.Next(now)
	seq, abandoned := probe.Next(now.Add(ProbeInterval))

	if !abandoned || probe.Abandoned != 1 {
		t.Fatalf("expected the first probe to be abandoned")
	}
	if seq != 2 || probe.State() != ProbeAwaitingPong {
		t.Fatalf("expected a fresh outstanding probe, got seq %d", seq)
	}
}
