package memory

import (
	"testing"
	"time"

	"ebank-ledger/pkg/metrics"
)

var _ metrics.Collector = (*Collector)(nil)

func TestCollector_Operations(t *testing.T) {
	c := NewCollector()

	c.RecordOperation("transfer", "ok", time.Millisecond)
	c.RecordOperation("transfer", "ok", time.Millisecond)
	c.RecordOperation("transfer", "insufficient_funds", time.Millisecond)

	outcomes := c.Outcomes("transfer")
	if outcomes["ok"] != 2 || outcomes["insufficient_funds"] != 1 {
		t.Errorf("Unexpected outcomes %v", outcomes)
	}
	if len(c.Outcomes("deposit")) != 0 {
		t.Error("Expected no outcomes for an unrecorded operation")
	}

	snap := c.Snapshot()
	if snap.Operations["transfer"].Total != 3 {
		t.Errorf("Expected 3 transfers, got %d", snap.Operations["transfer"].Total)
	}
}

func TestCollector_Layers(t *testing.T) {
	c := NewCollector()

	c.RecordGet("L1", true, time.Millisecond)
	c.RecordGet("L1", false, time.Millisecond)
	c.RecordSet("L1", false, time.Millisecond)
	c.RecordDelete("L1", true, time.Millisecond)
	c.RecordQueueDepth("L1", 7)
	c.RecordWriteDropped("L1")
	c.RecordAsyncWrite("L1", false, time.Millisecond)

	lm := c.Layer("L1")
	if lm == nil {
		t.Fatal("Expected metrics for L1")
	}
	if lm.Hits != 1 || lm.Misses != 1 || lm.Sets != 1 || lm.Deletes != 1 || lm.Errors != 1 {
		t.Errorf("Unexpected counters %+v", *lm)
	}
	if lm.QueueDepth != 7 || lm.DroppedWrites != 1 || lm.AsyncWrites != 1 || lm.AsyncErrors != 1 {
		t.Errorf("Unexpected warm-up counters %+v", *lm)
	}
	if c.Layer("L2") != nil {
		t.Error("Expected nil for an unknown layer")
	}
}

func TestCollector_ChainAndCircuits(t *testing.T) {
	c := NewCollector()

	c.RecordChainGet(true, 0, time.Millisecond)
	c.RecordChainGet(true, 1, time.Millisecond)
	c.RecordChainGet(false, -1, time.Millisecond)
	c.RecordCircuitState("store", metrics.CircuitOpen)

	snap := c.Snapshot()
	if snap.ChainHits != 2 || snap.ChainMisses != 1 {
		t.Errorf("Expected 2 hits and 1 miss, got %d and %d", snap.ChainHits, snap.ChainMisses)
	}
	if snap.ChainHitsByLayer[1] != 1 {
		t.Errorf("Expected one hit on layer 1, got %d", snap.ChainHitsByLayer[1])
	}
	if snap.Circuits["store"] != "open" {
		t.Errorf("Expected store circuit open, got %q", snap.Circuits["store"])
	}
	if state, ok := c.Circuit("store"); !ok || state != metrics.CircuitOpen {
		t.Errorf("Expected open circuit, got %v (%v)", state, ok)
	}

	c.Reset()
	snap = c.Snapshot()
	if snap.ChainHits != 0 || len(snap.Circuits) != 0 || len(snap.Operations) != 0 {
		t.Errorf("Expected empty snapshot after Reset, got %+v", snap)
	}
}

func TestCollector_SnapshotIsCopy(t *testing.T) {
	c := NewCollector()
	c.RecordOperation("deposit", "ok", time.Millisecond)

	snap := c.Snapshot()
	snap.Operations["deposit"].ByOutcome["ok"] = 100

	if got := c.Outcomes("deposit")["ok"]; got != 1 {
		t.Errorf("Expected collector to be unaffected by snapshot edits, got %d", got)
	}
}
