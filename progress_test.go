package awmkit

import "testing"

func TestProgressBusLifecycle(t *testing.T) {
	bus := NewProgressBus()

	var events []ProgressSnapshot
	bus.OnProgress(func(s ProgressSnapshot) { events = append(events, s) })

	opID := bus.Begin(OperationEmbed, PhasePrepareInput, true, 4)
	if opID != 1 {
		t.Fatalf("first op_id = %d, want 1", opID)
	}
	bus.Advance(opID, PhaseCore, 2, 1, 4, "halfway")
	bus.Finish(opID, true, "done")

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].State != StateRunning || events[0].Phase != PhasePrepareInput {
		t.Errorf("Begin event = %+v", events[0])
	}
	if events[2].State != StateCompleted {
		t.Errorf("Finish event state = %v, want Completed", events[2].State)
	}

	snap := bus.Snapshot()
	if snap.State != StateCompleted {
		t.Errorf("Snapshot().State = %v, want Completed", snap.State)
	}

	bus.Clear()
	if bus.Snapshot().State != StateIdle {
		t.Error("Clear did not reset to Idle")
	}
}

func TestProgressBusIgnoresStaleOpID(t *testing.T) {
	bus := NewProgressBus()
	first := bus.Begin(OperationEmbed, PhasePrepareInput, true, 1)
	second := bus.Begin(OperationEmbed, PhasePrepareInput, true, 1)

	bus.Advance(first, PhaseCore, 1, 0, 1, "stale")
	if bus.Snapshot().OpID != second {
		t.Fatal("stale Advance mutated the current snapshot")
	}
	if bus.Snapshot().PhaseLabel == "stale" {
		t.Error("stale Advance applied its label")
	}
}

func TestProgressBusMonotonicOpID(t *testing.T) {
	bus := NewProgressBus()
	var last uint64
	for i := 0; i < 5; i++ {
		opID := bus.Begin(OperationDetect, PhasePrepareInput, true, 1)
		if opID <= last {
			t.Fatalf("op_id %d did not increase past %d", opID, last)
		}
		last = opID
		bus.Finish(opID, true, "")
	}
}
