package trace

import (
	"testing"
)

func TestSimulationTrace_RecordDispatch_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	st := NewSimulationTrace(TraceLevelDecisions)

	// WHEN a dispatch record is recorded
	st.RecordDispatch(DispatchRecord{
		RequestID: "req_1",
		Tick:      120,
		Source:    "generator",
		Origin:    "H1",
		Admitted:  true,
	})

	// THEN the trace contains one dispatch record with correct data
	if len(st.Dispatches) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(st.Dispatches))
	}
	if st.Dispatches[0].RequestID != "req_1" {
		t.Errorf("expected request ID req_1, got %s", st.Dispatches[0].RequestID)
	}
	if !st.Dispatches[0].Admitted {
		t.Error("expected admitted=true")
	}
}

func TestSimulationTrace_RecordReplan_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	st := NewSimulationTrace(TraceLevelDecisions)

	// WHEN a replan record is recorded
	st.RecordReplan(ReplanRecord{DroneID: "D1", Tick: 10, Found: true, PathLen: 7})

	// THEN the trace contains it
	if len(st.Replans) != 1 {
		t.Fatalf("expected 1 replan, got %d", len(st.Replans))
	}
	if st.Replans[0].PathLen != 7 {
		t.Errorf("expected path length 7, got %d", st.Replans[0].PathLen)
	}
}

func TestSimulationTrace_Enabled(t *testing.T) {
	var nilTrace *SimulationTrace
	if nilTrace.Enabled() {
		t.Error("nil trace must report disabled")
	}
	if NewSimulationTrace(TraceLevelNone).Enabled() {
		t.Error("level none must report disabled")
	}
	if !NewSimulationTrace(TraceLevelDecisions).Enabled() {
		t.Error("level decisions must report enabled")
	}
}

func TestSimulationTrace_Reset_KeepsLevel(t *testing.T) {
	st := NewSimulationTrace(TraceLevelDecisions)
	st.RecordDispatch(DispatchRecord{RequestID: "r1"})
	st.RecordReplan(ReplanRecord{DroneID: "D1"})

	st.Reset()

	if len(st.Dispatches) != 0 || len(st.Replans) != 0 {
		t.Errorf("expected empty trace after reset, got %d dispatches, %d replans", len(st.Dispatches), len(st.Replans))
	}
	if st.Level != TraceLevelDecisions {
		t.Errorf("level = %q, want %q", st.Level, TraceLevelDecisions)
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"none", true},
		{"decisions", true},
		{"", true}, // empty defaults to none
		{"detailed", false},
		{"NONE", false}, // case-sensitive
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := IsValidTraceLevel(tt.level); got != tt.valid {
				t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.valid)
			}
		})
	}
}
