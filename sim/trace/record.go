// Package trace records the dispatch and replan decisions made by the simulator.
package trace

// DispatchRecord captures a single admission decision for a delivery request.
type DispatchRecord struct {
	RequestID   string
	Tick        int64
	Source      string // "manual", "auto", "generator", "ledger"
	Origin      string
	Destination string
	Supply      string
	Admitted    bool
	Reason      string
}

// ReplanRecord captures a single drone path recomputation.
type ReplanRecord struct {
	DroneID string
	Tick    int64
	Found   bool
	PathLen int
}
