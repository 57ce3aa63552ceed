package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions     int
	AdmittedCount      int
	RejectedCount      int
	RejectReasons      map[string]int // reason → count
	OriginDistribution map[string]int // origin hospital ID → admitted count
	SourceDistribution map[string]int // request source → admitted count
	ReplanCount        int
	ReplanFailures     int
	ReplanSuccessRate  float64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		RejectReasons:      make(map[string]int),
		OriginDistribution: make(map[string]int),
		SourceDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Dispatches)
	for _, d := range st.Dispatches {
		if d.Admitted {
			summary.AdmittedCount++
			summary.OriginDistribution[d.Origin]++
			summary.SourceDistribution[d.Source]++
		} else {
			summary.RejectedCount++
			summary.RejectReasons[d.Reason]++
		}
	}

	summary.ReplanCount = len(st.Replans)
	for _, r := range st.Replans {
		if !r.Found {
			summary.ReplanFailures++
		}
	}
	if summary.ReplanCount > 0 {
		summary.ReplanSuccessRate = float64(summary.ReplanCount-summary.ReplanFailures) / float64(summary.ReplanCount)
	}

	return summary
}
