package ledger

// Fold collapses the transition log to one record per ID: the latest row
// wins, and IDs keep the order in which they first appeared.
func Fold(records []Record) []Record {
	pos := make(map[string]int, len(records))
	var out []Record
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// Summary aggregates a folded ledger.
type Summary struct {
	Total    int
	ByStatus map[Status]int
	ByType   map[string]int
	// ByOrigin counts requests still Active per origin hospital.
	ByOrigin map[string]int
}

// Summarize folds records and counts the result. Safe on an empty ledger.
func Summarize(records []Record) *Summary {
	s := &Summary{
		ByStatus: make(map[Status]int),
		ByType:   make(map[string]int),
		ByOrigin: make(map[string]int),
	}
	for _, r := range Fold(records) {
		s.Total++
		s.ByStatus[r.Status]++
		s.ByType[r.Type]++
		if r.Status == StatusActive {
			s.ByOrigin[r.Origin]++
		}
	}
	return s
}
