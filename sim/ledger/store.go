package ledger

import (
	"fmt"
	"sort"
)

// Store is an append-only request ledger.
type Store interface {
	// Reset discards every row (and rewrites the CSV header).
	Reset() error
	// Append adds one row.
	Append(r Record) error
	// Load returns every well-formed row in append order, the problems found in
	// malformed rows, and a non-nil error only when the ledger could not be read.
	Load() ([]Record, []error, error)
	Close() error
}

// ValidBackends lists the recognized backend names. "" selects csv.
var ValidBackends = map[string]bool{"": true, "csv": true, "sqlite": true}

// ValidBackendNames returns sorted valid backend names (excluding the empty alias).
func ValidBackendNames() []string {
	names := make([]string, 0, len(ValidBackends))
	for k := range ValidBackends {
		if k != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "csv":
		return NewCSVStore(path), nil
	case "sqlite":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q; valid options: %v", backend, ValidBackendNames())
	}
}
