// Package ledger persists delivery requests as an append-only transition log.
// Each row records one request in one status; the latest row for an ID wins.
//
// Two backends are provided: CSVStore (the default, human-editable file that
// other processes may append to) and SQLiteStore.
package ledger

import (
	"fmt"
	"time"
)

// Status is the lifecycle state recorded in a ledger row.
type Status string

const (
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
)

// IsValidStatus reports whether s names a known ledger status.
func IsValidStatus(s string) bool {
	return s == string(StatusActive) || s == string(StatusCompleted)
}

// Columns is the ledger header row, in file order.
var Columns = []string{"ID", "Timestamp", "Type", "Origin", "Destination", "Status"}

// Record is one ledger row.
type Record struct {
	ID          string
	Timestamp   time.Time
	Type        string
	Origin      string
	Destination string
	Status      Status
}

func (r Record) String() string {
	return fmt.Sprintf("Record: (ID: %s, %s -> %s, Type: %s, Status: %s)", r.ID, r.Origin, r.Destination, r.Type, r.Status)
}

// RowError describes a ledger row that could not be parsed. Loading skips the
// row and carries on.
type RowError struct {
	Row    int // 1-based data row, header excluded
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("ledger row %d: %s", e.Row, e.Reason)
}

// timestampLayouts are tried in order when parsing a row's timestamp.
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

func parseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// parseFields validates one row's columns and builds a Record.
func parseFields(row int, id, ts, typ, origin, dest, status string) (Record, error) {
	if id == "" {
		return Record{}, &RowError{Row: row, Reason: "empty ID"}
	}
	if origin == "" || dest == "" {
		return Record{}, &RowError{Row: row, Reason: "missing origin or destination"}
	}
	if !IsValidStatus(status) {
		return Record{}, &RowError{Row: row, Reason: fmt.Sprintf("unknown status %q", status)}
	}
	when, err := parseTimestamp(ts)
	if err != nil {
		return Record{}, &RowError{Row: row, Reason: fmt.Sprintf("bad timestamp %q", ts)}
	}
	return Record{
		ID:          id,
		Timestamp:   when,
		Type:        typ,
		Origin:      origin,
		Destination: dest,
		Status:      Status(status),
	}, nil
}
