package ledger

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the ledger in a SQLite table. Row order is the
// autoincrement sequence, so Load returns rows in append order.
type SQLiteStore struct {
	conn *sqlx.DB
}

type ledgerRow struct {
	Seq         int64  `db:"seq"`
	ID          string `db:"id"`
	Timestamp   string `db:"timestamp"`
	Type        string `db:"type"`
	Origin      string `db:"origin"`
	Destination string `db:"destination"`
	Status      string `db:"status"`
}

// OpenSQLite opens or creates a SQLite ledger at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		type TEXT NOT NULL,
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_id ON ledger(id);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Reset deletes every row.
func (s *SQLiteStore) Reset() error {
	tx, err := s.conn.Beginx()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM ledger"); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return tx.Commit()
}

// Append inserts one row.
func (s *SQLiteStore) Append(r Record) error {
	_, err := s.conn.Exec(
		`INSERT INTO ledger (id, timestamp, type, origin, destination, status) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp.UTC().Format(time.RFC3339Nano), r.Type, r.Origin, r.Destination, string(r.Status),
	)
	if err != nil {
		return fmt.Errorf("insert ledger row %s: %w", r.ID, err)
	}
	return nil
}

// Load returns every row in sequence order. Rows whose status or timestamp
// fail validation are reported and skipped.
func (s *SQLiteStore) Load() ([]Record, []error, error) {
	var rows []ledgerRow
	err := s.conn.Select(&rows,
		"SELECT seq, id, timestamp, type, origin, destination, status FROM ledger ORDER BY seq",
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select ledger: %w", err)
	}
	var records []Record
	var problems []error
	for i, row := range rows {
		r, err := parseFields(i+1, row.ID, row.Timestamp, row.Type, row.Origin, row.Destination, row.Status)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		records = append(records, r)
	}
	return records, problems, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
