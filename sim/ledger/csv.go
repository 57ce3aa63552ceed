package ledger

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// CSVStore keeps the ledger in a CSV file with a Columns header row.
// Columns are located by header name, so files written by other tools may
// reorder them.
type CSVStore struct {
	mu   sync.Mutex
	path string
}

// NewCSVStore returns a store backed by path. The file is created lazily.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the backing file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Reset truncates the file and writes the header row.
func (s *CSVStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("creating ledger file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

// Append writes one row, adding the header first if the file is new or empty.
func (s *CSVStore) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening ledger file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat ledger file: %w", err)
	}
	writer := csv.NewWriter(file)
	if info.Size() == 0 {
		if err := writer.Write(Columns); err != nil {
			return fmt.Errorf("writing CSV header: %w", err)
		}
	}
	row := []string{
		r.ID,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.Type,
		r.Origin,
		r.Destination,
		string(r.Status),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("writing CSV row %s: %w", r.ID, err)
	}
	writer.Flush()
	return writer.Error()
}

// Load reads the file. A missing file is an empty ledger.
func (s *CSVStore) Load() ([]Record, []error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer func() { _ = file.Close() }()

	// Each line is parsed on its own so an unterminated quote costs one row
	// instead of swallowing the rest of the file. Fields containing newlines
	// are therefore not supported.
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	nextLine := func() (string, bool) {
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if line != "" {
				return line, true
			}
		}
		return "", false
	}

	headerLine, ok := nextLine()
	if !ok {
		if err := scanner.Err(); err != nil {
			return nil, nil, fmt.Errorf("reading CSV header: %w", err)
		}
		return nil, nil, nil
	}
	header, err := splitLine(headerLine)
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	cols := make([]int, len(Columns))
	for i, name := range Columns {
		pos, ok := index[name]
		if !ok {
			return nil, nil, fmt.Errorf("ledger header missing column %q", name)
		}
		cols[i] = pos
	}

	var records []Record
	var problems []error
	for row := 1; ; row++ {
		line, ok := nextLine()
		if !ok {
			break
		}
		fields, err := splitLine(line)
		if err != nil {
			problems = append(problems, &RowError{Row: row, Reason: err.Error()})
			continue
		}
		get := func(col int) string {
			if cols[col] < len(fields) {
				return fields[cols[col]]
			}
			return ""
		}
		if len(fields) < len(Columns) {
			problems = append(problems, &RowError{Row: row, Reason: fmt.Sprintf("%d columns, expected %d", len(fields), len(Columns))})
			continue
		}
		r, err := parseFields(row, get(0), get(1), get(2), get(3), get(4), get(5))
		if err != nil {
			problems = append(problems, err)
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return records, problems, fmt.Errorf("reading ledger: %w", err)
	}
	return records, problems, nil
}

// splitLine parses a single CSV line.
func splitLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	fields, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	return fields, err
}

// Close is a no-op; the file is opened per operation so other processes can
// append between calls.
func (s *CSVStore) Close() error {
	return nil
}
