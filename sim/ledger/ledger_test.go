package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleRecords() []Record {
	return []Record{
		{ID: "a1", Timestamp: t0, Type: "Blood", Origin: "H1", Destination: "H2", Status: StatusActive},
		{ID: "a2", Timestamp: t0.Add(time.Second), Type: "Medical", Origin: "H2", Destination: "H3", Status: StatusActive},
		{ID: "a1", Timestamp: t0.Add(2 * time.Second), Type: "Blood", Origin: "H1", Destination: "H2", Status: StatusCompleted},
	}
}

// storeFactories lets every behavioral test run against both backends.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"csv": func() Store {
			return NewCSVStore(filepath.Join(t.TempDir(), "ledger.csv"))
		},
		"sqlite": func() Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_AppendLoad_PreservesOrderAndFields(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN a freshly reset store
			s := open()
			defer func() { _ = s.Close() }()
			require.NoError(t, s.Reset())

			// WHEN three rows are appended
			for _, r := range sampleRecords() {
				require.NoError(t, s.Append(r))
			}

			// THEN Load returns them in append order with no problems
			got, problems, err := s.Load()
			require.NoError(t, err)
			assert.Empty(t, problems)
			require.Len(t, got, 3)
			for i, want := range sampleRecords() {
				assert.Equal(t, want.ID, got[i].ID)
				assert.Equal(t, want.Status, got[i].Status)
				assert.Equal(t, want.Origin, got[i].Origin)
				assert.Equal(t, want.Destination, got[i].Destination)
				assert.Equal(t, want.Type, got[i].Type)
				assert.True(t, want.Timestamp.Equal(got[i].Timestamp), "timestamp %v != %v", got[i].Timestamp, want.Timestamp)
			}
		})
	}
}

func TestStore_Reset_DiscardsRows(t *testing.T) {
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer func() { _ = s.Close() }()
			require.NoError(t, s.Reset())
			require.NoError(t, s.Append(sampleRecords()[0]))

			require.NoError(t, s.Reset())

			got, problems, err := s.Load()
			require.NoError(t, err)
			assert.Empty(t, problems)
			assert.Empty(t, got)
		})
	}
}

func TestCSVStore_Reset_WritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.csv")
	s := NewCSVStore(path)

	require.NoError(t, s.Reset())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID,Timestamp,Type,Origin,Destination,Status\n", string(data))
}

func TestCSVStore_AppendToMissingFile_WritesHeaderOnce(t *testing.T) {
	// GIVEN no ledger file yet (an external injector running before the simulator)
	path := filepath.Join(t.TempDir(), "alerts.csv")
	s := NewCSVStore(path)

	// WHEN two rows are appended
	require.NoError(t, s.Append(sampleRecords()[0]))
	require.NoError(t, s.Append(sampleRecords()[1]))

	// THEN the file has one header and both rows load
	got, problems, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Len(t, got, 2)
}

func TestCSVStore_Load_MissingFile_IsEmpty(t *testing.T) {
	s := NewCSVStore(filepath.Join(t.TempDir(), "absent.csv"))
	got, problems, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, problems)
	assert.Empty(t, got)
}

func TestCSVStore_Load_SkipsMalformedRows(t *testing.T) {
	// GIVEN a hand-edited file with one good row and several bad ones
	path := filepath.Join(t.TempDir(), "alerts.csv")
	content := "ID,Timestamp,Type,Origin,Destination,Status\n" +
		"ok1,2024-05-01T12:00:00Z,Blood,H1,H2,Active\n" +
		"short,2024-05-01T12:00:00Z,Blood\n" +
		"bad-status,2024-05-01T12:00:00Z,Blood,H1,H2,Lost\n" +
		"bad-time,yesterday,Blood,H1,H2,Active\n" +
		",2024-05-01T12:00:00Z,Blood,H1,H2,Active\n" +
		"ok2,2024-05-01 12:00:05,Medical,H2,H1,Completed\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// WHEN loaded
	got, problems, err := NewCSVStore(path).Load()

	// THEN the good rows survive and each bad row is reported
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ok1", got[0].ID)
	assert.Equal(t, "ok2", got[1].ID)
	assert.Equal(t, StatusCompleted, got[1].Status)
	assert.Len(t, problems, 4)
	var rowErr *RowError
	require.ErrorAs(t, problems[0], &rowErr)
	assert.Equal(t, 2, rowErr.Row)
}

func TestCSVStore_Load_UnterminatedQuote_KeepsLaterRows(t *testing.T) {
	// GIVEN an injected row whose quoted field never closes, followed by good rows
	path := filepath.Join(t.TempDir(), "alerts.csv")
	content := "ID,Timestamp,Type,Origin,Destination,Status\n" +
		"bad,\"2024-01-01T00:00:00Z,Medical,H1,H2,Active\n" +
		"ok1,2024-05-01T12:00:00Z,Blood,H1,H2,Active\n" +
		"ok2,2024-05-01T12:00:01Z,Medical,H2,H1,Completed\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// WHEN loaded
	got, problems, err := NewCSVStore(path).Load()

	// THEN only the broken row is lost and it is reported as row 1
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ok1", got[0].ID)
	assert.Equal(t, "ok2", got[1].ID)
	require.Len(t, problems, 1)
	var rowErr *RowError
	require.ErrorAs(t, problems[0], &rowErr)
	assert.Equal(t, 1, rowErr.Row)
}

func TestCSVStore_Load_ReorderedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.csv")
	content := "Status,ID,Origin,Destination,Type,Timestamp\n" +
		"Active,x1,H3,H4,Equipment,2024-05-01T12:00:00Z\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	got, problems, err := NewCSVStore(path).Load()
	require.NoError(t, err)
	assert.Empty(t, problems)
	require.Len(t, got, 1)
	assert.Equal(t, Record{ID: "x1", Timestamp: t0, Type: "Equipment", Origin: "H3", Destination: "H4", Status: StatusActive}, got[0])
}

func TestCSVStore_Load_MissingColumn_IsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.csv")
	require.NoError(t, os.WriteFile(path, []byte("ID,Type,Origin,Destination,Status\n"), 0644))

	_, _, err := NewCSVStore(path).Load()
	assert.ErrorContains(t, err, "Timestamp")
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("", filepath.Join(dir, "a.csv"))
	require.NoError(t, err)
	assert.IsType(t, &CSVStore{}, s)

	s, err = Open("sqlite", filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.NoError(t, s.Close())

	_, err = Open("parquet", filepath.Join(dir, "a.parquet"))
	assert.ErrorContains(t, err, "unknown ledger backend")
}
