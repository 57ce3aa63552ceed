// Package ticklog records sampled simulation ticks as zstd-compressed JSON
// lines, one entry per sampled tick.
package ticklog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/dronesim/dronesim/sim"
)

// Entry is one tick log line.
type Entry struct {
	Tick            int64  `json:"tick"`
	Mode            string `json:"mode"`
	Hospitals       int    `json:"hospitals"`
	Drones          int    `json:"drones"`
	Obstacles       int    `json:"obstacles"`
	PendingNeeds    int    `json:"pending_needs"`
	TotalDeliveries int    `json:"total_deliveries"`
	ActiveRoutes    int    `json:"active_routes"`
	EmergencyCount  int    `json:"emergency_count"`
}

// EntryFromSnapshot summarizes snap.
func EntryFromSnapshot(snap *sim.Snapshot) Entry {
	needs := 0
	for _, h := range snap.Hospitals {
		needs += len(h.Needs)
	}
	return Entry{
		Tick:            snap.Tick,
		Mode:            snap.Mode,
		Hospitals:       len(snap.Hospitals),
		Drones:          len(snap.Drones),
		Obstacles:       len(snap.Obstacles),
		PendingNeeds:    needs,
		TotalDeliveries: snap.Counters.TotalDeliveries,
		ActiveRoutes:    snap.Counters.ActiveRoutes,
		EmergencyCount:  snap.Counters.EmergencyCount,
	}
}

// Writer appends entries to a compressed JSONL file.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	written int
}

// Create truncates path and opens a Writer on it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating tick log: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &Writer{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, nil
}

// Write appends one entry.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New("tick log is closed")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.written++
	return nil
}

// Written returns the number of entries written so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes buffered entries and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	var errs []error
	errs = append(errs, w.w.Flush())
	errs = append(errs, w.enc.Close())
	errs = append(errs, w.f.Close())
	w.w, w.enc, w.f = nil, nil, nil
	return errors.Join(errs...)
}

// Hook returns a snapshot hook that writes every stride-th running tick.
// Write failures are logged once and further entries are dropped.
func (w *Writer) Hook(stride int64) func(*sim.Snapshot) {
	stride = max(1, stride)
	failed := false
	last := int64(-1)
	return func(snap *sim.Snapshot) {
		if failed || snap.Tick == last || snap.Tick%stride != 0 {
			return
		}
		last = snap.Tick
		if err := w.Write(EntryFromSnapshot(snap)); err != nil {
			failed = true
			logrus.Warnf("tick log disabled: %v", err)
		}
	}
}

// ReadAll decodes every entry of the log at path.
func ReadAll(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tick log: %w", err)
	}
	defer func() { _ = f.Close() }()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	var entries []Entry
	jd := json.NewDecoder(dec)
	for {
		var e Entry
		if err := jd.Decode(&e); err == io.EOF {
			break
		} else if err != nil {
			return entries, fmt.Errorf("decoding entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
