// Package csvlog appends scheduler lifecycle events to a CSV file.
package csvlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/spamprx/threadshell"
)

var header = []string{
	"Timestamp", "JobID", "JobName", "Command", "Priority", "Status",
	"Worker", "CoreID", "Duration(ms)", "Event",
}

// EventService writes one CSV record per event, append-only.
type EventService struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// Open opens or creates the log file, creating parent directories as
// needed, and writes the header.
func Open(path string) (*EventService, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	s := &EventService{f: f, w: csv.NewWriter(f)}
	if err := s.w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	s.w.Flush()
	return s, s.w.Error()
}

// Log implements threadshell.EventService.
func (s *EventService) Log(ev threadshell.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ev.Name
	if name == "" {
		name = "-"
	}
	record := []string{
		ev.Time.Format("2006-01-02 15:04:05.000"),
		strconv.Itoa(ev.JobID),
		name,
		ev.Command,
		strconv.Itoa(int(ev.Priority)),
		strconv.Itoa(int(ev.Status)),
		ev.Worker,
		strconv.Itoa(ev.Core),
		strconv.FormatInt(ev.Elapsed.Milliseconds(), 10),
		ev.Type.String(),
	}
	if err := s.w.Write(record); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the log file.
func (s *EventService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.f.Close()
}
