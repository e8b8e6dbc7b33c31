// Package sqlite stores scheduler lifecycle events in a sqlite db.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spamprx/threadshell"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Open opens a db at path.
// It returns an error if opening of the db failed.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// Enable Write-Ahead Logging. See https://sqlite.org/wal.html
	if _, err := db.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	return db, nil
}

// Init creates the events table if needed.
func Init(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			event TEXT NOT NULL,
			job_id INTEGER NOT NULL,
			job_name TEXT NOT NULL,
			command TEXT NOT NULL,
			priority INTEGER NOT NULL,
			status INTEGER NOT NULL,
			worker TEXT NOT NULL,
			core INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	return nil
}

// EventService appends events to the db, one row per event.
type EventService struct {
	db *sql.DB
}

// NewEventService creates an EventService backed by db. The db should
// have been initialized with Init.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db}
}

// Log implements threadshell.EventService.
func (s *EventService) Log(ev threadshell.Event) error {
	_, err := s.db.Exec(`
		INSERT INTO events
			(time, event, job_id, job_name, command, priority, status, worker, core, elapsed_ms)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Time.Format(timeLayout),
		ev.Type.String(),
		ev.JobID,
		ev.Name,
		ev.Command,
		int(ev.Priority),
		int(ev.Status),
		ev.Worker,
		ev.Core,
		ev.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns every stored event in insertion order.
func (s *EventService) Events() ([]threadshell.Event, error) {
	rows, err := s.db.Query(`
		SELECT time, event, job_id, job_name, command, priority, status, worker, core, elapsed_ms
		FROM events ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	evs := make([]threadshell.Event, 0)
	for rows.Next() {
		var (
			ev        threadshell.Event
			t, typ    string
			priority  int
			status    int
			elapsedMS int64
		)
		err := rows.Scan(&t, &typ, &ev.JobID, &ev.Name, &ev.Command,
			&priority, &status, &ev.Worker, &ev.Core, &elapsedMS)
		if err != nil {
			return nil, err
		}
		ev.Time, err = time.Parse(timeLayout, t)
		if err != nil {
			return nil, fmt.Errorf("bad event time %q: %w", t, err)
		}
		ev.Type = parseEventType(typ)
		ev.Priority = threadshell.JobPriority(priority)
		ev.Status = threadshell.JobStatus(status)
		ev.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

func parseEventType(s string) threadshell.EventType {
	for _, t := range []threadshell.EventType{
		threadshell.EventSubmitted,
		threadshell.EventStarted,
		threadshell.EventCompleted,
		threadshell.EventFailed,
		threadshell.EventKilled,
		threadshell.EventSuspended,
		threadshell.EventResumed,
	} {
		if t.String() == s {
			return t
		}
	}
	return threadshell.EventSubmitted
}
