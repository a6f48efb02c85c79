// Package journal keeps a sqlite record of host sessions: when they started,
// which disks were inserted and what the guest reported. Arena contents are
// never stored.
package journal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tomyedwab/zpzhost/media"
)

// EventType is the kind of a journal entry.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventDiskInserted   EventType = "disk_inserted"
	EventAssertFailure  EventType = "assert_failure"
	EventStackFault     EventType = "stack_fault"
	EventSessionStopped EventType = "session_stopped"
)

var ErrNoSession = errors.New("no session started")

// Session is one run of the host.
type Session struct {
	ID         string `db:"id"`
	StartedAt  int64  `db:"started_at"`
	Guest      string `db:"guest"`
	ArenaPages int64  `db:"arena_pages"`
}

// Event is a single journal entry.
type Event struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	EventType string `db:"event_type"`
	Timestamp int64  `db:"timestamp"` // Unix milliseconds
	Detail    string `db:"detail"`
}

func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

type Journal struct {
	db *sqlx.DB

	mu        sync.Mutex
	sessionID string
}

// Open connects to the sqlite database at path and prepares its tables.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	j, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func New(db *sqlx.DB) (*Journal, error) {
	if err := DBInit(db); err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// DBInit creates the journal tables.
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		guest TEXT NOT NULL,
		arena_pages INTEGER NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS session_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		detail TEXT NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_session_events_session_id ON session_events(session_id)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_session_events_timestamp ON session_events(timestamp)`)
	return err
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// StartSession records a new session and makes it the target of later
// events.
func (j *Journal) StartSession(guest string, arenaPages uint32) (string, error) {
	s := Session{
		ID:         uuid.New().String(),
		StartedAt:  time.Now().UTC().UnixMilli(),
		Guest:      guest,
		ArenaPages: int64(arenaPages),
	}
	_, err := j.db.Exec(
		"INSERT INTO sessions (id, started_at, guest, arena_pages) VALUES ($1, $2, $3, $4)",
		s.ID, s.StartedAt, s.Guest, s.ArenaPages)
	if err != nil {
		return "", err
	}
	j.mu.Lock()
	j.sessionID = s.ID
	j.mu.Unlock()
	return s.ID, j.insertEvent(EventSessionStarted, guest)
}

// SessionID returns the current session, or "" before StartSession.
func (j *Journal) SessionID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sessionID
}

func (j *Journal) insertEvent(eventType EventType, detail string) error {
	sessionID := j.SessionID()
	if sessionID == "" {
		return ErrNoSession
	}
	_, err := j.db.Exec(`
		INSERT INTO session_events (id, session_id, event_type, timestamp, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(),
		sessionID,
		string(eventType),
		time.Now().UTC().UnixMilli(),
		detail,
	)
	return err
}

// RecordDiagnostic stores a guest-reported diagnostic. kind is the
// diagnostic's event type.
func (j *Journal) RecordDiagnostic(kind, detail string) error {
	return j.insertEvent(EventType(kind), detail)
}

func (j *Journal) RecordDiskInserted(drive uint32, name string, size int) error {
	return j.insertEvent(EventDiskInserted, fmt.Sprintf("%s: %s (%d bytes)", media.DriveName(drive), name, size))
}

// EndSession records why the session stopped.
func (j *Journal) EndSession(reason string) error {
	return j.insertEvent(EventSessionStopped, reason)
}

// Recent returns the latest events across all sessions, newest first.
func (j *Journal) Recent(limit int) ([]Event, error) {
	var events []Event
	err := j.db.Select(&events,
		"SELECT * FROM session_events ORDER BY timestamp DESC, rowid DESC LIMIT $1",
		limit)
	return events, err
}

// Events returns every event of one session in the order they happened.
func (j *Journal) Events(sessionID string) ([]Event, error) {
	var events []Event
	err := j.db.Select(&events,
		"SELECT * FROM session_events WHERE session_id = $1 ORDER BY timestamp, rowid",
		sessionID)
	return events, err
}

// Sessions returns the latest sessions, newest first.
func (j *Journal) Sessions(limit int) ([]Session, error) {
	var sessions []Session
	err := j.db.Select(&sessions,
		"SELECT * FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT $1",
		limit)
	return sessions, err
}
