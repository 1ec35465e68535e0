package transcript

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/quill/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	time_ns    INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	session_id TEXT NOT NULL,
	parent_id  TEXT NOT NULL DEFAULT '',
	depth      INTEGER NOT NULL DEFAULT 0,
	text       TEXT NOT NULL DEFAULT '',
	reasoning  TEXT NOT NULL DEFAULT '',
	call_id    TEXT NOT NULL DEFAULT '',
	tool       TEXT NOT NULL DEFAULT '',
	args       TEXT NOT NULL DEFAULT '',
	decision   TEXT NOT NULL DEFAULT '',
	is_error   INTEGER NOT NULL DEFAULT 0,
	state      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS events_session ON events(session_id, id);
`

// SQLiteStore keeps events in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating transcript directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	// Single-process local database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "initialising transcript schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Record(e Event) error {
	isError := 0
	if e.IsError {
		isError = 1
	}
	_, err := s.db.Exec(`
INSERT INTO events (time_ns, kind, session_id, parent_id, depth, text, reasoning, call_id, tool, args, decision, is_error, state)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UnixNano(), string(e.Kind), e.SessionID, e.ParentID, e.Depth, e.Text, e.Reasoning,
		e.CallID, e.Tool, string(e.Args), e.Decision, isError, e.State)
	if err != nil {
		return errors.Wrapf(err, "inserting transcript event")
	}
	return nil
}

// Events returns the events of one session in insertion order. An empty
// sessionID returns every event.
func (s *SQLiteStore) Events(ctx context.Context, sessionID string) ([]Event, error) {
	query := `SELECT time_ns, kind, session_id, parent_id, depth, text, reasoning, call_id, tool, args, decision, is_error, state FROM events`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "querying transcript")
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ns int64
		var kind, callArgs string
		var isError int
		if err := rows.Scan(&ns, &kind, &e.SessionID, &e.ParentID, &e.Depth, &e.Text, &e.Reasoning,
			&e.CallID, &e.Tool, &callArgs, &e.Decision, &isError, &e.State); err != nil {
			return nil, errors.Wrapf(err, "scanning transcript row")
		}
		e.Time = time.Unix(0, ns)
		e.Kind = Kind(kind)
		if callArgs != "" {
			e.Args = []byte(callArgs)
		}
		e.IsError = isError != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
