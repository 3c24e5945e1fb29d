package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trace_entries (
	run_id TEXT NOT NULL,
	seq    INTEGER NOT NULL,
	round  INTEGER NOT NULL,
	kind   TEXT NOT NULL,
	who    TEXT NOT NULL DEFAULT '',
	body   TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS trace_entries_kind ON trace_entries (run_id, kind);
`

// SQLite stores entries in a SQLite database, one row per entry. Several
// runs can share one file; rows are keyed by run id and sequence number.
type SQLite struct {
	db     *sql.DB
	insert *sql.Stmt
}

// OpenSQLite opens (or creates) a trace database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trace: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: create schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT INTO trace_entries (run_id, seq, round, kind, who, body) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: prepare insert: %w", err)
	}
	return &SQLite{db: db, insert: insert}, nil
}

// Emit implements Emitter.
func (s *SQLite) Emit(e Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("trace: marshal entry: %w", err)
	}
	if _, err := s.insert.Exec(e.RunID, e.Seq, e.Round, string(e.Kind), e.Who, string(body)); err != nil {
		return fmt.Errorf("trace: insert entry %d: %w", e.Seq, err)
	}
	return nil
}

// Close implements Emitter.
func (s *SQLite) Close() error {
	s.insert.Close()
	return s.db.Close()
}

// Runs lists the run ids stored in the database, oldest first.
func (s *SQLite) Runs() ([]string, error) {
	rows, err := s.db.Query(`SELECT run_id FROM trace_entries GROUP BY run_id ORDER BY MIN(rowid)`)
	if err != nil {
		return nil, fmt.Errorf("trace: list runs: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("trace: scan run id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Entries returns the entries of runID in emission order.
func (s *SQLite) Entries(runID string) ([]Entry, error) {
	rows, err := s.db.Query(`SELECT body FROM trace_entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("trace: query run %s: %w", runID, err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("trace: scan entry: %w", err)
		}
		var e Entry
		if err := json.Unmarshal([]byte(body), &e); err != nil {
			return nil, fmt.Errorf("trace: decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
