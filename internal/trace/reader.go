package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxLine = 4 * 1024 * 1024

// Reader decodes a JSONL trace one entry at a time, in emission order.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Reader{scanner: sc}
}

// Next returns the next entry, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (Entry, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return Entry{}, fmt.Errorf("trace: line %d: %w", r.line, err)
		}
		return e, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Entry{}, fmt.Errorf("trace: read: %w", err)
	}
	return Entry{}, io.EOF
}

// ReadAll loads every entry from path. Files ending in .db, .sqlite or
// .sqlite3 are read from the SQLite sink, all other files as JSONL. For
// SQLite files holding several runs, the most recent run is returned.
func ReadAll(path string) ([]Entry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return readSQLite(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	var out []Entry
	r := NewReader(f)
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
}

func readSQLite(path string) ([]Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	runs, err := db.Runs()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return db.Entries(runs[len(runs)-1])
}
