package trace

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
)

// GenesisHash is the prev_hash for the first entry in a new trace file.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// TimestampFormat is the layout used in entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Log is an append-only JSONL trace with SHA-256 hash chaining.
// Each entry's prev_hash is the hash of the previous entry's canonical
// (RFC 8785) JSON form, forming a tamper-evident chain.
type Log struct {
	path     string
	file     *os.File
	prevHash string
	stamp    bool
	mu       sync.Mutex
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithoutTimestamps leaves ts empty so identical runs produce identical files.
func WithoutTimestamps() LogOption {
	return func(l *Log) { l.stamp = false }
}

// Open opens (or creates) a trace file for appending.
// If the file already exists, it reads the last line to recover the chain tail.
func Open(path string, opts ...LogOption) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("trace: create directory: %w", err)
	}

	prevHash := GenesisHash

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("trace: read existing log: %w", err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
		var lastLine []byte
		for scanner.Scan() {
			if len(scanner.Bytes()) == 0 {
				continue
			}
			lastLine = make([]byte, len(scanner.Bytes()))
			copy(lastLine, scanner.Bytes())
		}
		f.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("trace: scan existing log: %w", err)
		}
		if len(lastLine) > 0 {
			h, err := HashLine(lastLine)
			if err != nil {
				return nil, fmt.Errorf("trace: hash chain tail: %w", err)
			}
			prevHash = h
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("trace: open file: %w", err)
	}

	l := &Log{
		path:     path,
		file:     file,
		prevHash: prevHash,
		stamp:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Path returns the file the log appends to.
func (l *Log) Path() string { return l.path }

// Emit appends an entry with hash chaining and syncs it to disk.
func (l *Log) Emit(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stamp && entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = l.prevHash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("trace: marshal entry: %w", err)
	}
	hash, err := HashLine(line)
	if err != nil {
		return fmt.Errorf("trace: canonicalize entry: %w", err)
	}

	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("trace: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("trace: sync: %w", err)
	}

	l.prevHash = hash
	return nil
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of the RFC 8785 canonical form of a JSON line.
func HashLine(line []byte) (string, error) {
	canonical, err := jcs.Transform(line)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
