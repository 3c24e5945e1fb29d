// Package trace records every observable runtime event as an ordered,
// append-only stream of entries.
package trace

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Emitter receives entries in emission order. Emission order is the single
// source of truth for what happened when; sinks never reorder.
type Emitter interface {
	Emit(Entry) error
	Close() error
}

// NewRunID returns a fresh identifier for one engine run.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// Recorder keeps entries in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty in-memory sink.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements Emitter.
func (r *Recorder) Emit(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

// Close implements Emitter.
func (r *Recorder) Close() error { return nil }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// OfKind returns the recorded entries with kind k.
func (r *Recorder) OfKind(k Kind) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Multi fans entries out to several sinks.
type Multi []Emitter

// Emit sends e to every sink, even when an earlier one fails.
func (m Multi) Emit(e Entry) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Emit(Entry) error { return nil }
func (Discard) Close() error { return nil }
