// Package policy defines the contract between the audit engine and the
// logic languages actors write their statements in.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrorPred is the reserved predicate whose derivation makes an action illegal.
const ErrorPred = "error"

// Source is one statement's text inside a combined program.
type Source struct {
	Statement string
	Author    string
	Text      string
}

// Program is the agreement's statements followed by an action's justification.
type Program struct {
	Language string
	Sources  []Source
}

// Backend evaluates programs written in a single language. Implementations
// must not carry state between calls.
type Backend interface {
	Language() string
	Evaluate(p Program) (Facts, error)
}

// BackendError is a parse or evaluation failure. The engine treats it as fatal.
type BackendError struct {
	Language  string
	Statement string
	Err       error
}

func (e *BackendError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("policy: %s backend: statement %s: %v", e.Language, e.Statement, e.Err)
	}
	return fmt.Sprintf("policy: %s backend: %v", e.Language, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackendError reports whether err carries a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// Errorf builds a BackendError for lang, optionally pinned to a statement.
func Errorf(lang, statement, format string, args ...any) error {
	return &BackendError{Language: lang, Statement: statement, Err: fmt.Errorf(format, args...)}
}

// Registry dispatches programs to backends by language tag.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds b under its language tag.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lang := b.Language()
	if _, ok := r.backends[lang]; ok {
		return fmt.Errorf("policy: language %q already registered", lang)
	}
	r.backends[lang] = b
	return nil
}

// For returns the backend for lang.
func (r *Registry) For(lang string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[lang]
	if !ok {
		return nil, &BackendError{Language: lang, Err: fmt.Errorf("no backend registered")}
	}
	return b, nil
}

// Languages lists registered tags in sorted order.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for k := range r.backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Evaluate runs p on the backend registered for p.Language.
func (r *Registry) Evaluate(p Program) (Facts, error) {
	b, err := r.For(p.Language)
	if err != nil {
		return Facts{}, err
	}
	facts, err := b.Evaluate(p)
	if err != nil && !IsBackendError(err) {
		err = &BackendError{Language: p.Language, Err: err}
	}
	return facts, err
}
