// Package dataplane holds the shared variables that valid actions act upon.
package dataplane

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/ppiankov/justact/internal/model"
)

// VerdictSource resolves recorded verdicts. *ontology.Store satisfies it.
type VerdictSource interface {
	Verdict(id model.ActionID) (model.Verdict, bool)
}

// Plane is an in-memory key-value space guarded by verdicts.
type Plane struct {
	verdicts VerdictSource

	mu   sync.RWMutex
	vars map[string][]byte
}

// New returns an empty plane checking accesses against verdicts.
func New(verdicts VerdictSource) *Plane {
	return &Plane{
		verdicts: verdicts,
		vars:     make(map[string][]byte),
	}
}

// Seed sets initial contents without a justification. Used before the run starts.
func (p *Plane) Seed(key string, value []byte) {
	p.mu.Lock()
	p.vars[key] = slices.Clone(value)
	p.mu.Unlock()
}

// Read returns the value of key if action justifies actor reading it.
func (p *Plane) Read(actor model.ActorID, key string, action model.ActionID) ([]byte, bool, error) {
	if err := p.authorize(actor, model.Reads, key, action); err != nil {
		return nil, false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.vars[key]
	return slices.Clone(v), ok, nil
}

// Write stores value under key if action justifies actor writing it.
func (p *Plane) Write(actor model.ActorID, key string, value []byte, action model.ActionID) error {
	if err := p.authorize(actor, model.Writes, key, action); err != nil {
		return err
	}
	p.mu.Lock()
	p.vars[key] = slices.Clone(value)
	p.mu.Unlock()
	return nil
}

// Has reports whether key holds a value.
func (p *Plane) Has(key string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.vars[key]
	return ok
}

// Keys lists variable names in sorted order.
func (p *Plane) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Sorted(maps.Keys(p.vars))
}

// Snapshot copies the current contents as strings.
func (p *Plane) Snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.vars))
	for k, v := range p.vars {
		out[k] = string(v)
	}
	return out
}

func (p *Plane) authorize(actor model.ActorID, mode model.Access, key string, action model.ActionID) error {
	deny := func(format string, args ...any) error {
		return &model.PermissionError{Actor: actor, Mode: mode, Key: key, Action: action, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(key) == "" {
		return deny("missing key")
	}
	if action.Actor != actor {
		return deny("action belongs to %s", action.Actor)
	}
	v, ok := p.verdicts.Verdict(action)
	if !ok {
		return deny("action has no verdict")
	}
	if !v.Valid {
		return deny("action was judged invalid")
	}
	if !v.Permits(actor, mode, key) {
		return deny("verdict does not derive %s", model.Effect{Actor: actor, Mode: mode, Key: key})
	}
	return nil
}
