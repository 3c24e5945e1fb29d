// Package celrules evaluates line-oriented rules whose conditions are CEL
// expressions over the facts derived so far.
//
//	fact requested(x)
//	legal(x) if "requested(x)" in facts && "approved(x)" in facts
//	error if "requested(x)" in facts && !("approved(x)" in facts)
package celrules

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/ppiankov/justact/internal/policy"
)

// Language is the tag statements use to select this backend.
const Language = "cel"

// DefaultCostLimit bounds a single condition evaluation.
const DefaultCostLimit = 10000

// Backend evaluates CEL rule programs. Compiled conditions are cached by
// source text, so an agreement is compiled once per run.
type Backend struct {
	env       *cel.Env
	costLimit uint64

	mu       sync.RWMutex
	prgCache map[string]cel.Program
}

// New builds a backend. A zero costLimit selects DefaultCostLimit.
func New(costLimit uint64) (*Backend, error) {
	env, err := cel.NewEnv(
		cel.Variable("facts", cel.MapType(cel.StringType, cel.BoolType)),
	)
	if err != nil {
		return nil, fmt.Errorf("celrules: create environment: %w", err)
	}
	if costLimit == 0 {
		costLimit = DefaultCostLimit
	}
	return &Backend{env: env, costLimit: costLimit, prgCache: make(map[string]cel.Program)}, nil
}

// Language implements policy.Backend.
func (*Backend) Language() string { return Language }

type rule struct {
	head   policy.Atom
	source string
	line   int
	prg    cel.Program
}

// Evaluate compiles every rule not yet cached and applies them until no new fact appears.
func (b *Backend) Evaluate(p policy.Program) (policy.Facts, error) {
	known := make(map[string]policy.Atom)
	var rules []rule

	for _, src := range p.Sources {
		for i, raw := range strings.Split(src.Text, "\n") {
			line := strings.TrimSpace(raw)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if rest, ok := strings.CutPrefix(line, "fact "); ok {
				atom, err := policy.ParseAtom(rest)
				if err != nil {
					return policy.Facts{}, policy.Errorf(Language, src.Statement, "line %d: %v", i+1, err)
				}
				known[atom.String()] = atom
				continue
			}
			headText, cond, ok := strings.Cut(line, " if ")
			if !ok {
				return policy.Facts{}, policy.Errorf(Language, src.Statement, "line %d: expected 'fact <atom>' or '<atom> if <expr>'", i+1)
			}
			head, err := policy.ParseAtom(headText)
			if err != nil {
				return policy.Facts{}, policy.Errorf(Language, src.Statement, "line %d: %v", i+1, err)
			}
			prg, err := b.compile(cond)
			if err != nil {
				return policy.Facts{}, policy.Errorf(Language, src.Statement, "line %d: %v", i+1, err)
			}
			rules = append(rules, rule{head: head, source: src.Statement, line: i + 1, prg: prg})
		}
	}

	// Every pass either adds a head or stops, so at most len(rules)+1 passes run.
	for changed := true; changed; {
		changed = false
		input := map[string]any{"facts": snapshot(known)}
		for _, r := range rules {
			key := r.head.String()
			if _, ok := known[key]; ok {
				continue
			}
			holds, err := eval(r.prg, input)
			if err != nil {
				return policy.Facts{}, policy.Errorf(Language, r.source, "line %d: %v", r.line, err)
			}
			if holds {
				known[key] = r.head
				changed = true
			}
		}
	}

	atoms := make([]policy.Atom, 0, len(known))
	for _, a := range known {
		atoms = append(atoms, a)
	}
	return policy.NewFacts(atoms...), nil
}

func (b *Backend) compile(expr string) (cel.Program, error) {
	b.mu.RLock()
	prg, hit := b.prgCache[expr]
	b.mu.RUnlock()
	if hit {
		return prg, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if prg, hit = b.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := b.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := b.env.Program(ast,
		cel.CostLimit(b.costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	b.prgCache[expr] = prg
	return prg, nil
}

func (b *Backend) cached() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.prgCache)
}

func eval(prg cel.Program, input map[string]any) (bool, error) {
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition is %T, not bool", out.Value())
	}
	return v, nil
}

func snapshot(known map[string]policy.Atom) map[string]bool {
	m := make(map[string]bool, len(known))
	for k := range known {
		m[k] = true
	}
	return m
}
