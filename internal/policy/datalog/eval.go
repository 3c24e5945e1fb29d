package datalog

import (
	"fmt"
	"strings"

	"github.com/ppiankov/justact/internal/policy"
)

// relation holds the ground tuples of one pred/arity in insertion order.
type relation struct {
	tuples [][]string
	seen   map[string]struct{}
}

type database map[string]*relation

func (db database) add(pred string, args []string) bool {
	k := relKey(pred, len(args))
	rel, ok := db[k]
	if !ok {
		rel = &relation{seen: make(map[string]struct{})}
		db[k] = rel
	}
	tk := strings.Join(args, "\x00")
	if _, dup := rel.seen[tk]; dup {
		return false
	}
	rel.seen[tk] = struct{}{}
	rel.tuples = append(rel.tuples, args)
	return true
}

func (db database) has(pred string, args []string) bool {
	rel, ok := db[relKey(pred, len(args))]
	if !ok {
		return false
	}
	_, found := rel.seen[strings.Join(args, "\x00")]
	return found
}

func (db database) facts() policy.Facts {
	var atoms []policy.Atom
	for k, rel := range db {
		pred := k[:strings.LastIndexByte(k, '/')]
		for _, t := range rel.tuples {
			atoms = append(atoms, policy.NewAtom(pred, t...))
		}
	}
	return policy.NewFacts(atoms...)
}

// ruleError pins an evaluation failure to the statement that caused it.
type ruleError struct {
	Source string
	Err    error
}

func (e *ruleError) Error() string { return e.Err.Error() }

func (e *ruleError) Unwrap() error { return e.Err }

// checkSafety rejects rules whose head or negated variables are not bound
// by a positive body literal.
func checkSafety(r Rule) error {
	bound := make(map[string]bool)
	for _, l := range r.Body {
		if l.Neg {
			continue
		}
		for _, t := range l.Terms {
			if t.Var {
				bound[t.Name] = true
			}
		}
	}
	for _, t := range r.Head.Terms {
		if t.Var && !bound[t.Name] {
			return &ruleError{Source: r.Source, Err: fmt.Errorf("line %d: unbound variable %s in head of %s", r.Line, t.Name, r)}
		}
	}
	for _, l := range r.Body {
		if !l.Neg {
			continue
		}
		for _, t := range l.Terms {
			if t.Var && !bound[t.Name] && !strings.HasPrefix(t.Name, "_") {
				return &ruleError{Source: r.Source, Err: fmt.Errorf("line %d: unbound variable %s under negation in %s", r.Line, t.Name, r)}
			}
		}
	}
	return nil
}

// stratify assigns each rule a stratum so that negated relations are fully
// computed before use. A cycle through negation is an error.
func stratify(rules []Rule) ([][]Rule, error) {
	strata := make(map[string]int)
	for _, r := range rules {
		strata[r.Head.key()] = 0
		for _, l := range r.Body {
			if _, ok := strata[l.key()]; !ok {
				strata[l.key()] = 0
			}
		}
	}
	limit := len(strata)
	for changed := true; changed; {
		changed = false
		for _, r := range rules {
			h := r.Head.key()
			for _, l := range r.Body {
				need := strata[l.key()]
				if l.Neg {
					need++
				}
				if need > strata[h] {
					if need > limit {
						return nil, &ruleError{Source: r.Source, Err: fmt.Errorf("line %d: relation %s depends negatively on itself", r.Line, h)}
					}
					strata[h] = need
					changed = true
				}
			}
		}
	}

	maxStratum := 0
	for _, s := range strata {
		if s > maxStratum {
			maxStratum = s
		}
	}
	out := make([][]Rule, maxStratum+1)
	for _, r := range rules {
		s := strata[r.Head.key()]
		out[s] = append(out[s], r)
	}
	return out, nil
}

// evaluate computes the least model stratum by stratum.
func evaluate(rules []Rule) (database, error) {
	for _, r := range rules {
		if err := checkSafety(r); err != nil {
			return nil, err
		}
	}
	strata, err := stratify(rules)
	if err != nil {
		return nil, err
	}

	db := make(database)
	for _, layer := range strata {
		for changed := true; changed; {
			changed = false
			for _, r := range layer {
				for _, args := range derive(db, r) {
					if db.add(r.Head.Pred, args) {
						changed = true
					}
				}
			}
		}
	}
	return db, nil
}

// derive returns the head tuples produced by r over the current database.
func derive(db database, r Rule) [][]string {
	body := orderBody(r.Body)
	var out [][]string
	var walk func(i int, env map[string]string)
	walk = func(i int, env map[string]string) {
		if i == len(body) {
			out = append(out, ground(r.Head.Terms, env))
			return
		}
		l := body[i]
		if l.Neg {
			if !negHolds(db, l, env) {
				walk(i+1, env)
			}
			return
		}
		rel, ok := db[l.key()]
		if !ok {
			return
		}
		// Snapshot: the relation may grow while we iterate.
		tuples := rel.tuples
		for _, tuple := range tuples {
			if next, ok := unify(l.Terms, tuple, env); ok {
				walk(i+1, next)
			}
		}
	}
	walk(0, map[string]string{})
	return out
}

// negHolds reports whether some tuple matches the negated literal.
// Anonymous variables match anything.
func negHolds(db database, l Literal, env map[string]string) bool {
	rel, ok := db[l.key()]
	if !ok {
		return false
	}
	for _, tuple := range rel.tuples {
		if _, ok := unify(l.Terms, tuple, env); ok {
			return true
		}
	}
	return false
}

func orderBody(body []Literal) []Literal {
	out := make([]Literal, 0, len(body))
	for _, l := range body {
		if !l.Neg {
			out = append(out, l)
		}
	}
	for _, l := range body {
		if l.Neg {
			out = append(out, l)
		}
	}
	return out
}

func unify(terms []Term, tuple []string, env map[string]string) (map[string]string, bool) {
	var next map[string]string
	for i, t := range terms {
		if !t.Var {
			if t.Name != tuple[i] {
				return nil, false
			}
			continue
		}
		cur := env
		if next != nil {
			cur = next
		}
		if v, ok := cur[t.Name]; ok {
			if v != tuple[i] {
				return nil, false
			}
			continue
		}
		if next == nil {
			next = make(map[string]string, len(env)+len(terms))
			for k, v := range env {
				next[k] = v
			}
		}
		next[t.Name] = tuple[i]
	}
	if next == nil {
		return env, true
	}
	return next, true
}

func ground(terms []Term, env map[string]string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		if t.Var {
			out[i] = env[t.Name]
		} else {
			out[i] = t.Name
		}
	}
	return out
}
