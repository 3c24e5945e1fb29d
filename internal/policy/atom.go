package policy

import (
	"fmt"
	"slices"
	"strings"
)

// Atom is a ground fact such as ready(x) or error.
type Atom struct {
	Pred string
	Args []string
}

// NewAtom builds an atom from a predicate and constant arguments.
func NewAtom(pred string, args ...string) Atom {
	return Atom{Pred: pred, Args: args}
}

func (a Atom) String() string {
	if len(a.Args) == 0 {
		return a.Pred
	}
	return a.Pred + "(" + strings.Join(a.Args, ", ") + ")"
}

// Arity returns the number of arguments.
func (a Atom) Arity() int { return len(a.Args) }

// Equal compares predicate and arguments.
func (a Atom) Equal(b Atom) bool {
	return a.Pred == b.Pred && slices.Equal(a.Args, b.Args)
}

// ParseAtom parses the printed form of a ground atom: pred or pred(a, b).
// Quoted arguments keep their quotes so the printed form round-trips.
func ParseAtom(s string) (Atom, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if !validPred(s) {
			return Atom{}, fmt.Errorf("invalid atom %q", s)
		}
		return Atom{Pred: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return Atom{}, fmt.Errorf("invalid atom %q: missing ')'", s)
	}
	pred := strings.TrimSpace(s[:open])
	if !validPred(pred) {
		return Atom{}, fmt.Errorf("invalid atom %q: bad predicate", s)
	}
	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return Atom{Pred: pred}, nil
	}
	args, err := splitArgs(inner)
	if err != nil {
		return Atom{}, fmt.Errorf("invalid atom %q: %w", s, err)
	}
	return Atom{Pred: pred, Args: args}, nil
}

func validPred(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == ',' && !inQuote:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string")
	}
	args = append(args, strings.TrimSpace(cur.String()))
	for _, a := range args {
		if a == "" {
			return nil, fmt.Errorf("empty argument")
		}
	}
	return args, nil
}

// Facts is a sorted, duplicate-free set of ground atoms.
type Facts struct {
	atoms []Atom
}

// NewFacts sorts and de-duplicates atoms.
func NewFacts(atoms ...Atom) Facts {
	out := slices.Clone(atoms)
	slices.SortFunc(out, compareAtoms)
	out = slices.CompactFunc(out, Atom.Equal)
	return Facts{atoms: out}
}

func compareAtoms(a, b Atom) int {
	return strings.Compare(a.String(), b.String())
}

// All returns the atoms in sorted order.
func (f Facts) All() []Atom { return slices.Clone(f.atoms) }

// Len returns the number of facts.
func (f Facts) Len() int { return len(f.atoms) }

// Has reports whether a is derived.
func (f Facts) Has(a Atom) bool {
	_, ok := slices.BinarySearchFunc(f.atoms, a, compareAtoms)
	return ok
}

// ByPred returns all facts with the given predicate, any arity.
func (f Facts) ByPred(pred string) []Atom {
	var out []Atom
	for _, a := range f.atoms {
		if a.Pred == pred {
			out = append(out, a)
		}
	}
	return out
}

// Strings renders every fact.
func (f Facts) Strings() []string {
	out := make([]string, len(f.atoms))
	for i, a := range f.atoms {
		out[i] = a.String()
	}
	return out
}
