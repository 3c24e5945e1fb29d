// Package datalog evaluates Datalog with stratified negation-as-failure.
//
// Statements hold rules and facts:
//
//	owns(administrator, Data) :- ctl_accesses(Accessor, Data).
//	error :- ctl_accesses(A, D), owns(O, D), not ctl_authorises(O, A, D).
//
// Facts whose predicate starts with ctl_ (or ctl-) speak for an actor. They
// may only be stated by the actor named in their first argument; any other
// author makes error hold.
package datalog

import (
	"errors"
	"strings"

	"github.com/ppiankov/justact/internal/policy"
)

// Language is the tag statements use to select this backend.
const Language = "datalog"

// Backend is the Datalog policy backend. The zero value is ready to use.
type Backend struct{}

// New returns a Datalog backend.
func New() *Backend { return &Backend{} }

// Language implements policy.Backend.
func (*Backend) Language() string { return Language }

// Evaluate parses every source and computes the program's least model.
func (b *Backend) Evaluate(p policy.Program) (policy.Facts, error) {
	var rules []Rule
	forged := false
	for _, src := range p.Sources {
		parsed, err := Parse(src.Statement, src.Text)
		if err != nil {
			return policy.Facts{}, &policy.BackendError{Language: Language, Statement: src.Statement, Err: err}
		}
		for _, r := range parsed {
			if src.Author != "" && forgesControl(r, src.Author) {
				forged = true
			}
		}
		rules = append(rules, parsed...)
	}

	db, err := evaluate(rules)
	if err != nil {
		return policy.Facts{}, wrap(err)
	}
	if forged {
		db.add(policy.ErrorPred, nil)
	}
	return db.facts(), nil
}

// forgesControl reports whether r states a control fact on behalf of
// someone other than author.
func forgesControl(r Rule, author string) bool {
	pred := r.Head.Pred
	if !strings.HasPrefix(pred, "ctl_") && !strings.HasPrefix(pred, "ctl-") {
		return false
	}
	if len(r.Head.Terms) == 0 {
		return true
	}
	first := r.Head.Terms[0]
	return first.Var || first.Name != author
}

func wrap(err error) error {
	var re *ruleError
	if errors.As(err, &re) {
		return &policy.BackendError{Language: Language, Statement: re.Source, Err: re.Err}
	}
	return &policy.BackendError{Language: Language, Err: err}
}
