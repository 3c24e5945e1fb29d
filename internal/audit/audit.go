// Package audit judges actions against the agreement they were published under.
package audit

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/justact/internal/model"
	"github.com/ppiankov/justact/internal/policy"
)

// Requirement demands that every derived Pred fact is matched by a Requires
// fact with the same arguments.
type Requirement struct {
	Pred     string `yaml:"pred" toml:"pred" json:"pred"`
	Requires string `yaml:"requires" toml:"requires" json:"requires"`
}

// DefaultRequirements is the single built-in obligation: nothing is executed
// before it is ready.
func DefaultRequirements() []Requirement {
	return []Requirement{{Pred: "executed", Requires: "ready"}}
}

// Auditor evaluates justifications through the policy registry.
type Auditor struct {
	registry     *policy.Registry
	requirements []Requirement
	logger       zerolog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithRequirements replaces the default requirements. An empty list disables them.
func WithRequirements(reqs []Requirement) Option {
	return func(a *Auditor) { a.requirements = slices.Clone(reqs) }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *Auditor) { a.logger = l }
}

// New returns an Auditor dispatching to registry.
func New(registry *policy.Registry, opts ...Option) *Auditor {
	a := &Auditor{
		registry:     registry,
		requirements: DefaultRequirements(),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Requirements returns the obligations checked on every verdict.
func (a *Auditor) Requirements() []Requirement { return slices.Clone(a.requirements) }

// Audit decides whether action is legal under agreement.
//
// Evaluation order:
//  1. Program = agreement statements, then justification statements, de-duplicated by id
//  2. All statements must share the agreement's language
//  3. Backend evaluation (a BackendError is returned unchanged and is fatal)
//  4. Any derived error fact, at any arity, is a violation
//  5. Requirements: every derived Pred(args) needs Requires(args)
//  6. Effects: reads/writes whose first argument is the acting actor
//
// The verdict depends only on the inputs.
func (a *Auditor) Audit(agreement model.Agreement, agreementText, justification []model.Statement, action model.Action) (model.Verdict, error) {
	prog, err := a.program(agreement, agreementText, justification)
	if err != nil {
		return model.Verdict{}, err
	}
	facts, err := a.registry.Evaluate(prog)
	if err != nil {
		return model.Verdict{}, err
	}

	actor := action.Actor()
	v := model.Verdict{Action: action.ID, Agreement: agreement.Version}

	for _, f := range facts.ByPred(policy.ErrorPred) {
		v.Violations = append(v.Violations, f.String())
	}
	for _, req := range a.requirements {
		for _, f := range facts.ByPred(req.Pred) {
			need := policy.NewAtom(req.Requires, f.Args...)
			if !facts.Has(need) {
				v.Violations = append(v.Violations, fmt.Sprintf("%s requires %s", f, need))
			}
		}
	}
	for _, mode := range []model.Access{model.Reads, model.Writes} {
		for _, f := range facts.ByPred(string(mode)) {
			if f.Arity() != 2 {
				continue
			}
			owner := model.ActorID(f.Args[0])
			if owner != actor {
				v.Violations = append(v.Violations, fmt.Sprintf("effect of %s claimed by %s", owner, actor))
				continue
			}
			v.Effects = append(v.Effects, model.Effect{Actor: actor, Mode: mode, Key: f.Args[1]})
		}
	}

	v.Valid = len(v.Violations) == 0
	v.Truths = sortTruths(facts.Strings())
	slices.SortFunc(v.Effects, func(x, y model.Effect) int { return strings.Compare(x.String(), y.String()) })
	v.Effects = slices.Compact(v.Effects)
	if !v.Valid {
		v.Effects = nil
	}

	a.logger.Debug().
		Str("action", action.ID.String()).
		Str("agreement", agreement.Version).
		Bool("valid", v.Valid).
		Int("facts", facts.Len()).
		Strs("violations", v.Violations).
		Msg("audited")
	return v, nil
}

func (a *Auditor) program(agreement model.Agreement, agreementText, justification []model.Statement) (policy.Program, error) {
	prog := policy.Program{Language: agreement.Language}
	seen := make(map[model.StatementID]bool)
	for _, st := range slices.Concat(agreementText, justification) {
		if seen[st.ID] {
			continue
		}
		seen[st.ID] = true
		if st.Language != prog.Language {
			return policy.Program{}, policy.Errorf(prog.Language, st.ID.String(),
				"statement language %q does not match agreement language %q", st.Language, prog.Language)
		}
		prog.Sources = append(prog.Sources, policy.Source{
			Statement: st.ID.String(),
			Author:    string(st.ID.Author),
			Text:      st.Payload,
		})
	}
	return prog, nil
}

// sortTruths orders error facts first, then the rest alphabetically.
func sortTruths(truths []string) []string {
	out := slices.Clone(truths)
	slices.SortFunc(out, func(x, y string) int {
		ex, ey := isError(x), isError(y)
		switch {
		case ex && !ey:
			return -1
		case ey && !ex:
			return 1
		}
		return strings.Compare(x, y)
	})
	return out
}

func isError(s string) bool {
	return s == policy.ErrorPred || strings.HasPrefix(s, policy.ErrorPred+"(")
}
