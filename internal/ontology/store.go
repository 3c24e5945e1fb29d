// Package ontology holds the append-only sets every actor publishes into:
// statements, actions, agreements and the logical clock. All reads and
// writes go through a Store owned by the engine.
package ontology

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ppiankov/justact/internal/model"
)

// Store is the in-memory ontology of one run. It is not safe for concurrent
// use; the engine polls actors one at a time.
type Store struct {
	synchronizer model.ActorID
	time         uint64

	statements []model.Statement
	byID       map[model.StatementID]int
	lastSeq    map[model.ActorID]uint64

	actions   []model.Action
	actionIdx map[model.ActionID]int
	lastAct   map[model.ActorID]uint64
	pending   []model.ActionID
	verdicts  map[model.ActionID]model.Verdict

	agreements []model.Agreement
	byVersion  map[string]int
}

// NewStore creates an empty store. Only synchronizer may advance time or
// amend the agreement.
func NewStore(synchronizer model.ActorID) *Store {
	return &Store{
		synchronizer: synchronizer,
		byID:         make(map[model.StatementID]int),
		lastSeq:      make(map[model.ActorID]uint64),
		actionIdx:    make(map[model.ActionID]int),
		lastAct:      make(map[model.ActorID]uint64),
		verdicts:     make(map[model.ActionID]model.Verdict),
		byVersion:    make(map[string]int),
	}
}

// Synchronizer returns the actor holding clock and agreement rights.
func (s *Store) Synchronizer() model.ActorID { return s.synchronizer }

// Time returns the current logical time.
func (s *Store) Time() uint64 { return s.time }

// Install publishes the setup agreement's text as a public statement by the
// synchronizer and makes it active. It may only be called once.
func (s *Store) Install(name, version, language, payload string) (model.Statement, model.Agreement, error) {
	if len(s.agreements) > 0 {
		return model.Statement{}, model.Agreement{}, model.Invariantf("agreement %s already installed", s.Active().Name)
	}
	if _, err := semver.NewVersion(version); err != nil {
		return model.Statement{}, model.Agreement{}, fmt.Errorf("ontology: agreement %s: version %q: %w", name, version, err)
	}
	st, err := s.PublishStatement(s.synchronizer, model.Everyone(), language, payload)
	if err != nil {
		return model.Statement{}, model.Agreement{}, err
	}
	ag := model.Agreement{
		Name:       name,
		Version:    version,
		Language:   language,
		Statements: []model.StatementID{st.ID},
		At:         s.time,
	}
	s.pushAgreement(ag)
	return st, ag, nil
}

// PublishStatement assigns the next identity for origin and appends the statement.
func (s *Store) PublishStatement(origin model.ActorID, audience model.Audience, language, payload string) (model.Statement, error) {
	if origin == "" {
		return model.Statement{}, fmt.Errorf("ontology: publish statement: empty origin")
	}
	id := model.StatementID{Author: origin, Seq: s.lastSeq[origin] + 1}
	if _, dup := s.byID[id]; dup {
		return model.Statement{}, model.Invariantf("duplicate statement identity %s", id)
	}
	st := model.Statement{
		ID:       id,
		Audience: audience,
		Language: strings.TrimSpace(language),
		Payload:  payload,
		Time:     s.time,
	}
	s.lastSeq[origin] = id.Seq
	s.byID[id] = len(s.statements)
	s.statements = append(s.statements, st)
	return st, nil
}

// PublishAction records an action citing justification. Every cited
// statement must exist and be visible to actor.
func (s *Store) PublishAction(actor model.ActorID, justification []model.StatementID) (model.Action, error) {
	if len(s.agreements) == 0 {
		return model.Action{}, model.Invariantf("action by %s before any agreement was installed", actor)
	}
	just, err := s.CheckJustification(actor, justification)
	if err != nil {
		return model.Action{}, err
	}

	id := model.ActionID{Actor: actor, Seq: s.lastAct[actor] + 1}
	if _, dup := s.actionIdx[id]; dup {
		return model.Action{}, model.Invariantf("duplicate action identity %s", id)
	}
	act := model.Action{
		ID:            id,
		Justification: just,
		Basis:         s.Active().Version,
		Time:          s.time,
	}
	s.lastAct[actor] = id.Seq
	s.actionIdx[id] = len(s.actions)
	s.actions = append(s.actions, act)
	s.pending = append(s.pending, id)
	return act, nil
}

// CheckJustification resolves justification on behalf of actor without
// publishing anything. Duplicates are dropped; ids that are unknown or
// outside the actor's audience yield a *model.ReferenceError.
func (s *Store) CheckJustification(actor model.ActorID, justification []model.StatementID) ([]model.StatementID, error) {
	var refErr model.ReferenceError
	var just []model.StatementID
	for _, id := range justification {
		if slices.Contains(just, id) {
			continue
		}
		st, ok := s.Statement(id)
		switch {
		case !ok:
			refErr.Missing = append(refErr.Missing, id)
		case !st.VisibleTo(actor):
			refErr.Hidden = append(refErr.Hidden, id)
		default:
			just = append(just, id)
		}
	}
	if len(refErr.Missing) > 0 || len(refErr.Hidden) > 0 {
		refErr.Actor = actor
		return nil, &refErr
	}
	return just, nil
}

// Statement looks up a statement regardless of audience.
func (s *Store) Statement(id model.StatementID) (model.Statement, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Statement{}, false
	}
	return s.statements[i], true
}

// ReadVisible yields, in publication order, the statements actor may see.
// The sequence is bounded by the statements present when iteration starts
// and may be ranged over any number of times.
func (s *Store) ReadVisible(actor model.ActorID) iter.Seq[model.Statement] {
	return func(yield func(model.Statement) bool) {
		n := len(s.statements)
		for i := 0; i < n; i++ {
			st := s.statements[i]
			if !st.VisibleTo(actor) {
				continue
			}
			if !yield(st) {
				return
			}
		}
	}
}

// Published returns every statement in publication order, regardless of audience.
func (s *Store) Published() []model.Statement { return slices.Clone(s.statements) }

// Action looks up a published action.
func (s *Store) Action(id model.ActionID) (model.Action, bool) {
	i, ok := s.actionIdx[id]
	if !ok {
		return model.Action{}, false
	}
	return s.actions[i], true
}

// Actions returns every published action in publication order.
func (s *Store) Actions() []model.Action { return slices.Clone(s.actions) }

// Pending returns the unaudited actions in publication order.
func (s *Store) Pending() []model.Action {
	out := make([]model.Action, 0, len(s.pending))
	for _, id := range s.pending {
		a, _ := s.Action(id)
		out = append(out, a)
	}
	return out
}

// RecordVerdict attaches v to its action. Verdicts are write-once.
func (s *Store) RecordVerdict(v model.Verdict) error {
	if _, ok := s.actionIdx[v.Action]; !ok {
		return model.Invariantf("verdict for unknown action %s", v.Action)
	}
	if _, dup := s.verdicts[v.Action]; dup {
		return model.Invariantf("second verdict for action %s", v.Action)
	}
	s.verdicts[v.Action] = v
	s.pending = slices.DeleteFunc(s.pending, func(id model.ActionID) bool { return id == v.Action })
	return nil
}

// Verdict returns the recorded verdict for id, if any.
func (s *Store) Verdict(id model.ActionID) (model.Verdict, bool) {
	v, ok := s.verdicts[id]
	return v, ok
}

// AdvanceTime increments the logical clock.
func (s *Store) AdvanceTime(caller model.ActorID) (uint64, error) {
	if caller != s.synchronizer {
		return s.time, fmt.Errorf("ontology: advance time by %s: %w", caller, model.ErrNotSynchronizer)
	}
	s.time++
	return s.time, nil
}

// AmendAgreement atomically replaces the active agreement. expected must
// name the active version; a mismatch means two amendments raced. The new
// version must be greater than the active one.
func (s *Store) AmendAgreement(caller model.ActorID, expected string, next model.Agreement) (model.Agreement, error) {
	if caller != s.synchronizer {
		return model.Agreement{}, fmt.Errorf("ontology: amend agreement by %s: %w", caller, model.ErrNotSynchronizer)
	}
	if len(s.agreements) == 0 {
		return model.Agreement{}, model.Invariantf("amendment before any agreement was installed")
	}
	active := s.Active()
	if expected != active.Version {
		return model.Agreement{}, model.Invariantf("amendment race: expected active version %s, found %s", expected, active.Version)
	}
	cur, err := semver.NewVersion(active.Version)
	if err != nil {
		return model.Agreement{}, model.Invariantf("active agreement has invalid version %q", active.Version)
	}
	nv, err := semver.NewVersion(next.Version)
	if err != nil {
		return model.Agreement{}, fmt.Errorf("ontology: amendment version %q: %w", next.Version, err)
	}
	if !nv.GreaterThan(cur) {
		return model.Agreement{}, model.Invariantf("amendment version %s does not supersede %s", nv, cur)
	}
	if len(next.Statements) == 0 {
		return model.Agreement{}, fmt.Errorf("ontology: amendment %s has no statements", next.Version)
	}

	var refErr model.ReferenceError
	for _, id := range next.Statements {
		st, ok := s.Statement(id)
		switch {
		case !ok:
			refErr.Missing = append(refErr.Missing, id)
		case !st.Audience.All:
			refErr.Hidden = append(refErr.Hidden, id)
		}
	}
	if len(refErr.Missing) > 0 || len(refErr.Hidden) > 0 {
		refErr.Actor = caller
		return model.Agreement{}, &refErr
	}

	if next.Name == "" {
		next.Name = active.Name
	}
	next.At = s.time
	next.Statements = slices.Clone(next.Statements)
	s.pushAgreement(next)
	return next, nil
}

func (s *Store) pushAgreement(ag model.Agreement) {
	s.byVersion[ag.Version] = len(s.agreements)
	s.agreements = append(s.agreements, ag)
}

// Active returns the agreement currently in force.
func (s *Store) Active() model.Agreement {
	if len(s.agreements) == 0 {
		return model.Agreement{}
	}
	return s.agreements[len(s.agreements)-1]
}

// Agreement returns the agreement that carried version.
func (s *Store) Agreement(version string) (model.Agreement, bool) {
	i, ok := s.byVersion[version]
	if !ok {
		return model.Agreement{}, false
	}
	return s.agreements[i], true
}

// Agreements returns the amendment history, oldest first.
func (s *Store) Agreements() []model.Agreement { return slices.Clone(s.agreements) }

// Statements resolves ids in order. Unknown ids are an invariant violation
// because PublishAction already validated them.
func (s *Store) Statements(ids []model.StatementID) ([]model.Statement, error) {
	out := make([]model.Statement, 0, len(ids))
	for _, id := range ids {
		st, ok := s.Statement(id)
		if !ok {
			return nil, model.Invariantf("statement %s vanished", id)
		}
		out = append(out, st)
	}
	return out, nil
}
