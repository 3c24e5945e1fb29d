package engine

import (
	"fmt"
	"iter"
	"slices"

	"github.com/ppiankov/justact/internal/model"
	"github.com/ppiankov/justact/internal/trace"
)

// View is an actor's handle on the run during its poll. Every operation is
// performed on behalf of that actor and traced.
type View struct {
	e     *Engine
	actor model.ActorID
	errs  []error
	last  model.StatementID
}

// Actor returns the actor this view acts for.
func (v *View) Actor() model.ActorID { return v.actor }

// Round returns the current round, starting at 1.
func (v *View) Round() uint64 { return v.e.round }

// Time returns the current logical time.
func (v *View) Time() uint64 { return v.e.store.Time() }

// Synchronizer reports whether this actor holds clock and agreement rights.
func (v *View) Synchronizer() bool { return v.e.store.Synchronizer() == v.actor }

// Errors returns the recoverable errors raised during the actor's previous poll.
func (v *View) Errors() []error { return slices.Clone(v.errs) }

// Visible yields the statements this actor may observe, in publication order.
func (v *View) Visible() iter.Seq[model.Statement] { return v.e.store.ReadVisible(v.actor) }

// Sees reports whether id has been published and is visible to this actor.
func (v *View) Sees(id model.StatementID) bool {
	st, ok := v.e.store.Statement(id)
	return ok && st.VisibleTo(v.actor)
}

// LastStatement returns the identity of this actor's most recent statement.
func (v *View) LastStatement() (model.StatementID, bool) {
	return v.last, !v.last.IsZero()
}

// Agreement returns the active agreement.
func (v *View) Agreement() model.Agreement { return v.e.store.Active() }

// Enacted reports whether id has been published.
func (v *View) Enacted(id model.ActionID) bool {
	_, ok := v.e.store.Action(id)
	return ok
}

// Verdict returns the recorded verdict for id. Verdicts appear after the
// audit phase of the round the action was published in. Truths, violations
// and effects are derived from the justification, so they are withheld
// unless this actor enacted the action or sees every statement it cites.
func (v *View) Verdict(id model.ActionID) (model.Verdict, bool) {
	verdict, ok := v.e.store.Verdict(id)
	if !ok || id.Actor == v.actor {
		return verdict, ok
	}
	act, found := v.e.store.Action(id)
	if found && v.seesAll(act.Justification) {
		return verdict, true
	}
	return model.Verdict{Action: verdict.Action, Valid: verdict.Valid, Agreement: verdict.Agreement}, true
}

func (v *View) seesAll(ids []model.StatementID) bool {
	for _, id := range ids {
		if !v.Sees(id) {
			return false
		}
	}
	return true
}

// Check reports whether justification could be enacted now, without
// publishing. A failure is reported like a failed Enact.
func (v *View) Check(justification ...model.StatementID) error {
	if _, err := v.e.store.CheckJustification(v.actor, justification); err != nil {
		return v.e.report(v.actor, err)
	}
	return nil
}

// Reject reports err against this actor as a failed request. Recoverable
// errors reach the actor on its next poll; anything else aborts the run.
func (v *View) Reject(err error) error { return v.e.report(v.actor, err) }

// Publish states payload to audience.
func (v *View) Publish(audience model.Audience, language, payload string) (model.Statement, error) {
	st, err := v.e.store.PublishStatement(v.actor, audience, language, payload)
	if err != nil {
		return model.Statement{}, v.e.report(v.actor, err)
	}
	v.last = st.ID
	v.e.emitStatement(st)
	return st, nil
}

// Enact publishes an action justified by the given statements. The action
// is audited at the end of the current round.
func (v *View) Enact(justification ...model.StatementID) (model.Action, error) {
	act, err := v.e.store.PublishAction(v.actor, justification)
	if err != nil {
		return model.Action{}, v.e.report(v.actor, err)
	}
	just := make([]string, len(act.Justification))
	for i, id := range act.Justification {
		just[i] = id.String()
	}
	v.e.emit(trace.Entry{
		Kind:          trace.KindActionPublished,
		Who:           string(v.actor),
		ID:            act.ID.String(),
		Justification: just,
		Basis:         act.Basis,
	})
	return act, nil
}

// Read fetches key from the dataplane under the authority of action.
func (v *View) Read(key string, action model.ActionID) ([]byte, bool, error) {
	val, found, err := v.e.plane.Read(v.actor, key, action)
	if err != nil {
		return nil, false, v.e.report(v.actor, err)
	}
	v.e.emit(trace.Entry{
		Kind:     trace.KindDataplaneRead,
		Who:      string(v.actor),
		ActionID: action.String(),
		Key:      key,
		Contents: string(val),
		Found:    trace.Bool(found),
	})
	return val, found, nil
}

// Write stores value under key in the dataplane under the authority of action.
func (v *View) Write(key string, value []byte, action model.ActionID) error {
	created := !v.e.plane.Has(key)
	if err := v.e.plane.Write(v.actor, key, value, action); err != nil {
		return v.e.report(v.actor, err)
	}
	v.e.emit(trace.Entry{
		Kind:     trace.KindDataplaneWrite,
		Who:      string(v.actor),
		ActionID: action.String(),
		Key:      key,
		Contents: string(value),
		Created:  created,
	})
	return nil
}

// AdvanceTime increments the logical clock. Synchronizer only.
func (v *View) AdvanceTime() (uint64, error) {
	t, err := v.e.store.AdvanceTime(v.actor)
	if err != nil {
		return t, v.e.report(v.actor, err)
	}
	v.e.emit(trace.Entry{Kind: trace.KindTimeAdvanced, Who: string(v.actor), NewTime: t})
	return t, nil
}

// Amend publishes payload as a public statement in the active agreement's
// language and makes it the sole text of agreement version. Synchronizer only.
// Actions already published keep being judged by the agreement they cite.
func (v *View) Amend(version, payload string) (model.Agreement, error) {
	return v.AmendFrom(v.e.store.Active().Version, version, payload)
}

// AmendFrom is Amend with an explicit expectation of the active version.
// If another amendment landed first the run aborts with an invariant violation.
func (v *View) AmendFrom(expected, version, payload string) (model.Agreement, error) {
	if !v.Synchronizer() {
		return model.Agreement{}, v.e.report(v.actor, fmt.Errorf("engine: amend by %s: %w", v.actor, model.ErrNotSynchronizer))
	}
	active := v.e.store.Active()
	st, err := v.Publish(model.Everyone(), active.Language, payload)
	if err != nil {
		return model.Agreement{}, err
	}
	ag, err := v.e.store.AmendAgreement(v.actor, expected, model.Agreement{
		Name:       active.Name,
		Version:    version,
		Language:   active.Language,
		Statements: []model.StatementID{st.ID},
	})
	if err != nil {
		return model.Agreement{}, v.e.report(v.actor, err)
	}
	stmts := make([]string, len(ag.Statements))
	for i, id := range ag.Statements {
		stmts[i] = id.String()
	}
	v.e.emit(trace.Entry{
		Kind:       trace.KindAgreementAmended,
		Who:        string(v.actor),
		Agreement:  ag.Name,
		Version:    ag.Version,
		Statements: stmts,
	})
	v.e.logger.Info().Str("version", ag.Version).Msg("agreement amended")
	return ag, nil
}
