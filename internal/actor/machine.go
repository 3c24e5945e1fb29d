// Package actor implements actors as explicit finite-state machines.
//
// A Machine holds its current state and a transition table. Each poll fires
// at most one transition: the first whose From matches the current state and
// whose trigger holds. Reaching state "done" or "dead" retires the actor.
package actor

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/ppiankov/justact/internal/engine"
	"github.com/ppiankov/justact/internal/model"
)

// Terminal states.
const (
	StateDone = "done"
	StateDead = "dead"
)

// Transition moves the machine from From to To, performing Do, once When holds.
type Transition struct {
	From string
	When Trigger
	Do   []Step
	To   string
}

// Machine is an actor driven by a transition table.
type Machine struct {
	id      model.ActorID
	initial string
	state   string
	table   []Transition
	logger  zerolog.Logger

	lastAction model.ActionID
	reads      map[string]string
	history    []string

	// A transition that failed part way resumes at its failed step.
	resumeTr   int
	resumeStep int
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger attaches a logger used for note steps and transitions.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// New builds a machine starting in initial. Every transition must name a
// source state and a step list that validates.
func New(id model.ActorID, initial string, table []Transition, opts ...Option) (*Machine, error) {
	if id == "" {
		return nil, fmt.Errorf("actor: empty id")
	}
	if initial == "" {
		return nil, fmt.Errorf("actor %s: empty initial state", id)
	}
	for i, tr := range table {
		if tr.From == "" {
			return nil, fmt.Errorf("actor %s: transition %d: empty from state", id, i)
		}
		if tr.From == StateDone || tr.From == StateDead {
			return nil, fmt.Errorf("actor %s: transition %d: leaves terminal state %s", id, i, tr.From)
		}
		for j, st := range tr.Do {
			if err := st.validate(); err != nil {
				return nil, fmt.Errorf("actor %s: transition %d step %d: %w", id, i, j, err)
			}
		}
	}
	m := &Machine{
		id:      id,
		initial: initial,
		state:   initial,
		table:   slices.Clone(table),
		logger:  zerolog.Nop(),
		reads:   make(map[string]string),

		resumeTr: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("actor", string(id)).Logger()
	return m, nil
}

// ID implements engine.Actor.
func (m *Machine) ID() model.ActorID { return m.id }

// State returns the current state.
func (m *Machine) State() string { return m.state }

// History lists the states entered so far, starting with the initial state.
func (m *Machine) History() []string {
	return append([]string{m.initial}, m.history...)
}

// Reads returns the dataplane values this actor has read, by key.
func (m *Machine) Reads() map[string]string {
	out := make(map[string]string, len(m.reads))
	for k, v := range m.reads {
		out[k] = v
	}
	return out
}

// Poll implements engine.Actor. References are checked before any step
// runs, so a transition that cannot resolve them has no effect. A step that
// fails once earlier steps took effect leaves the machine in its current
// state; the next firing of that transition resumes at the failed step. In
// both cases the failure is visible to the rejected trigger on the next poll.
func (m *Machine) Poll(v *engine.View) model.Status {
	if status, done := terminal(m.state); done {
		return status
	}
	for i, tr := range m.table {
		if tr.From != m.state || !tr.When.Holds(v) {
			continue
		}
		start := 0
		if m.resumeTr == i {
			start = m.resumeStep
		}
		if err := m.preflight(v, tr.Do[start:]); err != nil {
			m.logger.Debug().Err(err).Str("state", m.state).Str("when", tr.When.String()).Msg("transition rejected")
			break
		}
		if n, err := m.perform(v, tr.Do[start:]); err != nil {
			m.resumeTr, m.resumeStep = i, start+n
			m.logger.Debug().Err(err).Str("state", m.state).Int("step", start+n).Msg("transition failed")
			break
		}
		m.resumeTr, m.resumeStep = -1, 0
		if tr.To != "" && tr.To != m.state {
			m.logger.Debug().Str("from", m.state).Str("to", tr.To).Uint64("round", v.Round()).Msg("transition")
			m.state = tr.To
			m.history = append(m.history, tr.To)
		}
		break
	}
	status, _ := terminal(m.state)
	return status
}

func terminal(state string) (model.Status, bool) {
	switch state {
	case StateDone:
		return model.Done, true
	case StateDead:
		return model.Dead, true
	}
	return model.More, false
}

// perform runs steps in order and returns how many completed.
func (m *Machine) perform(v *engine.View, steps []Step) (int, error) {
	for i, st := range steps {
		if err := m.step(v, st); err != nil {
			return i, err
		}
	}
	return len(steps), nil
}

// preflight resolves every reference in steps before any of them runs,
// tracking the statements and actions earlier steps will produce.
func (m *Machine) preflight(v *engine.View, steps []Step) error {
	last, hasStatement := v.LastStatement()
	hasAction := m.lastAction.Actor != ""
	var cited []model.StatementID
	for _, st := range steps {
		switch st.Kind {
		case StepState, StepAmend:
			hasStatement = true
		case StepEnact:
			for _, ref := range st.Justification {
				if ref == LastStatement {
					if !hasStatement {
						return v.Reject(fmt.Errorf("actor %s: %s before any statement: %w", m.id, LastStatement, model.ErrInvalidReference))
					}
					continue
				}
				id, err := model.ParseStatementID(ref)
				if err != nil {
					return v.Reject(fmt.Errorf("actor %s: %v: %w", m.id, err, model.ErrInvalidReference))
				}
				// Own statements published by this transition are checked on enact.
				if id.Author == m.id && (last.IsZero() || id.Seq > last.Seq) {
					continue
				}
				cited = append(cited, id)
			}
			hasAction = true
		case StepRead, StepWrite:
			if (st.Action == "" || st.Action == LastAction) && !hasAction {
				return v.Reject(fmt.Errorf("actor %s: %s before any action: %w", m.id, LastAction, model.ErrInvalidReference))
			}
		}
	}
	if len(cited) > 0 {
		return v.Check(cited...)
	}
	return nil
}

func (m *Machine) step(v *engine.View, st Step) error {
	switch st.Kind {
	case StepState:
		_, err := v.Publish(st.audience(), st.Language, st.Payload)
		return err
	case StepEnact:
		ids, err := m.resolve(v, st.Justification)
		if err != nil {
			return v.Reject(err)
		}
		act, err := v.Enact(ids...)
		if err != nil {
			return err
		}
		m.lastAction = act.ID
		return nil
	case StepAdvanceTime:
		_, err := v.AdvanceTime()
		return err
	case StepAmend:
		_, err := v.Amend(st.Version, st.Payload)
		return err
	case StepRead:
		id, err := m.actionRef(st.Action)
		if err != nil {
			return v.Reject(err)
		}
		val, found, err := v.Read(st.Key, id)
		if err != nil {
			return err
		}
		if found {
			m.reads[st.Key] = string(val)
		}
		return nil
	case StepWrite:
		id, err := m.actionRef(st.Action)
		if err != nil {
			return v.Reject(err)
		}
		return v.Write(st.Key, []byte(st.Value), id)
	case StepNote:
		m.logger.Info().Uint64("round", v.Round()).Msg(st.Note)
		return nil
	}
	return fmt.Errorf("actor %s: unknown step %q", m.id, st.Kind)
}

// resolve turns justification references into statement ids. "$last" is
// the actor's own most recent statement.
func (m *Machine) resolve(v *engine.View, refs []string) ([]model.StatementID, error) {
	out := make([]model.StatementID, 0, len(refs))
	for _, ref := range refs {
		if ref == LastStatement {
			id, ok := v.LastStatement()
			if !ok {
				return nil, fmt.Errorf("actor %s: %s before any statement: %w", m.id, LastStatement, model.ErrInvalidReference)
			}
			out = append(out, id)
			continue
		}
		id, err := model.ParseStatementID(ref)
		if err != nil {
			return nil, fmt.Errorf("actor %s: %v: %w", m.id, err, model.ErrInvalidReference)
		}
		out = append(out, id)
	}
	return out, nil
}

// actionRef resolves an action reference; empty or "$action" is the actor's
// own most recent action.
func (m *Machine) actionRef(ref string) (model.ActionID, error) {
	if ref == "" || ref == LastAction {
		if m.lastAction.Actor == "" {
			return model.ActionID{}, fmt.Errorf("actor %s: %s before any action: %w", m.id, LastAction, model.ErrInvalidReference)
		}
		return m.lastAction, nil
	}
	id, err := model.ParseActionID(ref)
	if err != nil {
		return model.ActionID{}, fmt.Errorf("actor %s: %v: %w", m.id, err, model.ErrInvalidReference)
	}
	return id, nil
}
