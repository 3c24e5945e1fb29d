// Package engine runs actors in deterministic rounds over a shared ontology.
//
// Each round polls every live actor once in registration order, then audits
// every action published during the round, then retires actors that reported
// Done or Dead. Statements become visible to actors polled later in the same
// round; there is no other synchronisation.
package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/ppiankov/justact/internal/audit"
	"github.com/ppiankov/justact/internal/dataplane"
	"github.com/ppiankov/justact/internal/model"
	"github.com/ppiankov/justact/internal/ontology"
	"github.com/ppiankov/justact/internal/trace"
)

// Actor is one participant. Poll is called once per round until it returns
// Done or Dead.
type Actor interface {
	ID() model.ActorID
	Poll(v *View) model.Status
}

type funcActor struct {
	id   model.ActorID
	poll func(*View) model.Status
}

func (f funcActor) ID() model.ActorID { return f.id }
func (f funcActor) Poll(v *View) model.Status { return f.poll(v) }

// Func adapts a plain function into an Actor.
func Func(id model.ActorID, poll func(*View) model.Status) Actor {
	return funcActor{id: id, poll: poll}
}

// Retirement records when an actor left the run.
type Retirement struct {
	Actor  model.ActorID `json:"actor"`
	Status model.Status  `json:"status"`
	Round  uint64        `json:"round"`
}

// Result summarises a finished run.
type Result struct {
	RunID      string          `json:"run_id"`
	Rounds     uint64          `json:"rounds"`
	Terminated bool            `json:"terminated"`
	Verdicts   []model.Verdict `json:"verdicts"`
	Retired    []Retirement    `json:"retired"`
	Live       []model.ActorID `json:"live,omitempty"`
}

// Engine owns one run. It is single-use.
type Engine struct {
	store   *ontology.Store
	auditor *audit.Auditor
	plane   *dataplane.Plane
	emitter trace.Emitter
	logger  zerolog.Logger

	maxRounds  uint64
	runID      string
	scenario   string
	configHash string

	actors  []Actor
	views   map[model.ActorID]*View
	queued  map[model.ActorID][]error
	seq     uint64
	round   uint64
	fatal   error
	started bool
	result  Result
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMaxRounds bounds the run. Zero means unbounded.
func WithMaxRounds(n uint64) Option {
	return func(e *Engine) { e.maxRounds = n }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// WithScenario names the scenario in run_started.
func WithScenario(name string) Option {
	return func(e *Engine) { e.scenario = name }
}

// WithConfigHash records the configuration digest in run_started.
func WithConfigHash(h string) Option {
	return func(e *Engine) { e.configHash = h }
}

// New returns an engine over store. The agreement must already be installed.
func New(store *ontology.Store, auditor *audit.Auditor, plane *dataplane.Plane, emitter trace.Emitter, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		auditor: auditor,
		plane:   plane,
		emitter: emitter,
		logger:  zerolog.Nop(),
		views:   make(map[model.ActorID]*View),
		queued:  make(map[model.ActorID][]error),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = trace.NewRunID()
	}
	if e.emitter == nil {
		e.emitter = trace.Discard{}
	}
	e.logger = e.logger.With().Str("run", e.runID).Logger()
	return e
}

// Register adds an actor. Registration order is poll order.
func (e *Engine) Register(a Actor) error {
	if e.started {
		return fmt.Errorf("engine: register %s: run already started", a.ID())
	}
	if a.ID() == "" {
		return fmt.Errorf("engine: register: empty actor id")
	}
	if _, dup := e.views[a.ID()]; dup {
		return fmt.Errorf("engine: register %s: duplicate actor id", a.ID())
	}
	e.actors = append(e.actors, a)
	e.views[a.ID()] = &View{e: e, actor: a.ID()}
	return nil
}

// RunID returns the identifier stamped on every trace entry.
func (e *Engine) RunID() string { return e.runID }

// Store returns the ontology the engine runs over.
func (e *Engine) Store() *ontology.Store { return e.store }

// Plane returns the dataplane.
func (e *Engine) Plane() *dataplane.Plane { return e.plane }

// Run executes rounds until every actor has retired, the round bound is
// reached, ctx is cancelled or a fatal error occurs. Hitting the bound is
// not an error: the result reports Terminated=false. The emitter is closed
// before Run returns.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if e.started {
		return Result{}, fmt.Errorf("engine: run %s already started", e.runID)
	}
	e.started = true
	e.result.RunID = e.runID

	active := e.store.Active()
	if active.Version == "" {
		return e.abort(model.Invariantf("run started without an agreement"))
	}
	e.logger.Info().
		Str("scenario", e.scenario).
		Str("agreement", active.Name).
		Str("version", active.Version).
		Int("actors", len(e.actors)).
		Msg("run started")
	e.emit(trace.Entry{
		Kind:       trace.KindRunStarted,
		Scenario:   e.scenario,
		Agreement:  active.Name,
		Version:    active.Version,
		ConfigHash: e.configHash,
	})
	for _, st := range e.store.Published() {
		e.emitStatement(st)
	}
	if e.fatal != nil {
		return e.abort(e.fatal)
	}

	live := slices.Clone(e.actors)
	for len(live) > 0 {
		if e.maxRounds > 0 && e.round >= e.maxRounds {
			break
		}
		e.round++

		statuses := make([]model.Status, len(live))
		for i, a := range live {
			if err := ctx.Err(); err != nil {
				return e.abort(err)
			}
			statuses[i] = e.poll(a)
			if e.fatal != nil {
				return e.abort(e.fatal)
			}
		}

		if err := e.auditPending(); err != nil {
			return e.abort(err)
		}

		kept := live[:0]
		for i, a := range live {
			if statuses[i] == model.More {
				kept = append(kept, a)
				continue
			}
			e.retire(a.ID(), statuses[i])
		}
		live = kept
		if e.fatal != nil {
			return e.abort(e.fatal)
		}
	}

	e.result.Rounds = e.round
	e.result.Terminated = len(live) == 0
	for _, a := range live {
		e.result.Live = append(e.result.Live, a.ID())
	}
	status := "terminated"
	if !e.result.Terminated {
		status = "round_limit"
	}
	e.emit(trace.Entry{Kind: trace.KindRunFinished, Status: status})
	e.logger.Info().
		Uint64("rounds", e.round).
		Bool("terminated", e.result.Terminated).
		Int("verdicts", len(e.result.Verdicts)).
		Msg("run finished")

	if err := e.emitter.Close(); err != nil && e.fatal == nil {
		e.fatal = fmt.Errorf("engine: close trace: %w", err)
	}
	if e.fatal != nil {
		return e.result, e.fatal
	}
	return e.result, nil
}

func (e *Engine) poll(a Actor) model.Status {
	v := e.views[a.ID()]
	v.errs = e.queued[a.ID()]
	delete(e.queued, a.ID())
	status := a.Poll(v)
	e.logger.Trace().Str("actor", string(a.ID())).Stringer("status", status).Uint64("round", e.round).Msg("polled")
	return status
}

// auditPending judges every unaudited action, in publication order, against
// the agreement that was active when it was published.
func (e *Engine) auditPending() error {
	for _, act := range e.store.Pending() {
		ag, ok := e.store.Agreement(act.Basis)
		if !ok {
			return model.Invariantf("action %s cites unknown agreement %s", act.ID, act.Basis)
		}
		agText, err := e.store.Statements(ag.Statements)
		if err != nil {
			return err
		}
		just, err := e.store.Statements(act.Justification)
		if err != nil {
			return err
		}
		v, err := e.auditor.Audit(ag, agText, just, act)
		if err != nil {
			return fmt.Errorf("audit %s: %w", act.ID, err)
		}
		if err := e.store.RecordVerdict(v); err != nil {
			return err
		}
		e.result.Verdicts = append(e.result.Verdicts, v)

		effects := make([]string, len(v.Effects))
		for i, ef := range v.Effects {
			effects[i] = ef.String()
		}
		e.emit(trace.Entry{
			Kind:          trace.KindAuditVerdict,
			Who:           string(act.Actor()),
			ActionID:      act.ID.String(),
			Valid:         trace.Bool(v.Valid),
			ViolatedRules: v.Violations,
			Effects:       effects,
			Version:       v.Agreement,
		})
		e.logger.Debug().Str("action", act.ID.String()).Bool("valid", v.Valid).Msg("verdict recorded")
		if e.fatal != nil {
			return e.fatal
		}
	}
	return nil
}

func (e *Engine) retire(id model.ActorID, status model.Status) {
	e.result.Retired = append(e.result.Retired, Retirement{Actor: id, Status: status, Round: e.round})
	e.emit(trace.Entry{Kind: trace.KindActorTerminated, Who: string(id), Status: status.String()})
	ev := e.logger.Info()
	if status == model.Dead {
		ev = e.logger.Warn()
	}
	ev.Str("actor", string(id)).Stringer("status", status).Uint64("round", e.round).Msg("actor retired")
}

// abort records a fatal error, closes the trace and returns it wrapped.
func (e *Engine) abort(err error) (Result, error) {
	e.result.Rounds = e.round
	wrapped := fmt.Errorf("engine: round %d: %w", e.round, err)
	e.fatal = nil
	e.emit(trace.Entry{Kind: trace.KindRunAborted, Error: err.Error()})
	e.logger.Error().Err(err).Uint64("round", e.round).Msg("run aborted")
	if cerr := e.emitter.Close(); cerr != nil {
		e.logger.Error().Err(cerr).Msg("close trace")
	}
	return e.result, wrapped
}

// emit stamps and sends one entry. A sink failure is fatal to the run.
func (e *Engine) emit(entry trace.Entry) {
	e.seq++
	entry.Seq = e.seq
	entry.RunID = e.runID
	entry.Round = e.round
	entry.Time = e.store.Time()
	if err := e.emitter.Emit(entry); err != nil && e.fatal == nil {
		e.fatal = fmt.Errorf("emit %s: %w", entry.Kind, err)
	}
}

func (e *Engine) emitStatement(st model.Statement) {
	var to []string
	if !st.Audience.All {
		to = st.Audience.Strings()
	}
	e.emit(trace.Entry{
		Kind:     trace.KindStatementPublished,
		Who:      string(st.ID.Author),
		To:       to,
		ID:       st.ID.String(),
		Language: st.Language,
		Payload:  st.Payload,
	})
}

// report routes an error raised on behalf of actor. Recoverable errors are
// queued for the actor's next poll; anything else aborts the run.
func (e *Engine) report(actor model.ActorID, err error) error {
	if !model.Recoverable(err) {
		if e.fatal == nil {
			e.fatal = err
		}
		return err
	}
	e.queued[actor] = append(e.queued[actor], err)
	e.emit(trace.Entry{Kind: trace.KindPublishRejected, Who: string(actor), Error: err.Error()})
	e.logger.Warn().Err(err).Str("actor", string(actor)).Msg("request rejected")
	return err
}
