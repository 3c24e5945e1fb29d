package scenario

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/justact/internal/actor"
	"github.com/ppiankov/justact/internal/audit"
	"github.com/ppiankov/justact/internal/dataplane"
	"github.com/ppiankov/justact/internal/engine"
	"github.com/ppiankov/justact/internal/model"
	"github.com/ppiankov/justact/internal/ontology"
	"github.com/ppiankov/justact/internal/policy"
	"github.com/ppiankov/justact/internal/policy/builtin"
	"github.com/ppiankov/justact/internal/trace"
)

// DefaultMaxRounds bounds scenarios that set no bound of their own.
const DefaultMaxRounds = 1000

// Options wires a scenario run into its surroundings. The zero value runs
// with the built-in backends, no trace and no logging. MaxRounds overrides
// the scenario's bound; DefaultRounds applies only when the scenario sets
// none, and zero there selects DefaultMaxRounds.
type Options struct {
	Registry      *policy.Registry
	Backends      builtin.Options
	Emitter       trace.Emitter
	Logger        zerolog.Logger
	MaxRounds     uint64
	DefaultRounds uint64
	Requirements  []audit.Requirement
	RunID         string
	ConfigHash    string
}

// Build assembles a ready-to-run engine for s. Machines are returned in
// registration order so their final states can be inspected.
func Build(s *Scenario, opts Options) (*engine.Engine, []*actor.Machine, error) {
	reg := opts.Registry
	if reg == nil {
		var err error
		if reg, err = builtin.Registry(opts.Backends); err != nil {
			return nil, nil, err
		}
	}

	store := ontology.NewStore(model.ActorID(s.Synchronizer))
	name := s.Agreement.Name
	if name == "" {
		name = s.Name
	}
	if _, _, err := store.Install(name, s.Agreement.Version, s.Agreement.Language, s.Agreement.Policy); err != nil {
		return nil, nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	reqs := audit.DefaultRequirements()
	switch {
	case len(s.Requirements) > 0:
		reqs = s.Requirements
	case len(opts.Requirements) > 0:
		reqs = opts.Requirements
	}
	auditor := audit.New(reg, audit.WithRequirements(reqs), audit.WithLogger(opts.Logger))

	plane := dataplane.New(store)
	for _, k := range slices.Sorted(maps.Keys(s.Dataplane)) {
		plane.Seed(k, []byte(s.Dataplane[k]))
	}

	maxRounds := s.MaxRounds
	if opts.MaxRounds > 0 {
		maxRounds = opts.MaxRounds
	}
	if maxRounds == 0 {
		maxRounds = opts.DefaultRounds
	}
	if maxRounds == 0 {
		maxRounds = DefaultMaxRounds
	}
	engOpts := []engine.Option{
		engine.WithLogger(opts.Logger),
		engine.WithMaxRounds(maxRounds),
		engine.WithScenario(s.Name),
		engine.WithConfigHash(opts.ConfigHash),
	}
	if opts.RunID != "" {
		engOpts = append(engOpts, engine.WithRunID(opts.RunID))
	}
	eng := engine.New(store, auditor, plane, opts.Emitter, engOpts...)

	machines := make([]*actor.Machine, 0, len(s.Actors))
	for _, spec := range s.Actors {
		m, err := buildMachine(spec, s.Agreement.Language, opts.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		if err := eng.Register(m); err != nil {
			return nil, nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		machines = append(machines, m)
	}
	return eng, machines, nil
}

func buildMachine(spec ActorSpec, language string, logger zerolog.Logger) (*actor.Machine, error) {
	table := make([]actor.Transition, 0, len(spec.Transitions))
	for i, ts := range spec.Transitions {
		when, err := actor.ParseTrigger(ts.When)
		if err != nil {
			return nil, fmt.Errorf("actor %s transition %d: %w", spec.ID, i, err)
		}
		tr := actor.Transition{From: ts.From, When: when, To: ts.To}
		for _, ss := range ts.Do {
			tr.Do = append(tr.Do, toStep(ss, language))
		}
		table = append(table, tr)
	}
	return actor.New(model.ActorID(spec.ID), spec.Initial, table, actor.WithLogger(logger))
}

func toStep(ss StepSpec, language string) actor.Step {
	switch {
	case ss.State != nil:
		lang := ss.State.Language
		if lang == "" {
			lang = language
		}
		return actor.Step{Kind: actor.StepState, To: ss.State.To, Language: lang, Payload: ss.State.Payload}
	case len(ss.Enact) > 0:
		return actor.Step{Kind: actor.StepEnact, Justification: ss.Enact}
	case ss.AdvanceTime:
		return actor.Step{Kind: actor.StepAdvanceTime}
	case ss.Amend != nil:
		return actor.Step{Kind: actor.StepAmend, Version: ss.Amend.Version, Payload: ss.Amend.Payload}
	case ss.Read != nil:
		return actor.Step{Kind: actor.StepRead, Key: ss.Read.Key, Action: ss.Read.Action}
	case ss.Write != nil:
		return actor.Step{Kind: actor.StepWrite, Key: ss.Write.Key, Value: ss.Write.Value, Action: ss.Write.Action}
	case ss.Note != "":
		return actor.Step{Kind: actor.StepNote, Note: ss.Note}
	}
	return actor.Step{}
}

// Run executes s and checks every expectation. The returned error covers
// setup failures only; an aborted run is reported through the result.
func Run(ctx context.Context, s *Scenario, opts Options) (*RunResult, error) {
	eng, machines, err := Build(s, opts)
	if err != nil {
		return nil, err
	}
	res, runErr := eng.Run(ctx)

	result := &RunResult{
		Name:       s.Name,
		RunID:      res.RunID,
		Rounds:     res.Rounds,
		Terminated: res.Terminated,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	c := checker{result: result}

	c.check("aborts", strconv.FormatBool(s.Expect.Aborts), strconv.FormatBool(runErr != nil))
	if s.Expect.Terminates != nil {
		c.check("terminates", strconv.FormatBool(*s.Expect.Terminates), strconv.FormatBool(res.Terminated))
	}
	if s.Expect.RoundsAtLeast > 0 {
		c.checkThat("rounds", fmt.Sprintf(">= %d", s.Expect.RoundsAtLeast),
			strconv.FormatUint(res.Rounds, 10), res.Rounds >= s.Expect.RoundsAtLeast)
	}

	verdicts := make(map[string]model.Verdict, len(res.Verdicts))
	for _, v := range res.Verdicts {
		verdicts[v.Action.String()] = v
	}
	for _, id := range slices.Sorted(maps.Keys(s.Expect.Verdicts)) {
		actual := "unaudited"
		if v, ok := verdicts[id]; ok {
			actual = "invalid"
			if v.Valid {
				actual = "valid"
			}
		}
		c.check("verdict "+id, strings.ToLower(s.Expect.Verdicts[id]), actual)
	}

	snapshot := eng.Plane().Snapshot()
	for _, key := range slices.Sorted(maps.Keys(s.Expect.Dataplane)) {
		actual, ok := snapshot[key]
		if !ok {
			actual = "<unset>"
		}
		c.check("dataplane "+key, s.Expect.Dataplane[key], actual)
	}

	states := make(map[string]string, len(machines))
	for _, m := range machines {
		states[string(m.ID())] = m.State()
	}
	for _, id := range slices.Sorted(maps.Keys(s.Expect.States)) {
		actual, ok := states[id]
		if !ok {
			actual = "<no such actor>"
		}
		c.check("state "+id, s.Expect.States[id], actual)
	}

	return result, nil
}

// LoadAndRun loads a scenario file and runs it.
func LoadAndRun(ctx context.Context, path string, opts Options) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	result, err := Run(ctx, s, opts)
	if err != nil {
		return nil, err
	}
	result.File = path
	return result, nil
}

type checker struct {
	result *RunResult
}

func (c checker) check(what, expected, actual string) {
	c.checkThat(what, expected, actual, expected == actual)
}

func (c checker) checkThat(what, expected, actual string, ok bool) {
	r := c.result
	r.Total++
	if ok {
		r.Passed++
	} else {
		r.Failed++
	}
	r.Cases = append(r.Cases, CaseResult{
		Index:    r.Total,
		Passed:   ok,
		Check:    what,
		Expected: expected,
		Actual:   actual,
	})
}
