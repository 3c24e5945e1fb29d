package actor

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/ppiankov/justact/internal/audit"
	"github.com/ppiankov/justact/internal/dataplane"
	"github.com/ppiankov/justact/internal/engine"
	"github.com/ppiankov/justact/internal/model"
	"github.com/ppiankov/justact/internal/ontology"
	"github.com/ppiankov/justact/internal/policy/builtin"
	"github.com/ppiankov/justact/internal/trace"
)

func mustTrigger(t *testing.T, s string) Trigger {
	t.Helper()
	tr, err := ParseTrigger(s)
	if err != nil {
		t.Fatalf("parse trigger %q: %v", s, err)
	}
	return tr
}

func runMachines(t *testing.T, maxRounds uint64, machines ...*Machine) (engine.Result, *trace.Recorder) {
	t.Helper()
	reg, err := builtin.Registry(builtin.Options{})
	if err != nil {
		t.Fatal(err)
	}
	store := ontology.NewStore("sync")
	if _, _, err := store.Install("p", "1.0.0", "datalog", "ready(X) :- approved(X)."); err != nil {
		t.Fatal(err)
	}
	rec := trace.NewRecorder()
	eng := engine.New(store, audit.New(reg), dataplane.New(store), rec, engine.WithMaxRounds(maxRounds))
	for _, m := range machines {
		if err := eng.Register(m); err != nil {
			t.Fatal(err)
		}
	}
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res, rec
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in   string
		want Trigger
	}{
		{"", Trigger{Kind: Always}},
		{"always", Trigger{Kind: Always}},
		{"rejected", Trigger{Kind: Rejected}},
		{"visible bob:2", Trigger{Kind: Visible, Statement: model.StatementID{Author: "bob", Seq: 2}}},
		{"enacted amy#1", Trigger{Kind: Enacted, Action: model.ActionID{Actor: "amy", Seq: 1}}},
		{"verdict amy#1 valid", Trigger{Kind: VerdictT, Action: model.ActionID{Actor: "amy", Seq: 1}, Valid: true}},
		{"verdict amy#1 invalid", Trigger{Kind: VerdictT, Action: model.ActionID{Actor: "amy", Seq: 1}}},
		{"time >= 3", Trigger{Kind: TimeAt, N: 3}},
		{"round >= 2", Trigger{Kind: RoundAt, N: 2}},
	}
	for _, tt := range tests {
		got, err := ParseTrigger(tt.in)
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("%q: got %+v, want %+v", tt.in, got, tt.want)
		}
		if tt.in != "" {
			if again, _ := ParseTrigger(got.String()); again != got {
				t.Fatalf("%q does not round-trip through %q", tt.in, got.String())
			}
		}
	}
}

func TestParseTriggerErrors(t *testing.T) {
	for _, in := range []string{
		"sometimes",
		"always now",
		"visible",
		"visible bob",
		"enacted amy:1",
		"verdict amy#1 maybe",
		"time > 3",
		"round >= x",
	} {
		if _, err := ParseTrigger(in); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New("", "idle", nil); err == nil {
		t.Fatal("expected error for empty id")
	}
	if _, err := New("amy", "", nil); err == nil {
		t.Fatal("expected error for empty initial state")
	}
	if _, err := New("amy", "idle", []Transition{{From: "done", To: "idle"}}); err == nil {
		t.Fatal("expected error for transition out of a terminal state")
	}
	bad := []Transition{{From: "idle", Do: []Step{{Kind: StepEnact}}, To: "done"}}
	if _, err := New("amy", "idle", bad); err == nil {
		t.Fatal("expected error for enact without justification")
	}
	unknown := []Transition{{From: "idle", Do: []Step{{Kind: "fly"}}, To: "done"}}
	if _, err := New("amy", "idle", unknown); err == nil {
		t.Fatal("expected error for unknown step")
	}
	malformed := []Transition{{From: "idle", Do: []Step{{Kind: StepEnact, Justification: []string{"bob"}}}, To: "done"}}
	if _, err := New("amy", "idle", malformed); err == nil {
		t.Fatal("expected error for malformed statement id")
	}
	badAction := []Transition{{From: "idle", Do: []Step{{Kind: StepWrite, Key: "k", Action: "amy-1"}}, To: "done"}}
	if _, err := New("amy", "idle", badAction); err == nil {
		t.Fatal("expected error for malformed action id")
	}
}

func TestMachineRequestApproveFlow(t *testing.T) {
	amy, err := New("amy", "start", []Transition{
		{From: "start", When: mustTrigger(t, "always"), To: "asked", Do: []Step{
			{Kind: StepState, Language: "datalog", Payload: "executed(x)."},
		}},
		{From: "asked", When: mustTrigger(t, "visible bob:1"), To: "acting", Do: []Step{
			{Kind: StepEnact, Justification: []string{"amy:1", "bob:1"}},
		}},
		{From: "acting", When: mustTrigger(t, "verdict amy#1 valid"), To: "done"},
		{From: "acting", When: mustTrigger(t, "verdict amy#1 invalid"), To: "dead"},
	})
	if err != nil {
		t.Fatal(err)
	}
	bob, err := New("bob", "idle", []Transition{
		{From: "idle", When: mustTrigger(t, "visible amy:1"), To: "done", Do: []Step{
			{Kind: StepState, To: []string{"amy"}, Language: "datalog", Payload: "approved(x)."},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, _ := runMachines(t, 10, amy, bob)
	if !res.Terminated {
		t.Fatalf("expected termination, live=%v", res.Live)
	}
	if len(res.Verdicts) != 1 || !res.Verdicts[0].Valid {
		t.Fatalf("expected one valid verdict, got %+v", res.Verdicts)
	}
	want := []string{"start", "asked", "acting", "done"}
	if got := amy.History(); !slices.Equal(got, want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	if amy.State() != StateDone || bob.State() != StateDone {
		t.Fatalf("unexpected final states %s %s", amy.State(), bob.State())
	}
}

func TestMachineLastStatementAndDataplane(t *testing.T) {
	amy, err := New("amy", "start", []Transition{
		{From: "start", To: "wait", Do: []Step{
			{Kind: StepState, Language: "datalog", Payload: "writes(amy, k). reads(amy, k)."},
			{Kind: StepEnact, Justification: []string{LastStatement}},
		}},
		{From: "wait", When: mustTrigger(t, "verdict amy#1 valid"), To: "done", Do: []Step{
			{Kind: StepWrite, Key: "k", Value: "v1"},
			{Kind: StepRead, Key: "k", Action: "amy#1"},
			{Kind: StepNote, Note: "wrote k"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, rec := runMachines(t, 5, amy)
	if !res.Terminated {
		t.Fatal("expected termination")
	}
	if got := amy.Reads()["k"]; got != "v1" {
		t.Fatalf("expected to read back v1, got %q", got)
	}
	if n := len(rec.OfKind(trace.KindDataplaneWrite)); n != 1 {
		t.Fatalf("expected one write entry, got %d", n)
	}
}

func TestMachineRejectedTrigger(t *testing.T) {
	// amy is not the synchronizer; the refusal surfaces on her next poll.
	amy, err := New("amy", "start", []Transition{
		{From: "start", When: mustTrigger(t, "rejected"), To: "dead"},
		{From: "start", Do: []Step{{Kind: StepAdvanceTime}}, To: "ticked"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, rec := runMachines(t, 5, amy)
	if len(res.Retired) != 1 || res.Retired[0].Status != model.Dead || res.Retired[0].Round != 2 {
		t.Fatalf("expected amy dead in round 2, got %+v", res.Retired)
	}
	if amy.State() != StateDead {
		t.Fatalf("expected dead, got %s", amy.State())
	}
	if n := len(rec.OfKind(trace.KindPublishRejected)); n != 1 {
		t.Fatalf("expected one rejection, got %d", n)
	}
}

func TestMachineSynchronizerTicksAndAmends(t *testing.T) {
	sync, err := New("sync", "run", []Transition{
		{From: "run", When: mustTrigger(t, "time >= 2"), To: "done", Do: []Step{
			{Kind: StepAmend, Version: "1.1.0", Payload: "ready(X) :- approved(X). ready(X) :- urgent(X)."},
		}},
		{From: "run", When: mustTrigger(t, "round >= 1"), Do: []Step{{Kind: StepAdvanceTime}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, rec := runMachines(t, 10, sync)
	if !res.Terminated || res.Rounds != 3 {
		t.Fatalf("expected termination after 3 rounds, got %+v", res)
	}
	if n := len(rec.OfKind(trace.KindTimeAdvanced)); n != 2 {
		t.Fatalf("expected two ticks, got %d", n)
	}
	amended := rec.OfKind(trace.KindAgreementAmended)
	if len(amended) != 1 || amended[0].Version != "1.1.0" {
		t.Fatalf("unexpected amendments %+v", amended)
	}
}

func TestMachineWaitsWithoutMatchingTransition(t *testing.T) {
	amy, err := New("amy", "idle", []Transition{
		{From: "idle", When: mustTrigger(t, "visible bob:1"), To: "done"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, _ := runMachines(t, 3, amy)
	if res.Terminated || amy.State() != "idle" {
		t.Fatalf("expected amy still idle, got %s", amy.State())
	}
}

func TestMachineUnresolvableCitationHasNoEffect(t *testing.T) {
	amy, err := New("amy", "start", []Transition{
		{From: "start", To: "done", Do: []Step{
			{Kind: StepState, Language: "datalog", Payload: "requested(x)."},
			{Kind: StepEnact, Justification: []string{"bob:9"}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, rec := runMachines(t, 4, amy)
	if res.Terminated || amy.State() != "start" {
		t.Fatalf("expected amy stuck in start, got %s", amy.State())
	}
	if n := len(rec.OfKind(trace.KindStatementPublished)); n != 0 {
		t.Fatalf("expected no statements, got %d", n)
	}
	if n := len(rec.OfKind(trace.KindPublishRejected)); n != 4 {
		t.Fatalf("expected one rejection per round, got %d", n)
	}
}

func TestMachineResumesAtFailedStep(t *testing.T) {
	// The write fails until the action has been audited; the statement and
	// the action must not be repeated when the transition fires again.
	amy, err := New("amy", "start", []Transition{
		{From: "start", To: "done", Do: []Step{
			{Kind: StepState, Language: "datalog", Payload: "writes(amy, k)."},
			{Kind: StepEnact, Justification: []string{LastStatement}},
			{Kind: StepWrite, Key: "k", Value: "v1"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, rec := runMachines(t, 5, amy)
	if !res.Terminated || res.Rounds != 2 {
		t.Fatalf("expected termination in round 2, got %+v", res)
	}
	if n := len(rec.OfKind(trace.KindStatementPublished)); n != 1 {
		t.Fatalf("expected one statement, got %d", n)
	}
	if n := len(rec.OfKind(trace.KindActionPublished)); n != 1 {
		t.Fatalf("expected one action, got %d", n)
	}
	if n := len(rec.OfKind(trace.KindPublishRejected)); n != 1 {
		t.Fatalf("expected one rejection, got %d", n)
	}
	if n := len(rec.OfKind(trace.KindDataplaneWrite)); n != 1 {
		t.Fatalf("expected one write, got %d", n)
	}
}

func TestMachineLastBeforeStatementIsRejected(t *testing.T) {
	amy, err := New("amy", "start", []Transition{
		{From: "start", When: mustTrigger(t, "rejected"), To: "dead"},
		{From: "start", Do: []Step{{Kind: StepEnact, Justification: []string{LastStatement}}}, To: "done"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, rec := runMachines(t, 5, amy)
	if len(res.Retired) != 1 || res.Retired[0].Status != model.Dead || res.Retired[0].Round != 2 {
		t.Fatalf("expected amy dead in round 2, got %+v", res.Retired)
	}
	rejected := rec.OfKind(trace.KindPublishRejected)
	if len(rejected) != 1 || !strings.Contains(rejected[0].Error, LastStatement) {
		t.Fatalf("unexpected rejections %+v", rejected)
	}
}
