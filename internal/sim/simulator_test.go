package sim

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/justact/internal/policy"
	"github.com/ppiankov/justact/internal/policy/builtin"
	"github.com/ppiankov/justact/internal/scenario"
	"github.com/ppiankov/justact/internal/trace"
)

const scenarios = "../scenario/testdata"

func registry(t *testing.T) *policy.Registry {
	t.Helper()
	reg, err := builtin.Registry(builtin.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

// record runs a bundled scenario and returns its trace entries.
func record(t *testing.T, name string) []trace.Entry {
	t.Helper()
	s, err := scenario.Load(filepath.Join(scenarios, name))
	if err != nil {
		t.Fatal(err)
	}
	rec := trace.NewRecorder()
	if _, err := scenario.Run(context.Background(), s, scenario.Options{Emitter: rec, RunID: "run-" + s.Name}); err != nil {
		t.Fatal(err)
	}
	return rec.Entries()
}

const approvalRules = `
legal(X) :- requested(X), approved(X).
ready(X) :- legal(X).
`

func TestIdenticalAgreementZeroChanges(t *testing.T) {
	entries := record(t, "b-approved.yaml")
	result, err := SimulateEntries(entries, approvalRules, registry(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalActions != 1 {
		t.Errorf("expected 1 action, got %d", result.TotalActions)
	}
	if result.ChangedActions != 0 {
		t.Errorf("expected 0 changes, got %d: %+v", result.ChangedActions, result.Changes)
	}
}

func TestStricterAgreementNewlyInvalid(t *testing.T) {
	entries := record(t, "b-approved.yaml")
	stricter := "legal(X) :- requested(X), approved(X), audited(X).\nready(X) :- legal(X).\n"
	result, err := SimulateEntries(entries, stricter, registry(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.NewlyInvalid != 1 || result.NewlyValid != 0 {
		t.Fatalf("expected 1 newly invalid, got %+v", result)
	}
	d := result.Changes[0]
	if d.ActionID != "amy#1" || d.OldValid || d.NewValid != false {
		t.Errorf("unexpected diff: %+v", d)
	}
	if d.RunID != "run-approved" || d.OldAgreement != "1.0.0" {
		t.Errorf("diff fields not populated: %+v", d)
	}
	if len(d.NewViolations) != 1 || d.NewViolations[0] != "executed(x) requires ready(x)" {
		t.Errorf("unexpected violations: %v", d.NewViolations)
	}
}

func TestLooserAgreementNewlyValid(t *testing.T) {
	entries := record(t, "a-missing-approval.yaml")
	result, err := SimulateEntries(entries, "ready(X) :- requested(X).", registry(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.NewlyValid != 1 || result.ChangedActions != 1 {
		t.Fatalf("expected 1 newly valid, got %+v", result)
	}
	if !result.Changes[0].NewValid || len(result.Changes[0].OldViolations) == 0 {
		t.Errorf("unexpected diff: %+v", result.Changes[0])
	}
}

func TestMultipleRunsIndependent(t *testing.T) {
	entries := append(record(t, "a-missing-approval.yaml"), record(t, "c-interleaved.yaml")...)
	result, err := SimulateEntries(entries, "ready(X) :- requested(X).", registry(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	// amy#1 in run a and carl#1 in run c become valid; amy#1 in run c stays valid.
	if result.TotalActions != 3 || result.NewlyValid != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Changes[0].RunID != "run-missing-approval" || result.Changes[1].RunID != "run-interleaved" {
		t.Errorf("runs out of order: %+v", result.Changes)
	}
}

func TestSimulateFromFiles(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "run.jsonl")
	log, err := trace.Open(tracePath, trace.WithoutTimestamps())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range record(t, "a-missing-approval.yaml") {
		if err := log.Emit(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	agreementPath := filepath.Join(dir, "looser.dl")
	if err := os.WriteFile(agreementPath, []byte("ready(X) :- requested(X)."), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := Simulate(tracePath, agreementPath, registry(t), Options{Language: "datalog"})
	if err != nil {
		t.Fatal(err)
	}
	if result.AgreementPath != agreementPath || result.ChangedActions != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	out := FormatText(result)
	if !strings.Contains(out, "CHANGED  r1   amy#1") || !strings.Contains(out, "1 newly valid, 0 newly invalid.") {
		t.Errorf("unexpected text:\n%s", out)
	}
	if _, err := FormatJSON(result); err != nil {
		t.Fatal(err)
	}
}

func TestEmptyTrace(t *testing.T) {
	result, err := SimulateEntries(nil, approvalRules, registry(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalActions != 0 {
		t.Errorf("expected 0 actions, got %d", result.TotalActions)
	}
	if !strings.Contains(FormatText(result), "No changes detected.") {
		t.Error("expected no-change message")
	}
}

func TestBrokenAgreementReturnsError(t *testing.T) {
	entries := record(t, "b-approved.yaml")
	if _, err := SimulateEntries(entries, "legal(X :- ", registry(t), Options{}); err == nil {
		t.Fatal("expected backend error for unparsable agreement")
	}
}

func TestMissingAgreementFile(t *testing.T) {
	if _, err := Simulate("unused.jsonl", filepath.Join(t.TempDir(), "none.dl"), registry(t), Options{}); err == nil {
		t.Fatal("expected error for missing agreement file")
	}
}
