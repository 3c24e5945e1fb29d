package scenario

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/justact/internal/trace"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runFile(t *testing.T, path string) *RunResult {
	t.Helper()
	result, err := LoadAndRun(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("run %s: %v", path, err)
	}
	return result
}

func TestBundledScenariosPass(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no scenarios in testdata")
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			result := runFile(t, path)
			if result.Failed != 0 {
				t.Errorf("%s:\n%s", path, FormatText([]*RunResult{result}))
			}
			if result.File != path {
				t.Errorf("expected file %q, got %q", path, result.File)
			}
		})
	}
}

func TestMissingApprovalScenario(t *testing.T) {
	result := runFile(t, filepath.Join("testdata", "a-missing-approval.yaml"))
	if !result.Terminated {
		t.Error("expected run to terminate")
	}
	if result.Rounds != 1 {
		t.Errorf("expected 1 round, got %d", result.Rounds)
	}
}

func TestDeadPeerHitsRoundBound(t *testing.T) {
	result := runFile(t, filepath.Join("testdata", "d-dead-peer.yaml"))
	if result.Terminated {
		t.Error("expected the round bound to stop the run")
	}
	if result.Rounds != 5 {
		t.Errorf("expected 5 rounds, got %d", result.Rounds)
	}
	if result.Error != "" {
		t.Errorf("a round bound is not an error: %s", result.Error)
	}
}

func TestMaxRoundsOptionOverridesScenario(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "d-dead-peer.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	result, err := Run(context.Background(), s, Options{MaxRounds: 2})
	if err != nil {
		t.Fatal(err)
	}
	if result.Rounds != 2 {
		t.Errorf("expected 2 rounds, got %d", result.Rounds)
	}
	// rounds_at_least: 5 no longer holds.
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
}

func TestFailedExpectationDetected(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "wrong.yaml", `
name: wrong expectation
synchronizer: consortium
agreement:
  version: 1.0.0
  language: datalog
  policy: "ready(X) :- approved(X)."
actors:
  - id: amy
    initial: start
    transitions:
      - from: start
        do:
          - state: {payload: "executed(x)."}
          - enact: [$last]
        to: done
expect:
  verdicts:
    amy#1: valid
    amy#2: invalid
`)
	result := runFile(t, path)
	if result.Passed != 1 {
		t.Errorf("expected 1 passed (aborts), got %d", result.Passed)
	}
	if result.Failed != 2 {
		t.Fatalf("expected 2 failures, got %d", result.Failed)
	}
	var got []string
	for _, c := range result.Cases {
		if !c.Passed {
			got = append(got, c.Check+"="+c.Actual)
		}
	}
	want := "verdict amy#1=invalid verdict amy#2=unaudited"
	if strings.Join(got, " ") != want {
		t.Errorf("expected %q, got %q", want, strings.Join(got, " "))
	}
}

func TestAbortedRunIsReported(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "race.yaml", `
name: wrong language
synchronizer: consortium
agreement:
  version: 1.0.0
  language: datalog
  policy: "ready(X) :- approved(X)."
actors:
  - id: amy
    initial: start
    transitions:
      - from: start
        do:
          - state: {language: cel, payload: "fact executed(x)"}
          - enact: [$last]
        to: done
expect:
  aborts: true
`)
	result := runFile(t, path)
	if result.Error == "" {
		t.Fatal("expected the run to abort")
	}
	if result.Failed != 0 {
		t.Errorf("expected abort to be the expected outcome:\n%s", FormatText([]*RunResult{result}))
	}
}

func TestRunEmitsTrace(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "b-approved.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	rec := trace.NewRecorder()
	result, err := Run(context.Background(), s, Options{Emitter: rec, RunID: "run-b", ConfigHash: "sha256:abc"})
	if err != nil {
		t.Fatal(err)
	}
	if result.RunID != "run-b" {
		t.Errorf("expected run-b, got %s", result.RunID)
	}
	entries := rec.Entries()
	if len(entries) == 0 {
		t.Fatal("no trace entries")
	}
	first := entries[0]
	if first.Kind != trace.KindRunStarted || first.Scenario != "approved" || first.ConfigHash != "sha256:abc" {
		t.Errorf("unexpected first entry: %+v", first)
	}
	if last := entries[len(entries)-1]; last.Kind != trace.KindRunFinished {
		t.Errorf("expected run_finished last, got %s", last.Kind)
	}
	if n := len(rec.OfKind(trace.KindAuditVerdict)); n != 1 {
		t.Errorf("expected 1 verdict entry, got %d", n)
	}
}

func TestScenarioRequirementsOverrideDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "reqs.yaml", `
name: custom requirements
synchronizer: consortium
agreement:
  version: 1.0.0
  language: datalog
  policy: "signed(X) :- approved(X)."
requirements:
  - pred: shipped
    requires: signed
actors:
  - id: amy
    initial: start
    transitions:
      - from: start
        do:
          - state: {payload: "executed(y)."}
          - enact: [$last]
        to: done
  - id: bob
    initial: start
    transitions:
      - from: start
        do:
          - state: {payload: "shipped(x)."}
          - enact: [$last]
        to: done
expect:
  verdicts:
    amy#1: valid
    bob#1: invalid
`)
	result := runFile(t, path)
	if result.Failed != 0 {
		t.Errorf("unexpected failures:\n%s", FormatText([]*RunResult{result}))
	}
}

func TestInvalidTriggerFailsBuild(t *testing.T) {
	s := &Scenario{
		Name:         "bad trigger",
		Synchronizer: "consortium",
		Agreement:    AgreementSpec{Version: "1.0.0", Language: "datalog", Policy: "a."},
		Actors: []ActorSpec{{
			ID:          "amy",
			Initial:     "start",
			Transitions: []TransitionSpec{{From: "start", When: "sometimes"}},
		}},
	}
	if _, err := Run(context.Background(), s, Options{}); err == nil {
		t.Fatal("expected error for unknown trigger")
	}
}

func TestDuplicateActorFailsBuild(t *testing.T) {
	s := &Scenario{
		Name:         "duplicate",
		Synchronizer: "consortium",
		Agreement:    AgreementSpec{Version: "1.0.0", Language: "datalog", Policy: "a."},
		Actors:       []ActorSpec{{ID: "amy", Initial: "done"}, {ID: "amy", Initial: "done"}},
	}
	if _, _, err := Build(s, Options{}); err == nil {
		t.Fatal("expected error for duplicate actor")
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "ok", Rounds: 1, Terminated: true, Total: 2, Passed: 2},
		{
			Name: "broken", Rounds: 3, Total: 2, Passed: 1, Failed: 1,
			Error: "engine: round 3: boom",
			Cases: []CaseResult{
				{Index: 1, Passed: true, Check: "aborts", Expected: "true", Actual: "true"},
				{Index: 2, Passed: false, Check: "verdict amy#1", Expected: "valid", Actual: "invalid"},
			},
		},
	}
	out := FormatText(results)
	for _, want := range []string{
		"Checking 2 scenario files...",
		"  PASS  ok (2/2) 1 rounds, terminated",
		"  FAIL  broken (1/2) 3 rounds, aborted",
		"case 2: verdict amy#1",
		"expected valid, got invalid",
		"error: engine: round 3: boom",
		"3 of 4 cases passed. 1 of 2 scenarios failed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "case 1:") {
		t.Error("passing cases should not be listed")
	}
}

func TestFormatTextSingular(t *testing.T) {
	out := FormatText([]*RunResult{{Name: "one", Terminated: false, Total: 1, Passed: 1}})
	if !strings.HasPrefix(out, "Checking 1 scenario file...") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "bounded") {
		t.Errorf("expected bounded outcome: %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "x", RunID: "run-1", Total: 1, Passed: 1}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded []RunResult
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0].RunID != "run-1" {
		t.Errorf("unexpected decode: %+v", decoded)
	}
}
