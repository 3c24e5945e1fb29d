package ontology

import (
	"errors"
	"slices"
	"testing"

	"github.com/ppiankov/justact/internal/model"
)

func newInstalledStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore("consortium")
	if _, _, err := s.Install("paper", "1.0.0", "datalog", "legal(X) :- requested(X), approved(X)."); err != nil {
		t.Fatalf("install: %v", err)
	}
	return s
}

func publish(t *testing.T, s *Store, origin model.ActorID, aud model.Audience, payload string) model.Statement {
	t.Helper()
	st, err := s.PublishStatement(origin, aud, "datalog", payload)
	if err != nil {
		t.Fatalf("publish %s: %v", origin, err)
	}
	return st
}

func TestInstallPublishesAgreementStatement(t *testing.T) {
	s := newInstalledStore(t)
	ag := s.Active()
	if ag.Version != "1.0.0" || len(ag.Statements) != 1 {
		t.Fatalf("unexpected agreement %+v", ag)
	}
	if ag.Statements[0] != (model.StatementID{Author: "consortium", Seq: 1}) {
		t.Errorf("expected consortium:1, got %s", ag.Statements[0])
	}
	if _, _, err := s.Install("again", "2.0.0", "datalog", ""); !errors.Is(err, model.ErrInvariantViolation) {
		t.Errorf("expected second install to be an invariant violation, got %v", err)
	}
}

func TestInstallRejectsBadVersion(t *testing.T) {
	s := NewStore("consortium")
	if _, _, err := s.Install("paper", "not-a-version", "datalog", ""); err == nil {
		t.Fatal("expected version error")
	}
}

func TestStatementIDsIncreasePerOrigin(t *testing.T) {
	s := newInstalledStore(t)
	a1 := publish(t, s, "amy", model.Everyone(), "requested(x).")
	b1 := publish(t, s, "bob", model.Everyone(), "approved(x).")
	a2 := publish(t, s, "amy", model.Everyone(), "requested(y).")

	if a1.ID.Seq != 1 || a2.ID.Seq != 2 || b1.ID.Seq != 1 {
		t.Errorf("unexpected sequence numbers: %s %s %s", a1.ID, a2.ID, b1.ID)
	}
}

func TestReadVisibleRespectsAudience(t *testing.T) {
	s := newInstalledStore(t)
	publish(t, s, "amy", model.To("bob"), "requested(x).")
	publish(t, s, "bob", model.Everyone(), "approved(x).")

	var danSees []model.StatementID
	for st := range s.ReadVisible("dan") {
		danSees = append(danSees, st.ID)
	}
	want := []model.StatementID{{Author: "consortium", Seq: 1}, {Author: "bob", Seq: 1}}
	if !slices.Equal(danSees, want) {
		t.Errorf("dan sees %v, want %v", danSees, want)
	}

	var bobSees int
	for range s.ReadVisible("bob") {
		bobSees++
	}
	if bobSees != 3 {
		t.Errorf("bob should see 3 statements, saw %d", bobSees)
	}
}

func TestReadVisibleIsRestartable(t *testing.T) {
	s := newInstalledStore(t)
	publish(t, s, "amy", model.Everyone(), "a.")
	view := s.ReadVisible("amy")

	count := func() int {
		n := 0
		for range view {
			n++
		}
		return n
	}
	if first, second := count(), count(); first != second || first != 2 {
		t.Errorf("expected 2 statements twice, got %d and %d", first, second)
	}
}

func TestPublishActionRejectsMissingAndHidden(t *testing.T) {
	s := newInstalledStore(t)
	hidden := publish(t, s, "bob", model.To("dan"), "approved(x).")

	_, err := s.PublishAction("amy", []model.StatementID{{Author: "ghost", Seq: 9}, hidden.ID})
	var refErr *model.ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}
	if len(refErr.Missing) != 1 || len(refErr.Hidden) != 1 {
		t.Errorf("unexpected reference error %+v", refErr)
	}
	if !errors.Is(err, model.ErrInvalidReference) {
		t.Error("expected ErrInvalidReference")
	}
	if len(s.Pending()) != 0 {
		t.Error("rejected action must not be queued")
	}
}

func TestPublishActionRecordsBasisAndQueues(t *testing.T) {
	s := newInstalledStore(t)
	st := publish(t, s, "amy", model.Everyone(), "requested(x).")

	act, err := s.PublishAction("amy", []model.StatementID{st.ID, st.ID})
	if err != nil {
		t.Fatalf("publish action: %v", err)
	}
	if act.ID.String() != "amy#1" || act.Basis != "1.0.0" {
		t.Errorf("unexpected action %+v", act)
	}
	if len(act.Justification) != 1 {
		t.Errorf("expected duplicate citations collapsed, got %v", act.Justification)
	}
	if p := s.Pending(); len(p) != 1 || p[0].ID != act.ID {
		t.Errorf("expected action pending, got %v", p)
	}
}

func TestVerdictsAreWriteOnce(t *testing.T) {
	s := newInstalledStore(t)
	act, err := s.PublishAction("amy", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordVerdict(model.Verdict{Action: act.ID, Valid: true}); err != nil {
		t.Fatalf("first verdict: %v", err)
	}
	if len(s.Pending()) != 0 {
		t.Error("audited action should leave the pending queue")
	}
	err = s.RecordVerdict(model.Verdict{Action: act.ID, Valid: false})
	if !errors.Is(err, model.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	v, _ := s.Verdict(act.ID)
	if !v.Valid {
		t.Error("second write must not replace the first verdict")
	}
}

func TestOnlySynchronizerAdvancesTime(t *testing.T) {
	s := newInstalledStore(t)
	if _, err := s.AdvanceTime("amy"); !errors.Is(err, model.ErrNotSynchronizer) {
		t.Fatalf("expected ErrNotSynchronizer, got %v", err)
	}
	now, err := s.AdvanceTime("consortium")
	if err != nil || now != 1 {
		t.Fatalf("expected time 1, got %d (%v)", now, err)
	}
	st := publish(t, s, "amy", model.Everyone(), "a.")
	if st.Time != 1 {
		t.Errorf("statement should carry time 1, got %d", st.Time)
	}
}

func TestAmendAgreement(t *testing.T) {
	s := newInstalledStore(t)
	text := publish(t, s, "consortium", model.Everyone(), "legal(X) :- requested(X).")
	next := model.Agreement{Version: "1.1.0", Language: "datalog", Statements: []model.StatementID{text.ID}}

	if _, err := s.AmendAgreement("amy", "1.0.0", next); !errors.Is(err, model.ErrNotSynchronizer) {
		t.Fatalf("expected ErrNotSynchronizer, got %v", err)
	}
	ag, err := s.AmendAgreement("consortium", "1.0.0", next)
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if ag.Name != "paper" || s.Active().Version != "1.1.0" {
		t.Errorf("unexpected active agreement %+v", s.Active())
	}
	if old, ok := s.Agreement("1.0.0"); !ok || old.Statements[0].Seq != 1 {
		t.Error("history should keep the superseded agreement")
	}
}

func TestAmendmentRaceIsInvariantViolation(t *testing.T) {
	s := newInstalledStore(t)
	text := publish(t, s, "consortium", model.Everyone(), "x.")
	first := model.Agreement{Version: "1.1.0", Language: "datalog", Statements: []model.StatementID{text.ID}}
	second := model.Agreement{Version: "1.2.0", Language: "datalog", Statements: []model.StatementID{text.ID}}

	if _, err := s.AmendAgreement("consortium", "1.0.0", first); err != nil {
		t.Fatal(err)
	}
	// Second amendment computed against the stale version.
	if _, err := s.AmendAgreement("consortium", "1.0.0", second); !errors.Is(err, model.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestAmendmentMustIncreaseVersion(t *testing.T) {
	s := newInstalledStore(t)
	text := publish(t, s, "consortium", model.Everyone(), "x.")
	down := model.Agreement{Version: "0.9.0", Language: "datalog", Statements: []model.StatementID{text.ID}}
	if _, err := s.AmendAgreement("consortium", "1.0.0", down); !errors.Is(err, model.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestAmendmentRequiresPublicStatements(t *testing.T) {
	s := newInstalledStore(t)
	private := publish(t, s, "consortium", model.To("amy"), "x.")
	next := model.Agreement{Version: "2.0.0", Language: "datalog", Statements: []model.StatementID{private.ID}}
	if _, err := s.AmendAgreement("consortium", "1.0.0", next); !errors.Is(err, model.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
}
