// Package sim re-audits the actions of a recorded run under a different
// agreement and reports which verdicts would change.
package sim

import (
	"fmt"
	"os"

	"github.com/ppiankov/justact/internal/audit"
	"github.com/ppiankov/justact/internal/model"
	"github.com/ppiankov/justact/internal/policy"
	"github.com/ppiankov/justact/internal/trace"
)

// Author is the pseudo-actor credited with the candidate agreement text.
const Author model.ActorID = "simulation"

// Options selects how the candidate agreement is read and judged.
type Options struct {
	// Language of the candidate agreement. Empty means the language of the
	// first statement each action cites.
	Language     string
	Requirements []audit.Requirement
}

// Simulate re-audits every judged action in the trace at tracePath against
// the agreement text in agreementPath.
func Simulate(tracePath, agreementPath string, reg *policy.Registry, opts Options) (*SimResult, error) {
	text, err := os.ReadFile(agreementPath)
	if err != nil {
		return nil, fmt.Errorf("read agreement: %w", err)
	}
	entries, err := trace.ReadAll(tracePath)
	if err != nil {
		return nil, err
	}
	result, err := SimulateEntries(entries, string(text), reg, opts)
	if err != nil {
		return nil, err
	}
	result.AgreementPath = agreementPath
	return result, nil
}

// SimulateEntries is Simulate over entries already in memory. Runs are
// replayed in order of first appearance.
func SimulateEntries(entries []trace.Entry, agreementText string, reg *policy.Registry, opts Options) (*SimResult, error) {
	reqs := opts.Requirements
	if len(reqs) == 0 {
		reqs = audit.DefaultRequirements()
	}
	auditor := audit.New(reg, audit.WithRequirements(reqs))
	result := &SimResult{}

	for _, r := range groupRuns(entries) {
		statements := make(map[string]model.Statement)
		actions := make(map[string][]string)
		for _, e := range r.entries {
			switch e.Kind {
			case trace.KindStatementPublished:
				st, err := statementOf(e)
				if err != nil {
					return nil, err
				}
				statements[e.ID] = st
			case trace.KindActionPublished:
				actions[e.ID] = e.Justification
			case trace.KindAuditVerdict:
				result.TotalActions++
				diff, err := reaudit(auditor, r.id, e, statements, actions[e.ActionID], agreementText, opts.Language)
				if err != nil {
					return nil, err
				}
				if diff == nil {
					continue
				}
				result.Changes = append(result.Changes, *diff)
				result.ChangedActions++
				if diff.NewValid {
					result.NewlyValid++
				} else {
					result.NewlyInvalid++
				}
			}
		}
	}
	return result, nil
}

func reaudit(auditor *audit.Auditor, runID string, e trace.Entry, statements map[string]model.Statement,
	cited []string, agreementText, language string) (*DiffEntry, error) {
	id, err := model.ParseActionID(e.ActionID)
	if err != nil {
		return nil, fmt.Errorf("sim: run %s: %w", runID, err)
	}
	act := model.Action{ID: id}
	var justification []model.Statement
	for _, ref := range cited {
		st, ok := statements[ref]
		if !ok {
			return nil, fmt.Errorf("sim: run %s: %s cites unrecorded statement %s", runID, e.ActionID, ref)
		}
		act.Justification = append(act.Justification, st.ID)
		justification = append(justification, st)
	}
	lang := language
	if lang == "" && len(justification) > 0 {
		lang = justification[0].Language
	}

	agreement := model.Agreement{Name: "simulation", Version: "candidate", Language: lang}
	text := model.Statement{
		ID:       model.StatementID{Author: Author, Seq: 1},
		Audience: model.Everyone(),
		Language: lang,
		Payload:  agreementText,
	}
	v, err := auditor.Audit(agreement, []model.Statement{text}, justification, act)
	if err != nil {
		return nil, fmt.Errorf("sim: run %s: audit %s: %w", runID, e.ActionID, err)
	}

	oldValid := e.Valid != nil && *e.Valid
	if v.Valid == oldValid {
		return nil, nil
	}
	return &DiffEntry{
		RunID:         runID,
		Round:         e.Round,
		ActionID:      e.ActionID,
		OldAgreement:  e.Version,
		OldValid:      oldValid,
		NewValid:      v.Valid,
		OldViolations: e.ViolatedRules,
		NewViolations: v.Violations,
	}, nil
}

func statementOf(e trace.Entry) (model.Statement, error) {
	id, err := model.ParseStatementID(e.ID)
	if err != nil {
		return model.Statement{}, fmt.Errorf("sim: %w", err)
	}
	audience := model.Everyone()
	if len(e.To) > 0 {
		audience = model.ParseAudience(e.To)
	}
	return model.Statement{ID: id, Audience: audience, Language: e.Language, Payload: e.Payload, Time: e.Time}, nil
}

type run struct {
	id      string
	entries []trace.Entry
}

// groupRuns splits entries by run id, keeping the order of first appearance.
func groupRuns(entries []trace.Entry) []run {
	var runs []run
	index := make(map[string]int)
	for _, e := range entries {
		i, ok := index[e.RunID]
		if !ok {
			i = len(runs)
			index[e.RunID] = i
			runs = append(runs, run{id: e.RunID})
		}
		runs[i].entries = append(runs[i].entries, e)
	}
	return runs
}
