package trace

import (
	"slices"
	"strings"
)

// Filter holds selection criteria for replaying a trace.
type Filter struct {
	RunID string // empty = every run in the file
	Actor string // matches entries the actor caused or was judged on
	Kinds []Kind // empty = all kinds
}

// Summary holds event counts for a replayed run.
type Summary struct {
	Total      int    `json:"total"`
	Statements int    `json:"statements"`
	Actions    int    `json:"actions"`
	Valid      int    `json:"valid"`
	Invalid    int    `json:"invalid"`
	Rejected   int    `json:"rejected"`
	Reads      int    `json:"reads"`
	Writes     int    `json:"writes"`
	Amendments int    `json:"amendments"`
	Terminated int    `json:"terminated"`
	Rounds     uint64 `json:"rounds"`
	FinalTime  uint64 `json:"final_time"`
	Outcome    string `json:"outcome,omitempty"`
}

// ReplayResult holds filtered entries and summary for a replayed run.
type ReplayResult struct {
	RunID   string  `json:"run_id"`
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// Replay reads the trace at path and returns entries matching the filter.
func Replay(path string, filter Filter) (*ReplayResult, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	return Select(entries, filter), nil
}

// Select applies filter to entries that are already in memory.
func Select(entries []Entry, filter Filter) *ReplayResult {
	result := &ReplayResult{RunID: filter.RunID}
	for _, e := range entries {
		if filter.RunID != "" && e.RunID != filter.RunID {
			continue
		}
		if result.RunID == "" {
			result.RunID = e.RunID
		}
		// Run-level markers count toward rounds and outcome even when filtered out.
		noteRun(&result.Summary, e)
		if len(filter.Kinds) > 0 && !slices.Contains(filter.Kinds, e.Kind) {
			continue
		}
		if filter.Actor != "" && !concerns(e, filter.Actor) {
			continue
		}
		result.Entries = append(result.Entries, e)
		updateSummary(&result.Summary, e)
	}
	return result
}

// concerns reports whether e was caused by actor or judges one of its actions.
func concerns(e Entry, actor string) bool {
	if e.Who == actor {
		return true
	}
	if e.ActionID != "" {
		if i := strings.LastIndex(e.ActionID, "#"); i > 0 && e.ActionID[:i] == actor {
			return true
		}
	}
	return false
}

func noteRun(s *Summary, e Entry) {
	if e.Round > s.Rounds {
		s.Rounds = e.Round
	}
	if e.Time > s.FinalTime {
		s.FinalTime = e.Time
	}
	switch e.Kind {
	case KindRunFinished:
		s.Outcome = e.Status
	case KindRunAborted:
		s.Outcome = "aborted"
	}
}

func updateSummary(s *Summary, e Entry) {
	s.Total++
	switch e.Kind {
	case KindStatementPublished:
		s.Statements++
	case KindActionPublished:
		s.Actions++
	case KindAuditVerdict:
		if e.Valid != nil && *e.Valid {
			s.Valid++
		} else {
			s.Invalid++
		}
	case KindPublishRejected:
		s.Rejected++
	case KindDataplaneRead:
		s.Reads++
	case KindDataplaneWrite:
		s.Writes++
	case KindAgreementAmended:
		s.Amendments++
	case KindActorTerminated:
		s.Terminated++
	}
}

// ParseKinds splits a comma-separated kind list, ignoring blanks.
func ParseKinds(s string) []Kind {
	var out []Kind
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, Kind(part))
		}
	}
	return out
}
