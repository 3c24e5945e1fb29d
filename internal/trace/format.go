package trace

import (
	"encoding/json"
	"fmt"
	"strings"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Run: %s | No entries found.\n", result.RunID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s | %d rounds | final time %d\n",
		result.RunID, result.Summary.Rounds, result.Summary.FinalTime)
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "r%-3d t%-3d %-20s %-10s %s\n",
			e.Round, e.Time, e.Kind, truncate(e.Who, 10), describe(e))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func describe(e Entry) string {
	switch e.Kind {
	case KindStatementPublished:
		to := "*"
		if len(e.To) > 0 {
			to = strings.Join(e.To, ",")
		}
		return fmt.Sprintf("%s -> %s  %s", e.ID, to, truncate(oneLine(e.Payload), 40))
	case KindActionPublished:
		return fmt.Sprintf("%s by [%s] under %s", e.ID, strings.Join(e.Justification, " "), e.Basis)
	case KindAuditVerdict:
		if e.Valid != nil && *e.Valid {
			return fmt.Sprintf("%s VALID %s", e.ActionID, strings.Join(e.Effects, " "))
		}
		return fmt.Sprintf("%s INVALID %s", e.ActionID, strings.Join(e.ViolatedRules, "; "))
	case KindTimeAdvanced:
		return fmt.Sprintf("time -> %d", e.NewTime)
	case KindAgreementAmended:
		return fmt.Sprintf("%s %s [%s]", e.Agreement, e.Version, strings.Join(e.Statements, " "))
	case KindDataplaneRead:
		found := e.Found != nil && *e.Found
		return fmt.Sprintf("%s via %s found=%t", e.Key, e.ActionID, found)
	case KindDataplaneWrite:
		return fmt.Sprintf("%s via %s created=%t", e.Key, e.ActionID, e.Created)
	case KindPublishRejected, KindRunAborted:
		return e.Error
	case KindActorTerminated:
		return e.Status
	case KindRunStarted:
		return fmt.Sprintf("%s %s %s", e.Scenario, e.Agreement, e.Version)
	case KindRunFinished:
		return e.Status
	}
	return ""
}

func formatSummary(s Summary) string {
	parts := []string{
		fmt.Sprintf("%d statements", s.Statements),
		fmt.Sprintf("%d actions", s.Actions),
		fmt.Sprintf("%d valid", s.Valid),
		fmt.Sprintf("%d invalid", s.Invalid),
	}
	if s.Rejected > 0 {
		parts = append(parts, fmt.Sprintf("%d rejected", s.Rejected))
	}
	if s.Amendments > 0 {
		parts = append(parts, fmt.Sprintf("%d amendments", s.Amendments))
	}
	if s.Reads+s.Writes > 0 {
		parts = append(parts, fmt.Sprintf("%d reads, %d writes", s.Reads, s.Writes))
	}
	outcome := s.Outcome
	if outcome == "" {
		outcome = "unfinished"
	}
	return fmt.Sprintf("Summary: %s | Outcome: %s\n", strings.Join(parts, ", "), outcome)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
