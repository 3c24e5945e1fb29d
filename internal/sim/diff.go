package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiffEntry represents one action whose verdict changed.
type DiffEntry struct {
	RunID         string   `json:"run_id"`
	Round         uint64   `json:"round"`
	ActionID      string   `json:"action_id"`
	OldAgreement  string   `json:"old_agreement"`
	OldValid      bool     `json:"old_valid"`
	NewValid      bool     `json:"new_valid"`
	OldViolations []string `json:"old_violations,omitempty"`
	NewViolations []string `json:"new_violations,omitempty"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	AgreementPath  string      `json:"agreement_path"`
	TotalActions   int         `json:"total_actions"`
	ChangedActions int         `json:"changed_actions"`
	NewlyValid     int         `json:"newly_valid"`
	NewlyInvalid   int         `json:"newly_invalid"`
	Changes        []DiffEntry `json:"changes"`
}

func verdictWord(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulating %s against %d recorded verdicts...\n", r.AgreementPath, r.TotalActions)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		fmt.Fprintf(&b, "  CHANGED  r%-3d %-12s %-7s -> %s", d.Round, d.ActionID, verdictWord(d.OldValid), verdictWord(d.NewValid))
		if len(d.NewViolations) > 0 {
			fmt.Fprintf(&b, "  (%s)", strings.Join(d.NewViolations, "; "))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n%d of %d actions changed.", r.ChangedActions, r.TotalActions)
	if r.NewlyValid > 0 || r.NewlyInvalid > 0 {
		fmt.Fprintf(&b, " %d newly valid, %d newly invalid.", r.NewlyValid, r.NewlyInvalid)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
