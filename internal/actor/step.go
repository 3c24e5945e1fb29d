package actor

import (
	"fmt"

	"github.com/ppiankov/justact/internal/model"
)

// StepKind names one effect a transition performs.
type StepKind string

const (
	StepState       StepKind = "state"
	StepEnact       StepKind = "enact"
	StepAdvanceTime StepKind = "advance_time"
	StepAmend       StepKind = "amend"
	StepRead        StepKind = "read"
	StepWrite       StepKind = "write"
	StepNote        StepKind = "note"
)

// References resolved at poll time.
const (
	LastStatement = "$last"
	LastAction    = "$action"
)

// Step is one effect of a transition. Which fields apply depends on Kind.
type Step struct {
	Kind StepKind

	// state, amend
	To       []string
	Language string
	Payload  string
	Version  string

	// enact
	Justification []string

	// read, write
	Key    string
	Value  string
	Action string

	// note
	Note string
}

func (s Step) audience() model.Audience {
	ids := make([]string, len(s.To))
	copy(ids, s.To)
	return model.ParseAudience(ids)
}

func (s Step) validate() error {
	switch s.Kind {
	case StepState:
		if s.Language == "" {
			return fmt.Errorf("state: missing language")
		}
	case StepEnact:
		if len(s.Justification) == 0 {
			return fmt.Errorf("enact: empty justification")
		}
		for _, ref := range s.Justification {
			if ref == LastStatement {
				continue
			}
			if _, err := model.ParseStatementID(ref); err != nil {
				return fmt.Errorf("enact: %w", err)
			}
		}
	case StepAmend:
		if s.Version == "" || s.Payload == "" {
			return fmt.Errorf("amend: version and payload are required")
		}
	case StepRead, StepWrite:
		if s.Key == "" {
			return fmt.Errorf("%s: missing key", s.Kind)
		}
		if s.Action != "" && s.Action != LastAction {
			if _, err := model.ParseActionID(s.Action); err != nil {
				return fmt.Errorf("%s: %w", s.Kind, err)
			}
		}
	case StepAdvanceTime, StepNote:
	default:
		return fmt.Errorf("unknown step %q", s.Kind)
	}
	return nil
}
