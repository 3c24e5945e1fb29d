package scenario

import "github.com/ppiankov/justact/internal/audit"

// AgreementSpec is the agreement installed before round 1.
type AgreementSpec struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Language string `yaml:"language"`
	Policy   string `yaml:"policy"`
}

// StateStep publishes a statement. Language defaults to the agreement's.
type StateStep struct {
	To       []string `yaml:"to,omitempty"`
	Language string   `yaml:"language,omitempty"`
	Payload  string   `yaml:"payload"`
}

// AmendStep replaces the agreement text. Synchronizer only.
type AmendStep struct {
	Version string `yaml:"version"`
	Payload string `yaml:"payload"`
}

// AccessStep reads or writes a dataplane variable. Action defaults to the
// actor's most recent action.
type AccessStep struct {
	Key    string `yaml:"key"`
	Value  string `yaml:"value,omitempty"`
	Action string `yaml:"action,omitempty"`
}

// StepSpec is one step of a transition. Exactly one field is set.
type StepSpec struct {
	State       *StateStep  `yaml:"state,omitempty"`
	Enact       []string    `yaml:"enact,omitempty"`
	AdvanceTime bool        `yaml:"advance_time,omitempty"`
	Amend       *AmendStep  `yaml:"amend,omitempty"`
	Read        *AccessStep `yaml:"read,omitempty"`
	Write       *AccessStep `yaml:"write,omitempty"`
	Note        string      `yaml:"note,omitempty"`
}

// TransitionSpec is one row of an actor's transition table.
type TransitionSpec struct {
	From string     `yaml:"from"`
	When string     `yaml:"when,omitempty"`
	Do   []StepSpec `yaml:"do,omitempty"`
	To   string     `yaml:"to,omitempty"`
}

// ActorSpec declares one state-machine actor.
type ActorSpec struct {
	ID          string           `yaml:"id"`
	Initial     string           `yaml:"initial"`
	Transitions []TransitionSpec `yaml:"transitions"`
}

// Expect lists the observable outcomes a scenario asserts.
type Expect struct {
	Terminates    *bool             `yaml:"terminates,omitempty"`
	Aborts        bool              `yaml:"aborts,omitempty"`
	RoundsAtLeast uint64            `yaml:"rounds_at_least,omitempty"`
	Verdicts      map[string]string `yaml:"verdicts,omitempty"`
	Dataplane     map[string]string `yaml:"dataplane,omitempty"`
	States        map[string]string `yaml:"states,omitempty"`
}

// Scenario is a complete, self-contained run description.
type Scenario struct {
	Name         string              `yaml:"name"`
	Description  string              `yaml:"description,omitempty"`
	Synchronizer string              `yaml:"synchronizer"`
	Agreement    AgreementSpec       `yaml:"agreement"`
	Requirements []audit.Requirement `yaml:"requirements,omitempty"`
	Dataplane    map[string]string   `yaml:"dataplane,omitempty"`
	Actors       []ActorSpec         `yaml:"actors"`
	MaxRounds    uint64              `yaml:"max_rounds,omitempty"`
	Expect       Expect              `yaml:"expect"`
}

// CaseResult is the outcome of one expectation.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Check    string `json:"check"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// RunResult is the outcome of running one scenario file.
type RunResult struct {
	File       string       `json:"file"`
	Name       string       `json:"name"`
	RunID      string       `json:"run_id"`
	Rounds     uint64       `json:"rounds"`
	Terminated bool         `json:"terminated"`
	Error      string       `json:"error,omitempty"`
	Total      int          `json:"total"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Cases      []CaseResult `json:"cases"`
}
