package actor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/justact/internal/engine"
	"github.com/ppiankov/justact/internal/model"
)

// TriggerKind selects what a transition waits for.
type TriggerKind string

const (
	Always   TriggerKind = "always"
	Visible  TriggerKind = "visible"
	Enacted  TriggerKind = "enacted"
	VerdictT TriggerKind = "verdict"
	TimeAt   TriggerKind = "time"
	RoundAt  TriggerKind = "round"
	Rejected TriggerKind = "rejected"
)

// Trigger is the guard of a transition.
type Trigger struct {
	Kind      TriggerKind
	Statement model.StatementID
	Action    model.ActionID
	Valid     bool
	N         uint64
}

// String renders the trigger in the syntax ParseTrigger accepts.
func (t Trigger) String() string {
	switch t.Kind {
	case Visible:
		return "visible " + t.Statement.String()
	case Enacted:
		return "enacted " + t.Action.String()
	case VerdictT:
		if t.Valid {
			return "verdict " + t.Action.String() + " valid"
		}
		return "verdict " + t.Action.String() + " invalid"
	case TimeAt, RoundAt:
		return fmt.Sprintf("%s >= %d", t.Kind, t.N)
	default:
		return string(t.Kind)
	}
}

// ParseTrigger reads one of:
//
//	always
//	rejected
//	visible <statement-id>
//	enacted <action-id>
//	verdict <action-id> valid|invalid
//	time >= <n>
//	round >= <n>
//
// An empty string means always.
func ParseTrigger(s string) (Trigger, error) {
	f := strings.Fields(s)
	if len(f) == 0 {
		return Trigger{Kind: Always}, nil
	}
	bad := func(format string, args ...any) (Trigger, error) {
		return Trigger{}, fmt.Errorf("actor: trigger %q: %s", s, fmt.Sprintf(format, args...))
	}
	switch TriggerKind(f[0]) {
	case Always, Rejected:
		if len(f) != 1 {
			return bad("takes no arguments")
		}
		return Trigger{Kind: TriggerKind(f[0])}, nil
	case Visible:
		if len(f) != 2 {
			return bad("want visible <statement-id>")
		}
		id, err := model.ParseStatementID(f[1])
		if err != nil {
			return bad("%v", err)
		}
		return Trigger{Kind: Visible, Statement: id}, nil
	case Enacted:
		if len(f) != 2 {
			return bad("want enacted <action-id>")
		}
		id, err := model.ParseActionID(f[1])
		if err != nil {
			return bad("%v", err)
		}
		return Trigger{Kind: Enacted, Action: id}, nil
	case VerdictT:
		if len(f) != 3 || (f[2] != "valid" && f[2] != "invalid") {
			return bad("want verdict <action-id> valid|invalid")
		}
		id, err := model.ParseActionID(f[1])
		if err != nil {
			return bad("%v", err)
		}
		return Trigger{Kind: VerdictT, Action: id, Valid: f[2] == "valid"}, nil
	case TimeAt, RoundAt:
		if len(f) != 3 || f[1] != ">=" {
			return bad("want %s >= <n>", f[0])
		}
		n, err := strconv.ParseUint(f[2], 10, 64)
		if err != nil {
			return bad("%v", err)
		}
		return Trigger{Kind: TriggerKind(f[0]), N: n}, nil
	}
	return bad("unknown trigger")
}

// Holds reports whether the trigger fires for the actor behind v. The zero
// Trigger always holds.
func (t Trigger) Holds(v *engine.View) bool {
	switch t.Kind {
	case Always, "":
		return true
	case Visible:
		return v.Sees(t.Statement)
	case Enacted:
		return v.Enacted(t.Action)
	case VerdictT:
		verdict, ok := v.Verdict(t.Action)
		return ok && verdict.Valid == t.Valid
	case TimeAt:
		return v.Time() >= t.N
	case RoundAt:
		return v.Round() >= t.N
	case Rejected:
		return len(v.Errors()) > 0
	}
	return false
}
