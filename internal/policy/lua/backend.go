// Package lua evaluates policy written as Lua scripts. Scripts assert facts
// with fact(pred, args...), query them with holds(pred, args...) and
// register derivation rules with rule(function() ... end). Rules are re-run
// until they stop producing new facts.
package lua

import (
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/ppiankov/justact/internal/policy"
)

// Language is the tag statements use to select this backend.
const Language = "lua"

// DefaultFactLimit bounds the number of facts one program may derive.
const DefaultFactLimit = 4096

const prelude = `
local rules = {}
function rule(f)
  if type(f) ~= "function" then error("rule expects a function") end
  rules[#rules + 1] = f
end
function __fixpoint()
  local before = -1
  while before ~= __count() do
    before = __count()
    for _, r in ipairs(rules) do r() end
  end
end
dofile = nil
loadfile = nil
`

// Backend is the Lua policy backend.
type Backend struct {
	factLimit int
}

// New returns a Lua backend. A zero factLimit selects DefaultFactLimit.
func New(factLimit int) *Backend {
	if factLimit <= 0 {
		factLimit = DefaultFactLimit
	}
	return &Backend{factLimit: factLimit}
}

// Language implements policy.Backend.
func (*Backend) Language() string { return Language }

// session is the per-evaluation state shared with the Lua functions.
type session struct {
	limit  int
	author string
	forged bool
	facts  map[string]policy.Atom
}

// Evaluate runs each source as a chunk in a fresh interpreter, then runs the
// registered rules to a fixpoint.
func (b *Backend) Evaluate(p policy.Program) (policy.Facts, error) {
	s := &session{limit: b.factLimit, facts: make(map[string]policy.Atom)}
	state := newState(s)

	if err := lua.DoString(state, prelude); err != nil {
		return policy.Facts{}, policy.Errorf(Language, "", "prelude: %v", err)
	}
	for _, src := range p.Sources {
		s.author = src.Author
		if err := lua.LoadBuffer(state, src.Text, src.Statement, ""); err != nil {
			return policy.Facts{}, policy.Errorf(Language, src.Statement, "load: %v", err)
		}
		if err := state.ProtectedCall(0, 0, 0); err != nil {
			return policy.Facts{}, policy.Errorf(Language, src.Statement, "run: %v", err)
		}
	}
	s.author = ""
	if err := lua.DoString(state, "__fixpoint()"); err != nil {
		return policy.Facts{}, policy.Errorf(Language, "", "rules: %v", err)
	}

	atoms := make([]policy.Atom, 0, len(s.facts)+1)
	for _, a := range s.facts {
		atoms = append(atoms, a)
	}
	if s.forged {
		atoms = append(atoms, policy.NewAtom(policy.ErrorPred))
	}
	return policy.NewFacts(atoms...), nil
}

func newState(s *session) *lua.State {
	state := lua.NewState()
	for _, lib := range []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "table", Function: lua.TableOpen},
	} {
		lua.Require(state, lib.Name, lib.Function, true)
		state.Pop(1)
	}

	state.Register("fact", func(l *lua.State) int {
		a := atomArgs(l)
		if s.author != "" && isControl(a.Pred) && (a.Arity() == 0 || a.Args[0] != s.author) {
			s.forged = true
		}
		key := a.String()
		if _, ok := s.facts[key]; !ok {
			if len(s.facts) >= s.limit {
				lua.Errorf(l, "fact limit %d exceeded", s.limit)
				return 0
			}
			s.facts[key] = a
		}
		return 0
	})
	state.Register("holds", func(l *lua.State) int {
		_, ok := s.facts[atomArgs(l).String()]
		l.PushBoolean(ok)
		return 1
	})
	state.Register("__count", func(l *lua.State) int {
		l.PushInteger(len(s.facts))
		return 1
	})
	return state
}

func atomArgs(l *lua.State) policy.Atom {
	pred := lua.CheckString(l, 1)
	var args []string
	for i := 2; i <= l.Top(); i++ {
		args = append(args, lua.CheckString(l, i))
	}
	return policy.NewAtom(pred, args...)
}

func isControl(pred string) bool {
	return strings.HasPrefix(pred, "ctl_") || strings.HasPrefix(pred, "ctl-")
}
