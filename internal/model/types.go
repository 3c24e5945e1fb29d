package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ActorID names a participant in a run.
type ActorID string

// StatementID identifies a statement by its author and the author's
// publication counter. Sequence numbers start at 1.
type StatementID struct {
	Author ActorID `json:"author" yaml:"author"`
	Seq    uint64  `json:"seq" yaml:"seq"`
}

func (id StatementID) String() string {
	return fmt.Sprintf("%s:%d", id.Author, id.Seq)
}

// IsZero reports whether id was never assigned.
func (id StatementID) IsZero() bool {
	return id.Author == "" && id.Seq == 0
}

// ParseStatementID parses the "author:seq" form produced by String.
func ParseStatementID(s string) (StatementID, error) {
	author, seq, err := splitID(s, ":")
	if err != nil {
		return StatementID{}, fmt.Errorf("parse statement id %q: %w", s, err)
	}
	return StatementID{Author: author, Seq: seq}, nil
}

// ActionID identifies an action by its actor and the actor's action counter.
type ActionID struct {
	Actor ActorID `json:"actor" yaml:"actor"`
	Seq   uint64  `json:"seq" yaml:"seq"`
}

func (id ActionID) String() string {
	return fmt.Sprintf("%s#%d", id.Actor, id.Seq)
}

// ParseActionID parses the "actor#seq" form produced by String.
func ParseActionID(s string) (ActionID, error) {
	actor, seq, err := splitID(s, "#")
	if err != nil {
		return ActionID{}, fmt.Errorf("parse action id %q: %w", s, err)
	}
	return ActionID{Actor: actor, Seq: seq}, nil
}

func splitID(s, sep string) (ActorID, uint64, error) {
	i := strings.LastIndex(s, sep)
	if i <= 0 || i == len(s)-len(sep) {
		return "", 0, fmt.Errorf("expected <name>%s<seq>", sep)
	}
	seq, err := strconv.ParseUint(s[i+len(sep):], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad sequence number: %w", err)
	}
	if seq == 0 {
		return "", 0, fmt.Errorf("sequence numbers start at 1")
	}
	return ActorID(s[:i]), seq, nil
}

// Audience is the set of actors allowed to observe a statement.
type Audience struct {
	All     bool      `json:"all,omitempty"`
	Members []ActorID `json:"members,omitempty"`
}

// Everyone addresses a statement to all actors.
func Everyone() Audience { return Audience{All: true} }

// To addresses a statement to an explicit set of actors.
func To(members ...ActorID) Audience {
	m := slices.Clone(members)
	slices.Sort(m)
	return Audience{Members: slices.Compact(m)}
}

// Includes reports whether id belongs to the audience.
func (a Audience) Includes(id ActorID) bool {
	return a.All || slices.Contains(a.Members, id)
}

// Strings renders the audience for trace output. All is rendered as ["*"].
func (a Audience) Strings() []string {
	if a.All {
		return []string{"*"}
	}
	out := make([]string, len(a.Members))
	for i, m := range a.Members {
		out[i] = string(m)
	}
	return out
}

// ParseAudience is the inverse of Strings. An empty list or "*" means All.
func ParseAudience(items []string) Audience {
	if len(items) == 0 {
		return Everyone()
	}
	members := make([]ActorID, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "*" || strings.EqualFold(it, "all") {
			return Everyone()
		}
		members = append(members, ActorID(it))
	}
	return To(members...)
}

// Statement is an immutable, addressed message carrying policy text.
type Statement struct {
	ID       StatementID `json:"id"`
	Audience Audience    `json:"audience"`
	Language string      `json:"language"`
	Payload  string      `json:"payload"`
	Time     uint64      `json:"time"`
}

// VisibleTo reports whether actor may observe s. Authors always see their own statements.
func (s Statement) VisibleTo(actor ActorID) bool {
	return s.ID.Author == actor || s.Audience.Includes(actor)
}

// Agreement is a named, versioned policy baseline.
type Agreement struct {
	Name       string        `json:"name"`
	Version    string        `json:"version"`
	Language   string        `json:"language"`
	Statements []StatementID `json:"statements"`
	At         uint64        `json:"at"`
}

// Action bundles justification statements behind a proposed effect.
type Action struct {
	ID            ActionID      `json:"id"`
	Justification []StatementID `json:"justification"`
	// Basis is the version of the agreement active when the action was published.
	Basis string `json:"basis"`
	Time  uint64 `json:"time"`
}

// Actor returns the publishing actor.
func (a Action) Actor() ActorID { return a.ID.Actor }

// Access distinguishes dataplane reads from writes.
type Access string

const (
	Reads  Access = "reads"
	Writes Access = "writes"
)

// Effect is one dataplane access an action is justified to perform.
type Effect struct {
	Actor ActorID `json:"actor"`
	Mode  Access  `json:"mode"`
	Key   string  `json:"key"`
}

func (e Effect) String() string {
	return fmt.Sprintf("%s(%s, %s)", e.Mode, e.Actor, e.Key)
}

// Verdict is the permanent outcome of auditing one action.
type Verdict struct {
	Action     ActionID `json:"action"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
	Truths     []string `json:"truths,omitempty"`
	Effects    []Effect `json:"effects,omitempty"`
	Agreement  string   `json:"agreement"`
}

// Permits reports whether the verdict justifies actor performing mode on key.
func (v Verdict) Permits(actor ActorID, mode Access, key string) bool {
	if !v.Valid {
		return false
	}
	return slices.Contains(v.Effects, Effect{Actor: actor, Mode: mode, Key: key})
}

// Status is the outcome of polling an actor once.
type Status int

const (
	More Status = iota
	Done
	Dead
)

func (s Status) String() string {
	switch s {
	case More:
		return "more"
	case Done:
		return "done"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
