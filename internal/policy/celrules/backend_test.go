package celrules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/justact/internal/policy"
)

const agreement = `
# X is legal once requested and approved
legal(x) if "requested(x)" in facts && "approved(x)" in facts
error if "requested(x)" in facts && !("approved(x)" in facts)
`

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(0)
	require.NoError(t, err)
	return b
}

func TestRequestWithoutApprovalDerivesError(t *testing.T) {
	facts, err := newBackend(t).Evaluate(policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "consortium:1", Text: agreement},
		{Statement: "amy:1", Text: "fact requested(x)"},
	}})
	require.NoError(t, err)
	assert.True(t, facts.Has(policy.NewAtom("error")))
	assert.False(t, facts.Has(policy.NewAtom("legal", "x")))
}

func TestApprovalMakesRequestLegal(t *testing.T) {
	facts, err := newBackend(t).Evaluate(policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "consortium:1", Text: agreement},
		{Statement: "amy:1", Text: "fact requested(x)"},
		{Statement: "bob:1", Text: "fact approved(x)"},
	}})
	require.NoError(t, err)
	assert.False(t, facts.Has(policy.NewAtom("error")))
	assert.True(t, facts.Has(policy.NewAtom("legal", "x")))
}

func TestChainedRulesReachFixpoint(t *testing.T) {
	facts, err := newBackend(t).Evaluate(policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "a:1", Text: `
c if "b" in facts
b if "a" in facts
fact a
`},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, facts.Strings())
}

func TestCompileErrorNamesStatement(t *testing.T) {
	_, err := newBackend(t).Evaluate(policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "amy:2", Text: "ready(x) if facts.nope("},
	}})
	require.Error(t, err)
	var be *policy.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "amy:2", be.Statement)
}

func TestNonBooleanConditionIsBackendError(t *testing.T) {
	_, err := newBackend(t).Evaluate(policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "amy:2", Text: "ready(x) if 42"},
	}})
	require.Error(t, err)
	assert.True(t, policy.IsBackendError(err))
}

func TestMalformedLineIsBackendError(t *testing.T) {
	_, err := newBackend(t).Evaluate(policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "amy:2", Text: "just some prose"},
	}})
	require.Error(t, err)
	assert.True(t, policy.IsBackendError(err))
}

func TestConditionsCompileOnce(t *testing.T) {
	b := newBackend(t)
	program := policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "consortium:1", Text: agreement},
		{Statement: "amy:1", Text: "fact requested(x)"},
	}}
	_, err := b.Evaluate(program)
	require.NoError(t, err)
	assert.Equal(t, 2, b.cached())

	program.Sources = append(program.Sources, policy.Source{Statement: "bob:1", Text: "fact approved(x)"})
	facts, err := b.Evaluate(program)
	require.NoError(t, err)
	assert.True(t, facts.Has(policy.NewAtom("legal", "x")))
	assert.Equal(t, 2, b.cached(), "a repeated agreement must reuse its programs")

	_, err = b.Evaluate(policy.Program{Language: Language, Sources: []policy.Source{
		{Statement: "amy:2", Text: "ready(x) if facts.nope("},
	}})
	require.Error(t, err)
	assert.Equal(t, 2, b.cached(), "failed compiles are not cached")
}
