package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamType(t *testing.T) {
	tests := []struct {
		input string
		want  ParamType
		ok    bool
	}{
		{"int", ParamType{Base: TypeInt}, true},
		{"double[]", ParamType{Base: TypeDouble, Array: true}, true},
		{"enum", ParamType{Base: TypeEnum}, true},
		{"json[]", ParamType{Base: TypeJSON, Array: true}, true},
		{"decimal", ParamType{}, false},
		{"", ParamType{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseParamType(tt.input)
		assert.Equal(t, tt.ok, ok, "ok for %q", tt.input)
		if ok {
			assert.Equal(t, tt.want, got, "type for %q", tt.input)
		}
	}
}

func validCase() *CaseManifest {
	return &CaseManifest{
		ID:      "demo",
		Version: "1.0.0",
		Parameters: []ParameterDef{
			{Name: "name", Type: "string", Required: true, Default: "world"},
			{Name: "mode", Type: "enum", EnumValues: []string{"fast", "slow"}},
		},
		TimeoutSec: 60,
	}
}

func TestCaseManifestValidate(t *testing.T) {
	require.NoError(t, validCase().Validate())

	dup := validCase()
	dup.Parameters = append(dup.Parameters, ParameterDef{Name: "name", Type: "int"})
	assert.Equal(t, ErrManifestInvalid, KindOf(dup.Validate()))

	badType := validCase()
	badType.Parameters[0].Type = "decimal"
	assert.Equal(t, ErrManifestInvalid, KindOf(badType.Validate()))

	enumless := validCase()
	enumless.Parameters[1].EnumValues = nil
	assert.Equal(t, ErrManifestInvalid, KindOf(enumless.Validate()))

	badDefault := validCase()
	badDefault.Parameters[0].Type = "string[]"
	assert.Equal(t, ErrManifestInvalid, KindOf(badDefault.Validate()))
}

func TestCaseManifestScriptDefault(t *testing.T) {
	m := validCase()
	assert.Equal(t, "run.ps1", m.Script())
	m.ScriptRelPath = "main.ps1"
	assert.Equal(t, "main.ps1", m.Script())
}

func TestSuiteManifestValidate(t *testing.T) {
	suite := &SuiteManifest{
		ID:      "nightly",
		Version: "1.0.0",
		TestCases: []SuiteNode{
			{NodeID: "a", Ref: "cases/a"},
			{NodeID: "b", Ref: "cases/b"},
		},
	}
	require.NoError(t, suite.Validate())

	dup := *suite
	dup.TestCases = []SuiteNode{{NodeID: "a", Ref: "x"}, {NodeID: "a", Ref: "y"}}
	assert.Equal(t, ErrSuiteNodeIDDuplicate, KindOf(dup.Validate()))

	emptyEnvKey := *suite
	emptyEnvKey.Environment = &SuiteEnvironment{Env: map[string]string{" ": "v"}}
	assert.Equal(t, ErrSuiteEnvironmentInvalid, KindOf(emptyEnvKey.Validate()))

	badPolicy := *suite
	badPolicy.Controls = &SuiteControls{TimeoutPolicy: "RetryOnTimeout"}
	assert.Equal(t, ErrManifestInvalid, KindOf(badPolicy.Validate()))
}

func TestSuiteControlsNormalize(t *testing.T) {
	c := SuiteControls{}.Normalize()
	assert.Equal(t, 1, c.Repeat)
	assert.Equal(t, 1, c.MaxParallel)
	assert.Equal(t, TimeoutPolicyAbort, c.TimeoutPolicy)
	assert.False(t, c.ContinueOnFailure)
	assert.Equal(t, 0, c.RetryOnError)
}

func TestPlanManifestValidate(t *testing.T) {
	plan := &PlanManifest{ID: "release", Version: "1.0.0", Suites: []string{"nightly@1.0.0"}}
	require.NoError(t, plan.Validate())

	badRef := &PlanManifest{ID: "release", Version: "1.0.0", Suites: []string{"not an identity"}}
	assert.Equal(t, ErrPlanSuiteRefInvalid, KindOf(badRef.Validate()))
}

func TestAsEnvRef(t *testing.T) {
	ref, ok := AsEnvRef(map[string]any{"$env": "API_TOKEN", "secret": true, "required": true})
	require.True(t, ok)
	assert.Equal(t, "API_TOKEN", ref.Env)
	assert.True(t, ref.Secret)
	assert.True(t, ref.Required)

	_, ok = AsEnvRef(map[string]any{"env": "API_TOKEN"})
	assert.False(t, ok, "object without $env is a literal")

	_, ok = AsEnvRef("plain string")
	assert.False(t, ok)

	withDefault, ok := AsEnvRef(map[string]any{"$env": "PORT", "default": float64(8080)})
	require.True(t, ok)
	assert.Equal(t, float64(8080), withDefault.Default)
}
