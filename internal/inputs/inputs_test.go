package inputs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-qa/tessera/internal/environ"
	"github.com/tessera-qa/tessera/internal/model"
)

func manifest() *model.CaseManifest {
	return &model.CaseManifest{
		ID:      "demo",
		Version: "1.0.0",
		Parameters: []model.ParameterDef{
			{Name: "name", Type: "string", Required: true, Default: "world"},
			{Name: "retries", Type: "int", Default: float64(1)},
			{Name: "mode", Type: "enum", EnumValues: []string{"fast", "slow"}},
			{Name: "token", Type: "string"},
			{Name: "tags", Type: "string[]"},
		},
	}
}

func env(t *testing.T, pairs map[string]string) *environ.Environment {
	t.Helper()
	e, err := environ.Merge(environ.New(), pairs)
	require.NoError(t, err)
	return e
}

func TestResolveDefaults(t *testing.T) {
	res, err := Resolve(manifest(), nil, nil, environ.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "world", res.Effective["name"])
	assert.Equal(t, int32(1), res.Effective["retries"])
	_, hasMode := res.Effective["mode"]
	assert.False(t, hasMode, "parameters without defaults or inputs stay absent")
}

func TestResolveLayering(t *testing.T) {
	node := map[string]any{"name": "from-node", "retries": float64(2)}
	override := map[string]any{"retries": float64(3)}
	res, err := Resolve(manifest(), node, override, environ.New(), "n1")
	require.NoError(t, err)
	assert.Equal(t, "from-node", res.Effective["name"])
	assert.Equal(t, int32(3), res.Effective["retries"], "override wins over node input")
}

func TestResolveUnknownInput(t *testing.T) {
	_, err := Resolve(manifest(), map[string]any{"bogus": 1}, nil, environ.New(), "")
	assert.Equal(t, model.ErrInputsUnknown, model.KindOf(err))
}

func TestResolveEnvRefSecret(t *testing.T) {
	node := map[string]any{
		"token": map[string]any{"$env": "API_TOKEN", "secret": true, "required": true},
	}
	res, err := Resolve(manifest(), node, nil, env(t, map[string]string{"API_TOKEN": "s3cr3t"}), "")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", res.Effective["token"])
	assert.Equal(t, RedactedPlaceholder, res.Redacted["token"])
	assert.True(t, res.Secrets["token"])
	assert.Contains(t, res.SecretStrings(), "s3cr3t")
	// Non-secret values pass through the redacted view untouched.
	assert.Equal(t, "world", res.Redacted["name"])
}

func TestResolveEnvRefRequiredMissing(t *testing.T) {
	node := map[string]any{
		"token": map[string]any{"$env": "API_TOKEN", "required": true},
	}
	_, err := Resolve(manifest(), node, nil, environ.New(), "n2")
	require.Error(t, err)
	assert.Equal(t, model.ErrEnvRefResolveFailed, model.KindOf(err))
}

func TestResolveOptionalEnvRefNil(t *testing.T) {
	node := map[string]any{
		"token": map[string]any{"$env": "ABSENT"},
	}
	res, err := Resolve(manifest(), node, nil, environ.New(), "")
	require.NoError(t, err)
	assert.Nil(t, res.Effective["token"])
}

func TestResolveRequiredMissing(t *testing.T) {
	m := manifest()
	m.Parameters[0].Default = nil // name: required, no default, no input
	_, err := Resolve(m, nil, nil, environ.New(), "")
	assert.Equal(t, model.ErrInputsRequiredMissing, model.KindOf(err))
}

func TestResolveRequiredNilFromEnvRef(t *testing.T) {
	m := manifest()
	m.Parameters[0].Default = nil
	node := map[string]any{"name": map[string]any{"$env": "ABSENT"}}
	_, err := Resolve(m, node, nil, environ.New(), "")
	assert.Equal(t, model.ErrInputsRequiredMissing, model.KindOf(err))
}

func TestResolveEnum(t *testing.T) {
	res, err := Resolve(manifest(), map[string]any{"mode": "fast"}, nil, environ.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Effective["mode"])

	_, err = Resolve(manifest(), map[string]any{"mode": "warp"}, nil, environ.New(), "")
	assert.Equal(t, model.ErrInputsEnumInvalid, model.KindOf(err))
}

func TestResolveTypeInvalid(t *testing.T) {
	_, err := Resolve(manifest(), map[string]any{"retries": "many"}, nil, environ.New(), "")
	assert.Equal(t, model.ErrInputsTypeInvalid, model.KindOf(err))
}

func TestResolveTemplatesKeepRawValues(t *testing.T) {
	ref := map[string]any{"$env": "API_TOKEN", "secret": true}
	node := map[string]any{"token": ref, "name": "direct"}
	res, err := Resolve(manifest(), node, nil, env(t, map[string]string{"API_TOKEN": "x"}), "")
	require.NoError(t, err)
	assert.Equal(t, ref, res.Templates["token"], "templates keep the raw EnvRef object")
	assert.Equal(t, "direct", res.Templates["name"])
	// Defaults that were not overridden also appear in templates.
	assert.Equal(t, float64(1), res.Templates["retries"])
}

func TestSecretStringsIncludesArrayElements(t *testing.T) {
	m := manifest()
	node := map[string]any{
		"tags": map[string]any{"$env": "TAGS", "secret": true},
	}
	res, err := Resolve(m, node, nil, env(t, map[string]string{"TAGS": `["alpha","beta"]`}), "")
	require.NoError(t, err)
	secrets := res.SecretStrings()
	assert.Contains(t, secrets, "alpha")
	assert.Contains(t, secrets, "beta")
}
