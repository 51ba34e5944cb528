package procdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-qa/tessera/internal/environ"
	"github.com/tessera-qa/tessera/internal/inputs"
	"github.com/tessera-qa/tessera/internal/model"
)

func renderFixture(t *testing.T, nodeInputs map[string]any, envPairs map[string]string) (*model.CaseManifest, *inputs.Resolved) {
	t.Helper()
	manifest := &model.CaseManifest{
		ID:      "demo",
		Version: "1.0.0",
		Parameters: []model.ParameterDef{
			{Name: "name", Type: "string"},
			{Name: "retries", Type: "int"},
			{Name: "verbose", Type: "boolean"},
			{Name: "tags", Type: "string[]"},
			{Name: "token", Type: "string"},
		},
	}
	env, err := environ.Merge(environ.New(), envPairs)
	require.NoError(t, err)
	resolved, err := inputs.Resolve(manifest, nodeInputs, nil, env, "")
	require.NoError(t, err)
	return manifest, resolved
}

func TestRenderArgv(t *testing.T) {
	manifest, resolved := renderFixture(t, map[string]any{
		"name":    "world",
		"retries": float64(3),
		"verbose": true,
		"tags":    []any{"a", "b"},
	}, nil)

	argv, secrets := RenderArgv(manifest, resolved)
	assert.Equal(t, []string{
		"-name", "world",
		"-retries", "3",
		"-verbose:true",
		"-tags", "a", "b",
	}, argv, "manifest parameter order, booleans as single tokens, arrays element-wise")
	assert.Empty(t, secrets)
}

func TestRenderArgvOmitsNil(t *testing.T) {
	manifest, resolved := renderFixture(t, map[string]any{"name": "x"}, nil)
	argv, _ := RenderArgv(manifest, resolved)
	assert.Equal(t, []string{"-name", "x"}, argv, "unset parameters are omitted")
}

func TestRenderArgvFalseBoolean(t *testing.T) {
	manifest, resolved := renderFixture(t, map[string]any{"verbose": false}, nil)
	argv, _ := RenderArgv(manifest, resolved)
	assert.Equal(t, []string{"-verbose:false"}, argv, "false still renders so the script observes false")
}

func TestRenderArgvReportsSecretsOnCommandLine(t *testing.T) {
	manifest, resolved := renderFixture(t, map[string]any{
		"token": map[string]any{"$env": "API_TOKEN", "secret": true, "required": true},
	}, map[string]string{"API_TOKEN": "s3cr3t"})

	argv, secrets := RenderArgv(manifest, resolved)
	assert.Equal(t, []string{"-token", "s3cr3t"}, argv, "the subprocess receives the real value")
	assert.Equal(t, []string{"token"}, secrets)
}
