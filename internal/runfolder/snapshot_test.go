package runfolder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-qa/tessera/internal/environ"
	"github.com/tessera-qa/tessera/internal/inputs"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/redact"
)

func snapshotFixture(t *testing.T) CaseSnapshot {
	t.Helper()
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "test.manifest.json")
	source := `{"id":"demo","version":"1.0.0","parameters":[{"name":"token","type":"string"}]}`
	require.NoError(t, os.WriteFile(manifestPath, []byte(source), 0o644))

	manifest := &model.CaseManifest{
		ID:      "demo",
		Version: "1.0.0",
		Parameters: []model.ParameterDef{
			{Name: "token", Type: "string"},
		},
		SourcePath: manifestPath,
	}
	env, err := environ.Merge(environ.New(), map[string]string{"API_TOKEN": "s3cr3t"})
	require.NoError(t, err)
	resolved, err := inputs.Resolve(manifest, map[string]any{
		"token": map[string]any{"$env": "API_TOKEN", "secret": true},
	}, nil, env, "")
	require.NoError(t, err)

	return CaseSnapshot{
		Manifest:      manifest,
		Environment:   env.Sorted(),
		Resolved:      resolved,
		ResolvedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		EngineVersion: "1.2.3",
	}
}

func TestBuildCaseSnapshotDoc(t *testing.T) {
	snap := snapshotFixture(t)
	redactor := redact.New(snap.Resolved.SecretStrings())

	data, err := BuildCaseSnapshotDoc(snap, redactor)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))

	identity := doc["identity"].(map[string]any)
	assert.Equal(t, "demo", identity["id"])
	assert.Equal(t, "1.0.0", identity["version"])
	assert.Equal(t, "1.2.3", doc["engineVersion"])
	assert.Equal(t, "2026-03-01T12:00:00Z", doc["resolvedAt"])

	effective := doc["effectiveInputs"].(map[string]any)
	assert.Equal(t, "***", effective["token"])

	secretNames := doc["secretInputs"].([]any)
	assert.Equal(t, []any{"token"}, secretNames)

	source := doc["sourceManifest"].(map[string]any)
	assert.Equal(t, "demo", source["id"])

	// The secret literal must not appear anywhere in the document.
	assert.NotContains(t, string(data), "s3cr3t")
}

func TestBuildCaseSnapshotDocDeterministic(t *testing.T) {
	snap := snapshotFixture(t)
	redactor := redact.New(snap.Resolved.SecretStrings())

	first, err := BuildCaseSnapshotDoc(snap, redactor)
	require.NoError(t, err)
	second, err := BuildCaseSnapshotDoc(snap, redactor)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second), "identical snapshots must serialize identically")
}

func TestCollectEnvInfo(t *testing.T) {
	info := CollectEnvInfo("9.9.9", "pwsh 7.4")
	assert.Equal(t, "9.9.9", info.RunnerVersion)
	assert.Equal(t, "pwsh 7.4", info.ScriptHostVersion)
	assert.NotEmpty(t, info.OSVersion)
}
