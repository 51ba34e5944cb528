package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifestFile(t *testing.T, dir, name string, doc map[string]any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestDiscoverCommandOutput(t *testing.T) {
	base := t.TempDir()
	casesRoot := filepath.Join(base, "cases")
	writeManifestFile(t, filepath.Join(casesRoot, "demo"), "test.manifest.json", map[string]any{
		"id": "demo", "version": "1.0.0",
	})

	rootCmd.SetArgs([]string{
		"discover",
		"--casesRoot", casesRoot,
		"--suitesRoot", filepath.Join(base, "suites"),
		"--plansRoot", filepath.Join(base, "plans"),
		"--runsRoot", filepath.Join(base, "runs"),
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "Test cases (1)")
	assert.Contains(t, out.String(), "demo@1.0.0")
	assert.Contains(t, out.String(), "Suites (0)")
}

func TestDiscoverCommandReportsErrors(t *testing.T) {
	base := t.TempDir()
	casesRoot := filepath.Join(base, "cases")
	dir := filepath.Join(casesRoot, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.manifest.json"), []byte("{nope"), 0o644))

	rootCmd.SetArgs([]string{
		"discover",
		"--casesRoot", casesRoot,
		"--runsRoot", filepath.Join(base, "runs"),
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	assert.Error(t, err, "discovery errors exit non-zero")
	assert.Contains(t, out.String(), "Errors (1)")
}
