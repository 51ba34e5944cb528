package runfolder

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-qa/tessera/internal/jsonl"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/redact"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var caseIDPattern = regexp.MustCompile(`^R-[0-9a-f]{32}$`)
var groupIDPattern = regexp.MustCompile(`^G-[0-9a-f]{32}$`)

func TestAllocateIDFormat(t *testing.T) {
	runsRoot := t.TempDir()

	f, err := Allocate(runsRoot, CasePrefix, redact.New(nil), discardLogger())
	require.NoError(t, err)
	assert.Regexp(t, caseIDPattern, f.RunID)
	assert.DirExists(t, f.Path)

	g, err := Allocate(runsRoot, GroupPrefix, redact.New(nil), discardLogger())
	require.NoError(t, err)
	assert.Regexp(t, groupIDPattern, g.RunID)
	assert.NotEqual(t, f.RunID, g.RunID)
}

func TestAllocateUniqueAcrossMany(t *testing.T) {
	runsRoot := t.TempDir()
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		f, err := Allocate(runsRoot, CasePrefix, redact.New(nil), discardLogger())
		require.NoError(t, err)
		require.False(t, seen[f.RunID], "duplicate run id %s", f.RunID)
		seen[f.RunID] = true
		require.NoError(t, f.Finalize(map[string]string{"ok": "yes"}))
	}
}

func TestEventsAreAppendedWithULIDs(t *testing.T) {
	f, err := Allocate(t.TempDir(), CasePrefix, redact.New(nil), discardLogger())
	require.NoError(t, err)

	f.Event("Process.Started", LevelInfo, "go", map[string]any{"pid": 42})
	f.Event("Process.Exited", LevelInfo, "done", nil)
	require.NoError(t, f.Finalize(map[string]string{}))

	events, err := jsonl.ReadAll[Event](filepath.Join(f.Path, EventsFile))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Process.Started", events[0].Type)
	assert.Len(t, events[0].EventID, 26, "event ids are ULIDs")
	assert.Less(t, events[0].EventID, events[1].EventID, "event ids are monotonic")
}

func TestEventRedaction(t *testing.T) {
	f, err := Allocate(t.TempDir(), CasePrefix, redact.New([]string{"s3cr3t"}), discardLogger())
	require.NoError(t, err)
	f.Event("Custom", LevelInfo, "value is s3cr3t", map[string]any{"leak": "s3cr3t here"})
	require.NoError(t, f.Finalize(map[string]string{}))

	raw, err := os.ReadFile(filepath.Join(f.Path, EventsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "s3cr3t")
	assert.Contains(t, string(raw), "***")
}

func TestWriteJSONRedacts(t *testing.T) {
	f, err := Allocate(t.TempDir(), CasePrefix, redact.New([]string{"hunter2"}), discardLogger())
	require.NoError(t, err)
	require.NoError(t, f.WriteJSON(ParamsFile, map[string]string{"password": "hunter2"}))

	raw, err := os.ReadFile(filepath.Join(f.Path, ParamsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")
}

func TestStreamsRedactAndCloseOnce(t *testing.T) {
	f, err := Allocate(t.TempDir(), CasePrefix, redact.New([]string{"tok_secret99"}), discardLogger())
	require.NoError(t, err)

	stdout, stderr, err := f.OpenStreams()
	require.NoError(t, err)
	_, err = stdout.Write([]byte("the token is tok_secret99\n"))
	require.NoError(t, err)
	_, err = stderr.Write([]byte("tok_secret99 on stderr\n"))
	require.NoError(t, err)

	require.NoError(t, f.Finalize(map[string]string{}))

	out, _ := os.ReadFile(filepath.Join(f.Path, StdoutFile))
	assert.Equal(t, "the token is ***\n", string(out))
	errLog, _ := os.ReadFile(filepath.Join(f.Path, StderrFile))
	assert.Equal(t, "*** on stderr\n", string(errLog))
}

func TestFinalizeWritesResultLastAndOnlyOnce(t *testing.T) {
	f, err := Allocate(t.TempDir(), CasePrefix, redact.New(nil), discardLogger())
	require.NoError(t, err)

	resultPath := filepath.Join(f.Path, ResultFile)
	_, statErr := os.Stat(resultPath)
	assert.True(t, os.IsNotExist(statErr), "result.json must not exist before finalize")

	require.NoError(t, f.Finalize(&model.CaseResult{SchemaVersion: model.SchemaVersion, Status: model.StatusPassed}))
	assert.FileExists(t, resultPath)

	err = f.Finalize(&model.CaseResult{})
	assert.Error(t, err, "second finalize must fail")
}

func TestReattach(t *testing.T) {
	runsRoot := t.TempDir()
	f, err := Allocate(runsRoot, CasePrefix, redact.New(nil), discardLogger())
	require.NoError(t, err)
	f.Event("First", LevelInfo, "before restart", nil)
	// Simulate the process dying without finalizing.

	re, err := Reattach(runsRoot, f.RunID, redact.New(nil), discardLogger())
	require.NoError(t, err)
	re.Event("Second", LevelInfo, "after restart", nil)
	require.NoError(t, re.Finalize(map[string]string{}))

	events, err := jsonl.ReadAll[Event](filepath.Join(re.Path, EventsFile))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "First", events[0].Type)
	assert.Equal(t, "Second", events[1].Type)
}

func TestReattachRejectsFinalized(t *testing.T) {
	runsRoot := t.TempDir()
	f, err := Allocate(runsRoot, CasePrefix, redact.New(nil), discardLogger())
	require.NoError(t, err)
	require.NoError(t, f.Finalize(map[string]string{}))

	_, err = Reattach(runsRoot, f.RunID, redact.New(nil), discardLogger())
	assert.Error(t, err)
}

func TestControlAndArtifactDirs(t *testing.T) {
	f, err := Allocate(t.TempDir(), CasePrefix, redact.New(nil), discardLogger())
	require.NoError(t, err)

	control, err := f.ControlPath()
	require.NoError(t, err)
	assert.DirExists(t, control)
	artifacts, err := f.ArtifactsPath()
	require.NoError(t, err)
	assert.DirExists(t, artifacts)
}
