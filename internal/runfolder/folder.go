// Package runfolder owns the on-disk Run Folder: allocation of unique run
// ids, the snapshot documents, the redacted stdout/stderr logs, the
// events.jsonl stream, and the finalising result.json. A folder is owned
// exclusively by its creator until the result is written; after that it is
// immutable.
package runfolder

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tessera-qa/tessera/internal/fsutil"
	"github.com/tessera-qa/tessera/internal/jsonl"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/redact"
)

// Run id prefixes.
const (
	CasePrefix  = "R-"
	GroupPrefix = "G-"
)

// Artifact file names inside a run folder.
const (
	ManifestFile    = "manifest.json"
	ParamsFile      = "params.json"
	EnvFile         = "env.json"
	StdoutFile      = "stdout.log"
	StderrFile      = "stderr.log"
	EventsFile      = "events.jsonl"
	ResultFile      = "result.json"
	ControlsFile    = "controls.json"
	EnvironmentFile = "environment.json"
	RunRequestFile  = "runRequest.json"
	ChildrenFile    = "children.jsonl"
	ArtifactsDir    = "artifacts"
	ControlDir      = "control"
	RebootFile      = "reboot.json"
	SessionFile     = "session.json"
)

// Event is one line of events.jsonl.
type Event struct {
	EventID string          `json:"eventId"`
	Time    time.Time       `json:"time"`
	Type    string          `json:"type"`
	Level   string          `json:"level"`
	Message string          `json:"message,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

// Event levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Folder is an allocated run folder.
type Folder struct {
	RunID string
	Path  string

	redactor *redact.Redactor
	logger   *slog.Logger

	mu        sync.Mutex
	entropy   *ulid.MonotonicEntropy
	events    *jsonl.Writer
	stdout    io.WriteCloser
	stderr    io.WriteCloser
	finalized bool
}

// Allocate creates a fresh run folder under runsRoot with the given
// prefix. Ids are 32 hex chars from crypto/rand; on the improbable
// collision a monotonic numeric suffix is appended until the directory
// creation wins.
func Allocate(runsRoot, prefix string, redactor *redact.Redactor, logger *slog.Logger) (*Folder, error) {
	if err := os.MkdirAll(runsRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create runs root: %w", err)
	}
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	base := prefix + hex.EncodeToString(raw[:])

	runID := base
	for suffix := 2; ; suffix++ {
		path := filepath.Join(runsRoot, runID)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			events, err := jsonl.OpenWriter(filepath.Join(path, EventsFile))
			if err != nil {
				return nil, err
			}
			f := &Folder{
				RunID:    runID,
				Path:     path,
				redactor: redactor,
				logger:   logger,
				entropy:  ulid.Monotonic(rand.Reader, 0),
				events:   events,
			}
			logger.Debug("run folder allocated", "run_id", runID, "path", path)
			return f, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create run folder: %w", err)
		}
		runID = fmt.Sprintf("%s-%d", base, suffix)
	}
}

// Reattach reopens an existing run folder after a process restart, for
// the resume flow. The events stream reopens in append mode; the folder
// must not have been finalised.
func Reattach(runsRoot, runID string, redactor *redact.Redactor, logger *slog.Logger) (*Folder, error) {
	path := filepath.Join(runsRoot, runID)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("run folder %s not found under %s", runID, runsRoot)
	}
	if _, err := os.Stat(filepath.Join(path, ResultFile)); err == nil {
		return nil, fmt.Errorf("run folder %s is already finalized", runID)
	}
	events, err := jsonl.OpenWriter(filepath.Join(path, EventsFile))
	if err != nil {
		return nil, err
	}
	return &Folder{
		RunID:    runID,
		Path:     path,
		redactor: redactor,
		logger:   logger,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		events:   events,
	}, nil
}

// Event appends one event line. Event ids are monotonic ULIDs so the
// stream sorts by id as well as by position.
func (f *Folder) Event(eventType, level, message string, detail map[string]any) {
	f.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), f.entropy)
	f.mu.Unlock()
	if err != nil {
		f.logger.Warn("event id generation failed", "error", err)
		return
	}
	evt := Event{
		EventID: id.String(),
		Time:    time.Now().UTC(),
		Type:    eventType,
		Level:   level,
		Message: f.redactor.String(message),
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			f.logger.Warn("event detail marshal failed", "type", eventType, "error", err)
		} else {
			evt.Detail = json.RawMessage(f.redactor.Bytes(raw))
		}
	}
	if err := f.events.Append(evt); err != nil {
		f.logger.Warn("event append failed", "run_id", f.RunID, "type", eventType, "error", err)
	}
}

// WriteJSON writes a redacted, atomically-persisted JSON document into the
// folder.
func (f *Folder) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	data = append(f.redactor.Bytes(data), '\n')
	return fsutil.AtomicWrite(filepath.Join(f.Path, name), data)
}

// WriteRaw writes pre-rendered bytes (already redacted by the caller)
// atomically into the folder.
func (f *Folder) WriteRaw(name string, data []byte) error {
	return fsutil.AtomicWrite(filepath.Join(f.Path, name), data)
}

// OpenStreams opens the redacting stdout.log and stderr.log sinks. The
// streams are flushed and closed exactly once, by Finalize.
func (f *Folder) OpenStreams() (stdout, stderr io.Writer, err error) {
	outFile, err := os.OpenFile(filepath.Join(f.Path, StdoutFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open stdout log: %w", err)
	}
	errFile, err := os.OpenFile(filepath.Join(f.Path, StderrFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		outFile.Close()
		return nil, nil, fmt.Errorf("open stderr log: %w", err)
	}
	f.mu.Lock()
	f.stdout = redact.NewWriter(outFile, f.redactor)
	f.stderr = redact.NewWriter(errFile, f.redactor)
	stdout, stderr = f.stdout, f.stderr
	f.mu.Unlock()
	return stdout, stderr, nil
}

// ArtifactsPath returns (creating it) the artifacts/ directory.
func (f *Folder) ArtifactsPath() (string, error) {
	p := filepath.Join(f.Path, ArtifactsDir)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	return p, nil
}

// ControlPath returns (creating it) the control/ directory the subprocess
// uses as its outbound channel.
func (f *Folder) ControlPath() (string, error) {
	p := filepath.Join(f.Path, ControlDir)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create control dir: %w", err)
	}
	return p, nil
}

// OpenChildren opens the group folder's children.jsonl writer.
func (f *Folder) OpenChildren() (*jsonl.Writer, error) {
	return jsonl.OpenWriter(filepath.Join(f.Path, ChildrenFile))
}

// Suspend flushes and closes the streams and the event writer without
// writing a result, for runs that continue after a machine restart.
func (f *Folder) Suspend() {
	f.mu.Lock()
	stdout, stderr := f.stdout, f.stderr
	f.stdout, f.stderr = nil, nil
	f.mu.Unlock()
	if stdout != nil {
		if err := stdout.Close(); err != nil {
			f.logger.Warn("stdout close failed", "run_id", f.RunID, "error", err)
		}
	}
	if stderr != nil {
		if err := stderr.Close(); err != nil {
			f.logger.Warn("stderr close failed", "run_id", f.RunID, "error", err)
		}
	}
	if err := f.events.Close(); err != nil {
		f.logger.Warn("events close failed", "run_id", f.RunID, "error", err)
	}
}

// Finalize writes result.json last, then closes the streams and the event
// writer. After Finalize returns the folder is immutable; a second call is
// an error.
func (f *Folder) Finalize(result any) error {
	f.mu.Lock()
	if f.finalized {
		f.mu.Unlock()
		return fmt.Errorf("run folder %s already finalized", f.RunID)
	}
	f.finalized = true
	stdout, stderr := f.stdout, f.stderr
	f.mu.Unlock()

	if stdout != nil {
		if err := stdout.Close(); err != nil {
			f.logger.Warn("stdout close failed", "run_id", f.RunID, "error", err)
		}
	}
	if stderr != nil {
		if err := stderr.Close(); err != nil {
			f.logger.Warn("stderr close failed", "run_id", f.RunID, "error", err)
		}
	}
	if err := f.WriteJSON(ResultFile, result); err != nil {
		return err
	}
	if err := f.events.Close(); err != nil {
		f.logger.Warn("events close failed", "run_id", f.RunID, "error", err)
	}
	return nil
}

// ResultErrorFrom maps a structured engine error into the result document
// error block.
func ResultErrorFrom(err error) *model.ResultError {
	if e, ok := model.AsError(err); ok {
		return &model.ResultError{
			Type:    string(e.Kind),
			Source:  model.ErrorSourceRunner,
			Message: e.Message,
		}
	}
	return &model.ResultError{
		Type:    "Runner.Internal",
		Source:  model.ErrorSourceRunner,
		Message: err.Error(),
	}
}
