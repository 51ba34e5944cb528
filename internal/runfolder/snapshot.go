package runfolder

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Jeffail/gabs/v2"

	"github.com/tessera-qa/tessera/internal/inputs"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/redact"
)

// CaseSnapshot collects everything manifest.json records about a resolved
// case run.
type CaseSnapshot struct {
	Manifest      *model.CaseManifest
	Environment   map[string]string
	Resolved      *inputs.Resolved
	ResolvedAt    time.Time
	EngineVersion string
}

// BuildCaseSnapshotDoc composes the manifest.json snapshot document: the
// verbatim source manifest, the resolved identity, the effective
// environment, the redacted effective inputs, and the raw input templates.
// The whole document is redacted before serialization.
func BuildCaseSnapshotDoc(snap CaseSnapshot, redactor *redact.Redactor) ([]byte, error) {
	source, err := os.ReadFile(snap.Manifest.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("read source manifest: %w", err)
	}
	parsedSource, err := gabs.ParseJSON(source)
	if err != nil {
		return nil, fmt.Errorf("parse source manifest: %w", err)
	}

	payload := map[string]any{
		"sourceManifest": parsedSource.Data(),
		"identity": map[string]string{
			"id":      snap.Manifest.ID,
			"version": snap.Manifest.Version,
		},
		"effectiveEnvironment": snap.Environment,
		"effectiveInputs":      snap.Resolved.Redacted,
		"inputTemplates":       snap.Resolved.Templates,
		"secretInputs":         snap.Resolved.SecretNames(),
		"resolvedAt":           snap.ResolvedAt.UTC().Format(time.RFC3339Nano),
		"engineVersion":        snap.EngineVersion,
	}
	// Round-trip through JSON so the redaction walk sees uniform
	// map[string]any / []any nodes regardless of the Go types above.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	doc, err := gabs.ParseJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	redactor.JSON(doc, snap.Resolved.SecretNames())
	return append(doc.BytesIndent("", "  "), '\n'), nil
}

// EnvInfo is the env.json document describing the host the run executed
// on.
type EnvInfo struct {
	OSVersion         string `json:"osVersion"`
	RunnerVersion     string `json:"runnerVersion"`
	ScriptHostVersion string `json:"scriptHostVersion"`
	IsElevated        bool   `json:"isElevated"`
}
