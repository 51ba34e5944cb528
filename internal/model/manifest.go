package model

import (
	"strings"
)

// BaseType is a parameter's scalar type.
type BaseType string

const (
	TypeInt     BaseType = "int"
	TypeDouble  BaseType = "double"
	TypeString  BaseType = "string"
	TypeBoolean BaseType = "boolean"
	TypePath    BaseType = "path"
	TypeFile    BaseType = "file"
	TypeFolder  BaseType = "folder"
	TypeEnum    BaseType = "enum"
	TypeJSON    BaseType = "json"
)

var knownBaseTypes = map[BaseType]bool{
	TypeInt: true, TypeDouble: true, TypeString: true, TypeBoolean: true,
	TypePath: true, TypeFile: true, TypeFolder: true, TypeEnum: true, TypeJSON: true,
}

// ParamType is a parameter type: a scalar base plus an optional array form.
// The manifest encodes arrays with a "[]" suffix, e.g. "int[]".
type ParamType struct {
	Base  BaseType
	Array bool
}

// ParseParamType parses a manifest type string such as "string" or "enum[]".
func ParseParamType(s string) (ParamType, bool) {
	raw := strings.TrimSpace(s)
	pt := ParamType{}
	if strings.HasSuffix(raw, "[]") {
		pt.Array = true
		raw = strings.TrimSuffix(raw, "[]")
	}
	pt.Base = BaseType(raw)
	if !knownBaseTypes[pt.Base] {
		return ParamType{}, false
	}
	return pt, true
}

// String renders the type back to its manifest form.
func (t ParamType) String() string {
	if t.Array {
		return string(t.Base) + "[]"
	}
	return string(t.Base)
}

// ParameterDef declares one test-case parameter.
type ParameterDef struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Required   bool     `json:"required,omitempty"`
	Default    any      `json:"default,omitempty"`
	EnumValues []string `json:"enumValues,omitempty"`
}

// ParamType returns the parsed type of the parameter.
func (p ParameterDef) ParamType() (ParamType, bool) {
	return ParseParamType(p.Type)
}

// CaseManifest is a decoded test.manifest.json.
type CaseManifest struct {
	ID            string         `json:"id"`
	Version       string         `json:"version"`
	Parameters    []ParameterDef `json:"parameters,omitempty"`
	TimeoutSec    int            `json:"timeoutSec,omitempty"`
	ScriptRelPath string         `json:"scriptRelPath,omitempty"`

	// SourcePath is the manifest file path on disk; set by discovery,
	// never serialized back into snapshots.
	SourcePath string `json:"-"`
}

// Identity returns the manifest's id@version pair.
func (m *CaseManifest) Identity() Identity {
	return Identity{ID: m.ID, Version: m.Version}
}

// Parameter looks up a parameter definition by name.
func (m *CaseManifest) Parameter(name string) (ParameterDef, bool) {
	for _, p := range m.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterDef{}, false
}

// Script returns the script path relative to the manifest directory,
// defaulting to the conventional run.ps1.
func (m *CaseManifest) Script() string {
	if m.ScriptRelPath != "" {
		return m.ScriptRelPath
	}
	return "run.ps1"
}

// Validate checks the manifest's structural invariants.
func (m *CaseManifest) Validate() error {
	if _, err := ParseIdentity(m.ID + "@" + m.Version); err != nil {
		return Errorf(ErrManifestInvalid, "invalid identity %q@%q", m.ID, m.Version).
			With("path", m.SourcePath).With("field", "id")
	}
	if m.TimeoutSec < 0 {
		return Errorf(ErrManifestInvalid, "timeoutSec must be > 0").
			With("path", m.SourcePath).With("field", "timeoutSec")
	}
	seen := map[string]bool{}
	for _, p := range m.Parameters {
		if p.Name == "" {
			return Errorf(ErrManifestInvalid, "parameter name is empty").
				With("path", m.SourcePath).With("field", "parameters")
		}
		if seen[p.Name] {
			return Errorf(ErrManifestInvalid, "duplicate parameter %q", p.Name).
				With("path", m.SourcePath).With("field", "parameters")
		}
		seen[p.Name] = true
		pt, ok := p.ParamType()
		if !ok {
			return Errorf(ErrManifestInvalid, "parameter %q has unknown type %q", p.Name, p.Type).
				With("path", m.SourcePath).With("field", "parameters")
		}
		if pt.Base == TypeEnum && len(p.EnumValues) == 0 {
			return Errorf(ErrManifestInvalid, "enum parameter %q has no enumValues", p.Name).
				With("path", m.SourcePath).With("field", "parameters")
		}
		if p.Default != nil && pt.Array {
			if _, ok := p.Default.([]any); !ok {
				return Errorf(ErrManifestInvalid, "array parameter %q has a non-array default", p.Name).
					With("path", m.SourcePath).With("field", "parameters")
			}
		}
	}
	return nil
}

// SuiteNode is one test-case reference inside a suite.
type SuiteNode struct {
	NodeID string         `json:"nodeId"`
	Ref    string         `json:"ref"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// SuiteEnvironment is the per-suite environment block.
type SuiteEnvironment struct {
	Env        map[string]string `json:"env,omitempty"`
	WorkingDir string            `json:"workingDir,omitempty"`
}

// TimeoutPolicyAbort is the only recognised timeout policy.
const TimeoutPolicyAbort = "AbortOnTimeout"

// SuiteControls carries a suite's execution controls. Zero values are
// normalized by Normalize.
type SuiteControls struct {
	Repeat            int    `json:"repeat,omitempty"`
	MaxParallel       int    `json:"maxParallel,omitempty"`
	ContinueOnFailure bool   `json:"continueOnFailure,omitempty"`
	RetryOnError      int    `json:"retryOnError,omitempty"`
	TimeoutPolicy     string `json:"timeoutPolicy,omitempty"`
}

// Normalize applies control defaults: repeat=1, maxParallel=1,
// timeoutPolicy=AbortOnTimeout.
func (c SuiteControls) Normalize() SuiteControls {
	if c.Repeat < 1 {
		c.Repeat = 1
	}
	if c.MaxParallel < 1 {
		c.MaxParallel = 1
	}
	if c.TimeoutPolicy == "" {
		c.TimeoutPolicy = TimeoutPolicyAbort
	}
	return c
}

// SuiteManifest is a decoded suite.manifest.json.
type SuiteManifest struct {
	ID          string            `json:"id"`
	Version     string            `json:"version"`
	TestCases   []SuiteNode       `json:"testCases"`
	Environment *SuiteEnvironment `json:"environment,omitempty"`
	Controls    *SuiteControls    `json:"controls,omitempty"`

	SourcePath string `json:"-"`
}

// Identity returns the manifest's id@version pair.
func (m *SuiteManifest) Identity() Identity {
	return Identity{ID: m.ID, Version: m.Version}
}

// EffectiveControls returns the normalized controls.
func (m *SuiteManifest) EffectiveControls() SuiteControls {
	if m.Controls == nil {
		return SuiteControls{}.Normalize()
	}
	return m.Controls.Normalize()
}

// NodeIDs returns the set of declared node ids, in declaration order.
func (m *SuiteManifest) NodeIDs() []string {
	ids := make([]string, 0, len(m.TestCases))
	for _, n := range m.TestCases {
		ids = append(ids, n.NodeID)
	}
	return ids
}

// Validate checks the manifest's structural invariants.
func (m *SuiteManifest) Validate() error {
	if _, err := ParseIdentity(m.ID + "@" + m.Version); err != nil {
		return Errorf(ErrManifestInvalid, "invalid identity %q@%q", m.ID, m.Version).
			With("path", m.SourcePath).With("field", "id")
	}
	seen := map[string]bool{}
	for _, n := range m.TestCases {
		if n.NodeID == "" {
			return Errorf(ErrManifestInvalid, "nodeId is empty").
				With("path", m.SourcePath).With("field", "testCases")
		}
		if seen[n.NodeID] {
			return Errorf(ErrSuiteNodeIDDuplicate, "duplicate nodeId %q", n.NodeID).
				With("path", m.SourcePath)
		}
		seen[n.NodeID] = true
		if strings.TrimSpace(n.Ref) == "" {
			return Errorf(ErrManifestInvalid, "node %q has an empty ref", n.NodeID).
				With("path", m.SourcePath).With("field", "testCases")
		}
	}
	if m.Environment != nil {
		for k := range m.Environment.Env {
			if strings.TrimSpace(k) == "" {
				return Errorf(ErrSuiteEnvironmentInvalid, "environment key is empty").
					With("path", m.SourcePath)
			}
		}
	}
	if m.Controls != nil {
		c := m.Controls.Normalize()
		if c.TimeoutPolicy != TimeoutPolicyAbort {
			return Errorf(ErrManifestInvalid, "unknown timeoutPolicy %q", c.TimeoutPolicy).
				With("path", m.SourcePath).With("field", "controls.timeoutPolicy")
		}
		if c.RetryOnError < 0 {
			return Errorf(ErrManifestInvalid, "retryOnError must be >= 0").
				With("path", m.SourcePath).With("field", "controls.retryOnError")
		}
	}
	return nil
}

// PlanEnvironment is the per-plan environment block. env is the only
// property the schema allows.
type PlanEnvironment struct {
	Env map[string]string `json:"env,omitempty"`
}

// PlanManifest is a decoded plan.manifest.json.
type PlanManifest struct {
	ID          string           `json:"id"`
	Version     string           `json:"version"`
	Suites      []string         `json:"suites"`
	Environment *PlanEnvironment `json:"environment,omitempty"`

	SourcePath string `json:"-"`
}

// Identity returns the manifest's id@version pair.
func (m *PlanManifest) Identity() Identity {
	return Identity{ID: m.ID, Version: m.Version}
}

// SuiteIdentities parses every suite reference string.
func (m *PlanManifest) SuiteIdentities() ([]Identity, error) {
	out := make([]Identity, 0, len(m.Suites))
	for _, s := range m.Suites {
		id, err := ParseIdentity(s)
		if err != nil {
			return nil, Errorf(ErrPlanSuiteRefInvalid, "invalid suite reference %q", s).
				With("path", m.SourcePath)
		}
		out = append(out, id)
	}
	return out, nil
}

// Validate checks the manifest's structural invariants.
func (m *PlanManifest) Validate() error {
	if _, err := ParseIdentity(m.ID + "@" + m.Version); err != nil {
		return Errorf(ErrManifestInvalid, "invalid identity %q@%q", m.ID, m.Version).
			With("path", m.SourcePath).With("field", "id")
	}
	if _, err := m.SuiteIdentities(); err != nil {
		return err
	}
	if m.Environment != nil {
		for k := range m.Environment.Env {
			if strings.TrimSpace(k) == "" {
				return Errorf(ErrPlanEnvironmentInvalid, "environment key is empty").
					With("path", m.SourcePath)
			}
		}
	}
	return nil
}
