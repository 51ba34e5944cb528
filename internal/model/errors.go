package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind names one entry of the engine error taxonomy.
type ErrorKind string

const (
	ErrIdentityInvalid   ErrorKind = "Identity.Invalid"
	ErrIdentityDuplicate ErrorKind = "Identity.Duplicate"

	ErrManifestInvalid ErrorKind = "Manifest.Invalid"

	ErrPlanEnvironmentInvalid  ErrorKind = "Plan.Environment.Invalid"
	ErrSuiteEnvironmentInvalid ErrorKind = "Suite.Environment.Invalid"
	ErrSuiteNodeIDDuplicate    ErrorKind = "Suite.NodeId.Duplicate"
	ErrSuiteTestCaseRefInvalid ErrorKind = "Suite.TestCaseRef.Invalid"

	ErrPlanSuiteRefInvalid  ErrorKind = "Plan.SuiteRef.Invalid"
	ErrPlanSuiteRefNotFound ErrorKind = "Plan.SuiteRef.NotFound"
	ErrPlanSuiteRefNonUnique ErrorKind = "Plan.SuiteRef.NonUnique"

	ErrRunRequestInvalid       ErrorKind = "RunRequest.Invalid"
	ErrRunRequestResolveFailed ErrorKind = "RunRequest.ResolveFailed"

	ErrInputsUnknown         ErrorKind = "Inputs.Unknown"
	ErrInputsRequiredMissing ErrorKind = "Inputs.RequiredMissing"
	ErrInputsTypeInvalid     ErrorKind = "Inputs.TypeInvalid"
	ErrInputsEnumInvalid     ErrorKind = "Inputs.Enum.Invalid"

	ErrEnvRefResolveFailed ErrorKind = "EnvRef.ResolveFailed"

	ErrEnvironmentInvalidKey ErrorKind = "Environment.InvalidKey"

	ErrRunnerWorkingDirInvalid ErrorKind = "Runner.WorkingDir.Invalid"
	ErrRunnerInputPathInvalid  ErrorKind = "Runner.Input.Path.Invalid"
	ErrRunnerInputFileMissing  ErrorKind = "Runner.Input.File.Missing"
	ErrRunnerInputFolderMissing ErrorKind = "Runner.Input.Folder.Missing"

	ErrRebootRequestInvalid ErrorKind = "Reboot.Request.Invalid"
)

// Error is a structured engine error: a taxonomy kind, a human message, and
// a detail payload carried to result documents and callers.
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// NewError creates a structured error with an optional detail payload.
func NewError(kind ErrorKind, message string, detail map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail}
}

// Errorf creates a structured error with a formatted message and no payload.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// With returns a copy of the error with one detail entry added.
func (e *Error) With(key string, value any) *Error {
	out := &Error{Kind: e.Kind, Message: e.Message, Detail: map[string]any{}}
	for k, v := range e.Detail {
		out.Detail[k] = v
	}
	out.Detail[key] = value
	return out
}

// Error renders the kind, message, and detail keys in stable order.
func (e *Error) Error() string {
	if len(e.Detail) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	keys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (", e.Kind, e.Message)
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, e.Detail[k])
	}
	b.WriteString(")")
	return b.String()
}

// KindOf extracts the taxonomy kind from any error, or "" when the error is
// not a structured engine error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AsError extracts the structured error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
