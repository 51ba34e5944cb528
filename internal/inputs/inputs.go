// Package inputs builds the effective input set for a case run from
// parameter defaults, suite-node inputs, request overrides, and
// environment indirections.
package inputs

import (
	"sort"

	"github.com/tessera-qa/tessera/internal/environ"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/values"
)

// RedactedPlaceholder replaces secret values in persisted artifacts.
const RedactedPlaceholder = "***"

// Resolved is the immutable input snapshot for one case run.
type Resolved struct {
	// Effective maps parameter name to its typed resolved value.
	Effective map[string]any
	// Redacted mirrors Effective with secret values replaced by "***".
	Redacted map[string]any
	// Secrets is the set of secret parameter names.
	Secrets map[string]bool
	// Templates is the raw pre-resolution input mapping kept for audit.
	Templates map[string]any
}

// SecretStrings returns the literal string renderings of every secret
// effective value, for stream redaction. Array secrets contribute one
// string per element.
func (r *Resolved) SecretStrings() []string {
	var out []string
	names := make([]string, 0, len(r.Secrets))
	for name := range r.Secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v, ok := r.Effective[name]
		if !ok || v == nil {
			continue
		}
		if arr, isArr := v.([]any); isArr {
			for _, item := range arr {
				out = append(out, values.FormatToken(item))
			}
			continue
		}
		out = append(out, values.FormatToken(v))
	}
	return out
}

// SecretNames returns the sorted secret parameter names.
func (r *Resolved) SecretNames() []string {
	names := make([]string, 0, len(r.Secrets))
	for name := range r.Secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve computes the effective inputs for a case. Node inputs merge over
// parameter defaults, override inputs merge over both; EnvRef objects
// resolve against env; enum and required constraints are enforced.
func Resolve(manifest *model.CaseManifest, nodeInputs, overrideInputs map[string]any, env *environ.Environment, nodeID string) (*Resolved, error) {
	// Seed with declared defaults, then layer node inputs and overrides.
	merged := map[string]any{}
	for _, p := range manifest.Parameters {
		if p.Default != nil {
			merged[p.Name] = p.Default
		}
	}
	for name, v := range nodeInputs {
		merged[name] = v
	}
	for name, v := range overrideInputs {
		merged[name] = v
	}

	for name := range merged {
		if _, known := manifest.Parameter(name); !known {
			return nil, model.Errorf(model.ErrInputsUnknown, "input %q does not match any declared parameter", name).
				With("parameter", name).With("nodeId", nodeID)
		}
	}

	res := &Resolved{
		Effective: map[string]any{},
		Redacted:  map[string]any{},
		Secrets:   map[string]bool{},
		Templates: map[string]any{},
	}
	for name, raw := range merged {
		res.Templates[name] = raw
	}

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def, _ := manifest.Parameter(name)
		pt, ok := def.ParamType()
		if !ok {
			return nil, model.Errorf(model.ErrInputsTypeInvalid, "parameter %q has unknown type %q", name, def.Type).
				With("parameter", name)
		}

		raw := merged[name]
		var (
			value any
			err   error
		)
		if ref, isRef := model.AsEnvRef(raw); isRef {
			value, err = values.ResolveEnvRef(ref, env, pt, name, nodeID)
			if err != nil {
				return nil, err
			}
			if ref.Secret {
				res.Secrets[name] = true
			}
		} else {
			value, err = values.CoerceLiteral(raw, pt)
			if err != nil {
				return nil, err
			}
		}

		if value != nil && pt.Base == model.TypeEnum {
			if err := checkEnum(value, pt, def.EnumValues, name); err != nil {
				return nil, err
			}
		}
		res.Effective[name] = value
	}

	for _, p := range manifest.Parameters {
		if !p.Required {
			continue
		}
		if v, ok := res.Effective[p.Name]; !ok || v == nil {
			return nil, model.Errorf(model.ErrInputsRequiredMissing, "required parameter %q resolved to no value", p.Name).
				With("parameter", p.Name).With("nodeId", nodeID)
		}
	}

	for name, v := range res.Effective {
		if res.Secrets[name] {
			res.Redacted[name] = RedactedPlaceholder
			continue
		}
		res.Redacted[name] = v
	}
	return res, nil
}

func checkEnum(value any, pt model.ParamType, enumValues []string, name string) error {
	member := func(s string) bool {
		for _, e := range enumValues {
			if e == s {
				return true
			}
		}
		return false
	}
	if pt.Array {
		arr, _ := value.([]any)
		for _, item := range arr {
			s, _ := item.(string)
			if !member(s) {
				return model.Errorf(model.ErrInputsEnumInvalid, "value %q of parameter %q is not in enumValues", s, name).
					With("parameter", name)
			}
		}
		return nil
	}
	s, _ := value.(string)
	if !member(s) {
		return model.Errorf(model.ErrInputsEnumInvalid, "value %q of parameter %q is not in enumValues", s, name).
			With("parameter", name)
	}
	return nil
}
