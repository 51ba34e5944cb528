package values

import (
	"github.com/tessera-qa/tessera/internal/environ"
	"github.com/tessera-qa/tessera/internal/model"
)

// ResolveEnvRef resolves an environment indirection against the effective
// environment. A missing or empty variable falls back to the coerced
// default; with no default, a required ref fails and an optional one
// resolves to nil. Coercion failures surface as EnvRef.ResolveFailed.
func ResolveEnvRef(ref model.EnvRef, env *environ.Environment, t model.ParamType, parameter, nodeID string) (any, error) {
	fail := func(reason string) error {
		return model.Errorf(model.ErrEnvRefResolveFailed, "environment variable %q for parameter %q: %s", ref.Env, parameter, reason).
			With("env", ref.Env).With("parameter", parameter).With("nodeId", nodeID)
	}

	if ref.Env == "" {
		return nil, fail("missing $env key name")
	}

	value, found := env.Lookup(ref.Env)
	if !found || value == "" {
		if ref.Default != nil {
			coerced, err := CoerceLiteral(ref.Default, t)
			if err != nil {
				return nil, fail("default does not coerce: " + err.Error())
			}
			return coerced, nil
		}
		if ref.Required {
			return nil, fail("variable is not set and no default is declared")
		}
		return nil, nil
	}

	coerced, err := CoerceEnvString(value, t)
	if err != nil {
		return nil, fail(err.Error())
	}
	return coerced, nil
}
