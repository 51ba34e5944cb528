package procdriver

import (
	"fmt"

	"github.com/tessera-qa/tessera/internal/inputs"
	"github.com/tessera-qa/tessera/internal/model"
	"github.com/tessera-qa/tessera/internal/values"
)

// RenderArgv renders the effective inputs as the script's argument vector,
// in manifest parameter order:
//   - parameters resolved to null are omitted,
//   - booleans render as the single token -name:true / -name:false so a
//     PowerShell-style host binds them as switch values rather than
//     positional strings,
//   - scalars render as -name followed by the invariant-formatted value,
//   - arrays render as -name followed by one token per element.
//
// The returned names list the secret parameters that ended up on the
// command line, so the caller can emit the warning event.
func RenderArgv(manifest *model.CaseManifest, resolved *inputs.Resolved) (argv []string, secretsOnArgv []string) {
	for _, p := range manifest.Parameters {
		value, ok := resolved.Effective[p.Name]
		if !ok || value == nil {
			continue
		}
		pt, _ := p.ParamType()

		switch {
		case pt.Array:
			arr, _ := value.([]any)
			argv = append(argv, "-"+p.Name)
			for _, item := range arr {
				argv = append(argv, values.FormatToken(item))
			}
		case pt.Base == model.TypeBoolean:
			b, _ := value.(bool)
			argv = append(argv, fmt.Sprintf("-%s:%t", p.Name, b))
		default:
			argv = append(argv, "-"+p.Name, values.FormatToken(value))
		}

		if resolved.Secrets[p.Name] {
			secretsOnArgv = append(secretsOnArgv, p.Name)
		}
	}
	return argv, secretsOnArgv
}
